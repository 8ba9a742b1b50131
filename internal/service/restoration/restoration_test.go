package restoration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository/memory"
	"github.com/mamadbah2/compost/internal/repository/registrytest"
)

var restoredAt = time.Date(2026, time.April, 6, 8, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, batches ...models.Batch) (*Service, *memory.Registry) {
	t.Helper()
	reg := memory.NewRegistry()
	for _, b := range batches {
		require.NoError(t, reg.CreateBatch(context.Background(), b))
	}
	svc := NewService(reg, nil)
	svc.now = func() time.Time { return restoredAt }
	return svc, reg
}

func TestRestoreMapping(t *testing.T) {
	t.Parallel()

	finalized := registrytest.NewBatch("b-1", "SP-01", "A-001", 100)
	closed := restoredAt.Add(-48 * time.Hour)
	fp := "old"
	finalized.Status = models.BatchFinalized
	finalized.ClosedAt = &closed
	finalized.FinalizedAt = &closed
	finalized.Fingerprint = &fp
	svc, reg := newTestService(t, finalized, registrytest.NewBatch("b-2", "SP-01", "A-002", 100))

	resp, err := svc.Restore(context.Background(), models.RestorationRequest{
		FacilityCode: "SP-01",
		Mapping:      map[string]int{"A-002": 1, "A-001": 7},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "SP-01", resp.Facility)
	assert.Empty(t, resp.Errors)
	assert.True(t, resp.Timestamp.Equal(restoredAt))
	assert.Equal(t, []models.RestoredBatch{
		{BatchCode: "A-001", Station: 7, Week: 7, Mass: 79.95},
		{BatchCode: "A-002", Station: 1, Week: 1, Mass: 100},
	}, resp.Restored)

	got, err := reg.GetBatch(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchProcessing, got.Status)
	assert.Nil(t, got.ClosedAt)
	assert.Nil(t, got.FinalizedAt)
	assert.Nil(t, got.Fingerprint)
}

func TestRestoreReportsPerEntryFailures(t *testing.T) {
	t.Parallel()
	svc, reg := newTestService(t, registrytest.NewBatch("b-1", "SP-01", "A-001", 100))

	resp, err := svc.Restore(context.Background(), models.RestorationRequest{
		FacilityCode: "SP-01",
		Mapping:      map[string]int{"A-001": 3, "A-404": 2, "A-009": 9},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.Len(t, resp.Restored, 1)
	assert.Equal(t, "A-001", resp.Restored[0].BatchCode)
	assert.InDelta(t, 92.81, resp.Restored[0].Mass, 1e-9)

	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "A-009", resp.Errors[0].BatchCode)
	assert.Equal(t, string(apperr.KindValidation), resp.Errors[0].Kind)
	assert.Equal(t, models.ItemError{
		BatchCode: "A-404", Kind: string(apperr.KindNotFound), Error: "batch not found",
	}, resp.Errors[1])

	got, err := reg.GetBatch(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Station)
}

func TestRestoreIsIdempotent(t *testing.T) {
	t.Parallel()
	svc, reg := newTestService(t, registrytest.NewBatch("b-1", "SP-01", "A-001", 250))
	req := models.RestorationRequest{FacilityCode: "SP-01", Mapping: map[string]int{"A-001": 5}}

	first, err := svc.Restore(context.Background(), req)
	require.NoError(t, err)
	afterFirst, err := reg.GetBatch(context.Background(), "b-1")
	require.NoError(t, err)

	second, err := svc.Restore(context.Background(), req)
	require.NoError(t, err)
	afterSecond, err := reg.GetBatch(context.Background(), "b-1")
	require.NoError(t, err)

	assert.Equal(t, first.Restored, second.Restored)
	assert.Equal(t, afterFirst.Station, afterSecond.Station)
	assert.Equal(t, afterFirst.CurrentMass, afterSecond.CurrentMass)
	assert.Equal(t, afterFirst.Status, afterSecond.Status)
}

func TestRestoreIgnoresOtherFacilities(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t, registrytest.NewBatch("b-1", "RJ-02", "A-001", 100))

	resp, err := svc.Restore(context.Background(), models.RestorationRequest{
		FacilityCode: "SP-01",
		Mapping:      map[string]int{"A-001": 2},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Restored)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "batch not found", resp.Errors[0].Error)
}

func TestRestoreRejectsMalformedRequest(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.Restore(context.Background(), models.RestorationRequest{Mapping: map[string]int{"A-001": 1}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Restore(context.Background(), models.RestorationRequest{FacilityCode: "SP-01"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
