package integrity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository"
	"github.com/mamadbah2/compost/internal/repository/memory"
	"github.com/mamadbah2/compost/internal/repository/registrytest"
)

type recordingLedger struct {
	certs []models.Certification
	err   error
}

func (l *recordingLedger) RecordCertification(_ context.Context, c models.Certification) error {
	l.certs = append(l.certs, c)
	return l.err
}

// racingRegistry registers a contribution right after the photos of the snapshot are read.
type racingRegistry struct {
	repository.Registry
	raced bool
}

func (r *racingRegistry) ListPhotos(ctx context.Context, batchID string) ([]models.PhotoRecord, error) {
	photos, err := r.Registry.ListPhotos(ctx, batchID)
	if err != nil || r.raced {
		return photos, err
	}
	r.raced = true
	return photos, r.Registry.AddContribution(ctx, models.ContributionEvent{
		ID: "c-late", BatchID: batchID, ContributorID: "late", Mass: 2,
		CreatedAt: time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC),
	})
}

var certifiedAt = time.Date(2026, time.March, 16, 12, 0, 0, 0, time.UTC)

func seededRegistry(t *testing.T) *memory.Registry {
	t.Helper()
	ctx := context.Background()
	reg := memory.NewRegistry()
	require.NoError(t, reg.CreateBatch(ctx, registrytest.NewBatch("b-1", "SP-01", "A-001", 100)))
	for _, e := range sampleEvents() {
		require.NoError(t, reg.AddContribution(ctx, e))
	}
	for _, p := range samplePhotos() {
		require.NoError(t, reg.AddPhoto(ctx, p))
	}
	return reg
}

func newTestEngine(reg repository.Registry, ledger Ledger) *Engine {
	e := NewEngine(reg, ledger, nil)
	e.now = func() time.Time { return certifiedAt }
	return e
}

func TestCertifyStoresFingerprintAndRecordsLedger(t *testing.T) {
	t.Parallel()
	reg := seededRegistry(t)
	ledger := &recordingLedger{}
	engine := newTestEngine(reg, ledger)

	cert, err := engine.Certify(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Len(t, cert.Fingerprint, 64)
	assert.True(t, cert.CertifiedAt.Equal(certifiedAt))

	stored, err := reg.GetBatch(context.Background(), "b-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Fingerprint)
	assert.Equal(t, cert.Fingerprint, *stored.Fingerprint)
	assert.Equal(t, stored.Version, cert.Version)
	require.Len(t, ledger.certs, 1)
	assert.Equal(t, "A-001", ledger.certs[0].BatchCode)

	v, err := engine.Verify(context.Background(), "b-1")
	require.NoError(t, err)
	assert.True(t, v.Certified)
	assert.True(t, v.Match)
	assert.Equal(t, cert.Fingerprint, v.Computed)
}

func TestCertifyIgnoresLedgerFailure(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(seededRegistry(t), &recordingLedger{err: errors.New("sheets down")})

	_, err := engine.Certify(context.Background(), "b-1")
	assert.NoError(t, err)
}

func TestCertifyIsRepeatable(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(seededRegistry(t), nil)

	first, err := engine.Certify(context.Background(), "b-1")
	require.NoError(t, err)
	second, err := engine.Certify(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Version+1, second.Version)
}

func TestCertifyRejectsConcurrentContribution(t *testing.T) {
	t.Parallel()
	reg := &racingRegistry{Registry: seededRegistry(t)}
	engine := newTestEngine(reg, nil)

	_, err := engine.Certify(context.Background(), "b-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
	assert.ErrorIs(t, err, apperr.ErrPersistence)

	stored, err := reg.GetBatch(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Nil(t, stored.Fingerprint)

	cert, err := engine.Certify(context.Background(), "b-1")
	require.NoError(t, err)
	v, err := engine.Verify(context.Background(), "b-1")
	require.NoError(t, err)
	assert.True(t, v.Match)
	assert.Equal(t, cert.Fingerprint, v.Stored)
}

func TestVerifyDetectsTampering(t *testing.T) {
	t.Parallel()
	reg := seededRegistry(t)
	engine := newTestEngine(reg, nil)
	ctx := context.Background()

	_, err := engine.Certify(ctx, "b-1")
	require.NoError(t, err)

	// A direct write that keeps the stored fingerprint.
	b, err := reg.GetBatch(ctx, "b-1")
	require.NoError(t, err)
	b.CurrentMass = 42
	_, err = reg.UpdateBatch(ctx, b)
	require.NoError(t, err)

	v, err := engine.Verify(ctx, "b-1")
	require.NoError(t, err)
	assert.True(t, v.Certified)
	assert.False(t, v.Match)
	assert.NotEqual(t, v.Stored, v.Computed)
}

func TestVerifyUncertifiedBatch(t *testing.T) {
	t.Parallel()
	reg := seededRegistry(t)
	engine := newTestEngine(reg, nil)

	v, err := engine.Verify(context.Background(), "b-1")
	require.NoError(t, err)
	assert.False(t, v.Certified)
	assert.False(t, v.Match)
	assert.Empty(t, v.Stored)
}

func TestCertifyMissingBatch(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(memory.NewRegistry(), nil)

	_, err := engine.Certify(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
