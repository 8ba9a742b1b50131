package integrity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository/registrytest"
)

func sampleEvents() []models.ContributionEvent {
	at := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	return []models.ContributionEvent{
		{ID: "c-2", BatchID: "b-1", ContributorID: "maria", Mass: 3, CreatedAt: at},
		{ID: "c-1", BatchID: "b-1", ContributorID: "joao", Mass: 4, CreatedAt: at},
		{ID: "c-3", BatchID: "b-1", ContributorID: "maria", Mass: 1, CreatedAt: at},
	}
}

func samplePhotos() []models.PhotoRecord {
	return []models.PhotoRecord{
		{ID: "p-1", BatchID: "b-1", Reference: "s3://photos/z.jpg", Category: models.PhotoWeighing},
		{ID: "p-2", BatchID: "b-1", ContributionID: "c-1", Reference: "s3://photos/a.jpg", Category: models.PhotoContent},
	}
}

func TestCanonicalSnapshot(t *testing.T) {
	t.Parallel()

	b := registrytest.NewBatch("b-1", "SP-01", "A-001", 100)
	snap := BuildSnapshot(b, sampleEvents(), samplePhotos())

	got, err := snap.Canonical()
	require.NoError(t, err)
	want := `{"closure_date":null,"code":"A-001","contribution_ids":["c-1","c-2","c-3"],` +
		`"contributor_ids":["joao","maria"],"creator_id":"op-1","current_mass":100,` +
		`"facility_code":"SP-01","initial_mass":100,"latitude":null,"longitude":null,` +
		`"photo_references":["s3://photos/a.jpg","s3://photos/z.jpg"],` +
		`"start_date":"2026-03-02T09:00:00.000Z"}`
	assert.Equal(t, want, string(got))
}

func TestFingerprintIgnoresInputOrder(t *testing.T) {
	t.Parallel()

	b := registrytest.NewBatch("b-1", "SP-01", "A-001", 100)
	events := sampleEvents()
	photos := samplePhotos()

	first, err := ComputeFingerprint(BuildSnapshot(b, events, photos))
	require.NoError(t, err)

	reversedEvents := []models.ContributionEvent{events[2], events[0], events[1]}
	reversedPhotos := []models.PhotoRecord{photos[1], photos[0]}
	second, err := ComputeFingerprint(BuildSnapshot(b, reversedEvents, reversedPhotos))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestFingerprintIgnoresLifecycleFields(t *testing.T) {
	t.Parallel()

	b := registrytest.NewBatch("b-1", "SP-01", "A-001", 100)
	base, err := ComputeFingerprint(BuildSnapshot(b, nil, nil))
	require.NoError(t, err)

	moved := b
	moved.Station, moved.Week = 4, 4
	moved.Version = 9
	moved.UpdatedAt = b.UpdatedAt.Add(72 * time.Hour)
	moved.LastAdvanceCycle = "2026-W12"
	got, err := ComputeFingerprint(BuildSnapshot(moved, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestFingerprintCoversHashedFields(t *testing.T) {
	t.Parallel()

	b := registrytest.NewBatch("b-1", "SP-01", "A-001", 100)
	base, err := ComputeFingerprint(BuildSnapshot(b, sampleEvents(), samplePhotos()))
	require.NoError(t, err)

	closed := b.StartedAt.Add(24 * time.Hour)
	lat := -23.5
	mutations := map[string]func(*models.Batch){
		"current mass": func(x *models.Batch) { x.CurrentMass = 96.34 },
		"initial mass": func(x *models.Batch) { x.InitialMass = 101 },
		"closure date": func(x *models.Batch) { x.ClosedAt = &closed },
		"creator":      func(x *models.Batch) { x.CreatorID = "op-2" },
		"latitude":     func(x *models.Batch) { x.Latitude = &lat },
		"code":         func(x *models.Batch) { x.Code = "A-002" },
	}
	for name, mutate := range mutations {
		changed := b
		mutate(&changed)
		got, err := ComputeFingerprint(BuildSnapshot(changed, sampleEvents(), samplePhotos()))
		require.NoError(t, err)
		assert.NotEqual(t, base, got, name)
	}

	fewer, err := ComputeFingerprint(BuildSnapshot(b, sampleEvents()[:2], samplePhotos()))
	require.NoError(t, err)
	assert.NotEqual(t, base, fewer)
}

func TestSnapshotSkipsTombstones(t *testing.T) {
	t.Parallel()

	b := registrytest.NewBatch("b-1", "SP-01", "A-001", 100)
	events := sampleEvents()
	deleted := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	events[1].DeletedAt = &deleted

	snap := BuildSnapshot(b, events, samplePhotos())
	assert.Equal(t, []string{"c-2", "c-3"}, snap.ContributionIDs)
	assert.Equal(t, []string{"maria"}, snap.ContributorIDs)
	assert.Equal(t, []string{"s3://photos/z.jpg"}, snap.PhotoReferences)
}

func TestVerifyFingerprint(t *testing.T) {
	t.Parallel()

	snap := BuildSnapshot(registrytest.NewBatch("b-1", "SP-01", "A-001", 100), nil, nil)
	digest, err := ComputeFingerprint(snap)
	require.NoError(t, err)

	ok, err := VerifyFingerprint(snap, digest)
	require.NoError(t, err)
	assert.True(t, ok)

	snap.CurrentMass = 1
	ok, err = VerifyFingerprint(snap, digest)
	require.NoError(t, err)
	assert.False(t, ok)
}
