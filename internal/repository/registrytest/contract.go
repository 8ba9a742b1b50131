// Package registrytest holds the behaviour every repository.Registry backend must share.
package registrytest

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
)

// Factory returns a fresh, empty registry for one subtest.
type Factory func(t *testing.T) repository.Registry

var base = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

// NewBatch builds a processing batch at station 1.
func NewBatch(id, facility, code string, initialMass float64) models.Batch {
	return models.Batch{
		ID:           id,
		Code:         code,
		FacilityCode: facility,
		Status:       models.BatchProcessing,
		Station:      models.FirstStation,
		Week:         models.FirstStation,
		InitialMass:  initialMass,
		CurrentMass:  initialMass,
		StartedAt:    base,
		UpdatedAt:    base,
		CreatorID:    "op-1",
		Version:      1,
	}
}

// Run executes the contract suite.
func Run(t *testing.T, newRegistry Factory) {
	t.Run("facility upsert keeps creation time", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		lat, lon := -23.55, -46.63

		require.NoError(t, reg.UpsertFacility(ctx, models.Facility{
			Code: "SP-01", Name: "Pinheiros", Latitude: &lat, Longitude: &lon, CreatedAt: base, UpdatedAt: base,
		}))
		later := base.Add(time.Hour)
		require.NoError(t, reg.UpsertFacility(ctx, models.Facility{
			Code: "SP-01", Name: "Pinheiros Norte", Latitude: &lat, Longitude: &lon, CreatedAt: later, UpdatedAt: later,
		}))

		got, err := reg.GetFacility(ctx, "SP-01")
		require.NoError(t, err)
		assert.Equal(t, "Pinheiros Norte", got.Name)
		assert.True(t, got.CreatedAt.Equal(base))
		require.NotNil(t, got.Latitude)
		assert.Equal(t, lat, *got.Latitude)

		_, err = reg.GetFacility(ctx, "missing")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("batch create and lookups", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		rate := 0.05
		b := NewBatch("b-1", "SP-01", "A-001", 100)
		b.DecayRate = &rate

		require.NoError(t, reg.CreateBatch(ctx, b))

		dup := NewBatch("b-2", "SP-01", "A-001", 50)
		err := reg.CreateBatch(ctx, dup)
		require.Error(t, err)
		assert.True(t, errors.Is(err, repository.ErrDuplicateCode))
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

		other := NewBatch("b-3", "RJ-01", "A-001", 50)
		require.NoError(t, reg.CreateBatch(ctx, other))

		got, err := reg.GetBatch(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, "A-001", got.Code)
		assert.True(t, got.StartedAt.Equal(base))
		require.NotNil(t, got.DecayRate)
		assert.Equal(t, 0.05, *got.DecayRate)
		assert.Nil(t, got.ClosedAt)
		assert.Nil(t, got.Fingerprint)

		byCode, err := reg.GetBatchByCode(ctx, "RJ-01", "A-001")
		require.NoError(t, err)
		assert.Equal(t, "b-3", byCode.ID)

		_, err = reg.GetBatchByCode(ctx, "RJ-01", "Z-999")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("update is version guarded", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		require.NoError(t, reg.CreateBatch(ctx, NewBatch("b-1", "SP-01", "A-001", 100)))

		b, err := reg.GetBatch(ctx, "b-1")
		require.NoError(t, err)
		b.Station, b.Week, b.CurrentMass = 2, 2, 96.34
		b.UpdatedAt = base.Add(24 * time.Hour)
		b.LastAdvanceCycle = "2026-W10"

		stored, err := reg.UpdateBatch(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.Version)
		assert.Equal(t, 2, stored.Station)
		assert.Equal(t, 96.34, stored.CurrentMass)
		assert.Equal(t, "2026-W10", stored.LastAdvanceCycle)

		// b still carries the stale version.
		_, err = reg.UpdateBatch(ctx, b)
		require.Error(t, err)
		assert.True(t, errors.Is(err, repository.ErrVersionConflict))
		assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))

		missing := NewBatch("nope", "SP-01", "X", 1)
		_, err = reg.UpdateBatch(ctx, missing)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("tombstoned batches are invisible", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		require.NoError(t, reg.CreateBatch(ctx, NewBatch("b-1", "SP-01", "A-001", 100)))
		require.NoError(t, reg.CreateBatch(ctx, NewBatch("b-2", "SP-01", "A-002", 100)))

		require.NoError(t, reg.SoftDeleteBatch(ctx, "b-1", base.Add(time.Hour)))

		_, err := reg.GetBatch(ctx, "b-1")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		_, err = reg.GetBatchByCode(ctx, "SP-01", "A-001")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

		list, err := reg.ListProcessingBatches(ctx, "SP-01")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "A-002", list[0].Code)

		err = reg.SoftDeleteBatch(ctx, "b-1", base)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

		// The code is free again once tombstoned.
		require.NoError(t, reg.CreateBatch(ctx, NewBatch("b-3", "SP-01", "A-001", 80)))
	})

	t.Run("processing list excludes finalized and sorts by code", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		for _, b := range []models.Batch{
			NewBatch("b-3", "SP-01", "C-003", 10),
			NewBatch("b-1", "SP-01", "A-001", 10),
			NewBatch("b-2", "SP-01", "B-002", 10),
		} {
			require.NoError(t, reg.CreateBatch(ctx, b))
		}
		fin, err := reg.GetBatch(ctx, "b-2")
		require.NoError(t, err)
		fin.Status = models.BatchFinalized
		_, err = reg.UpdateBatch(ctx, fin)
		require.NoError(t, err)

		list, err := reg.ListProcessingBatches(ctx, "SP-01")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "A-001", list[0].Code)
		assert.Equal(t, "C-003", list[1].Code)
	})

	t.Run("contributions and photos touch the batch", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		require.NoError(t, reg.CreateBatch(ctx, NewBatch("b-1", "SP-01", "A-001", 100)))

		b, err := reg.GetBatch(ctx, "b-1")
		require.NoError(t, err)
		fp := "abc"
		b.Fingerprint = &fp
		b, err = reg.UpdateBatch(ctx, b)
		require.NoError(t, err)
		require.NotNil(t, b.Fingerprint)

		dist := 42
		require.NoError(t, reg.AddContribution(ctx, models.ContributionEvent{
			ID: "c-1", BatchID: "b-1", BatchCode: "A-001", Mass: 12.5, ContributorID: "v-1",
			GeofenceDistanceM: &dist, CreatedAt: base.Add(time.Minute),
		}))
		require.NoError(t, reg.AddContribution(ctx, models.ContributionEvent{
			ID: "c-2", BatchID: "b-1", BatchCode: "A-001", Mass: 3, ContributorID: "v-2",
			OutsideGeofence: true, CreatedAt: base.Add(2 * time.Minute),
		}))
		require.NoError(t, reg.AddPhoto(ctx, models.PhotoRecord{
			ID: "p-1", BatchID: "b-1", ContributionID: "c-1", Reference: "s3://photos/1.jpg",
			Category: models.PhotoWeighing, CreatedAt: base.Add(3 * time.Minute),
		}))
		require.NoError(t, reg.AddPhoto(ctx, models.PhotoRecord{
			ID: "p-2", BatchID: "b-1", ContributionID: "c-2", Reference: "s3://photos/2.jpg",
			Category: models.PhotoContent, CreatedAt: base.Add(4 * time.Minute),
		}))
		require.NoError(t, reg.AddPhoto(ctx, models.PhotoRecord{
			ID: "p-3", BatchID: "b-1", Reference: "s3://photos/3.jpg",
			Category: models.PhotoDestination, CreatedAt: base.Add(5 * time.Minute),
		}))

		touched, err := reg.GetBatch(ctx, "b-1")
		require.NoError(t, err)
		assert.Nil(t, touched.Fingerprint)
		assert.Equal(t, b.Version+5, touched.Version)

		events, err := reg.ListContributions(ctx, "b-1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "c-1", events[0].ID)
		require.NotNil(t, events[0].GeofenceDistanceM)
		assert.Equal(t, 42, *events[0].GeofenceDistanceM)
		assert.True(t, events[1].OutsideGeofence)

		require.NoError(t, reg.SoftDeleteContribution(ctx, "c-2", base.Add(time.Hour)))

		events, err = reg.ListContributions(ctx, "b-1")
		require.NoError(t, err)
		require.Len(t, events, 1)

		photos, err := reg.ListPhotos(ctx, "b-1")
		require.NoError(t, err)
		require.Len(t, photos, 2)
		assert.Equal(t, "p-1", photos[0].ID)
		assert.Equal(t, "p-3", photos[1].ID)

		_, err = reg.GetContribution(ctx, "c-2")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		err = reg.SoftDeleteContribution(ctx, "c-2", base)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

		err = reg.AddContribution(ctx, models.ContributionEvent{ID: "c-9", BatchID: "nope", CreatedAt: base})
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("failed child write leaves the batch untouched", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		require.NoError(t, reg.CreateBatch(ctx, NewBatch("b-1", "SP-01", "A-001", 100)))
		require.NoError(t, reg.AddContribution(ctx, models.ContributionEvent{
			ID: "c-1", BatchID: "b-1", BatchCode: "A-001", Mass: 5, ContributorID: "v-1", CreatedAt: base.Add(time.Minute),
		}))
		require.NoError(t, reg.AddPhoto(ctx, models.PhotoRecord{
			ID: "p-1", BatchID: "b-1", Reference: "s3://photos/1.jpg",
			Category: models.PhotoContent, CreatedAt: base.Add(2 * time.Minute),
		}))

		b, err := reg.GetBatch(ctx, "b-1")
		require.NoError(t, err)
		fp := "abc"
		b.Fingerprint = &fp
		b, err = reg.UpdateBatch(ctx, b)
		require.NoError(t, err)

		err = reg.AddContribution(ctx, models.ContributionEvent{
			ID: "c-1", BatchID: "b-1", BatchCode: "A-001", Mass: 9, ContributorID: "v-2", CreatedAt: base.Add(time.Hour),
		})
		assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
		err = reg.AddPhoto(ctx, models.PhotoRecord{
			ID: "p-1", BatchID: "b-1", Reference: "s3://photos/9.jpg",
			Category: models.PhotoWeighing, CreatedAt: base.Add(time.Hour),
		})
		assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))

		after, err := reg.GetBatch(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, b.Version, after.Version)
		require.NotNil(t, after.Fingerprint)
		assert.Equal(t, "abc", *after.Fingerprint)

		events, err := reg.ListContributions(ctx, "b-1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, 5.0, events[0].Mass)
	})
}
