// Package memory keeps the batch registry in process memory. It backs local development
// (STORAGE_DRIVER=memory) and the service tests; state is lost on restart.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository"
)

var errDuplicateID = errors.New("duplicate id")

// Registry implements repository.Registry over maps guarded by a single lock.
type Registry struct {
	mu            sync.RWMutex
	facilities    map[string]models.Facility
	batches       map[string]models.Batch
	contributions map[string]models.ContributionEvent
	photos        map[string]models.PhotoRecord
}

var _ repository.Registry = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		facilities:    make(map[string]models.Facility),
		batches:       make(map[string]models.Batch),
		contributions: make(map[string]models.ContributionEvent),
		photos:        make(map[string]models.PhotoRecord),
	}
}

func (r *Registry) UpsertFacility(ctx context.Context, facility models.Facility) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.facilities[facility.Code]; ok && !existing.CreatedAt.IsZero() {
		facility.CreatedAt = existing.CreatedAt
	}
	r.facilities[facility.Code] = facility
	return nil
}

func (r *Registry) GetFacility(ctx context.Context, code string) (models.Facility, error) {
	if err := ctx.Err(); err != nil {
		return models.Facility{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.facilities[code]
	if !ok {
		return models.Facility{}, apperr.NotFound("get facility", code, "facility not found")
	}
	return f, nil
}

func (r *Registry) CreateBatch(ctx context.Context, batch models.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.batches {
		if !b.IsDeleted() && b.FacilityCode == batch.FacilityCode && b.Code == batch.Code {
			return repository.DuplicateCode("create batch", batch.Code)
		}
	}
	if _, ok := r.batches[batch.ID]; ok {
		return repository.DuplicateCode("create batch", batch.ID)
	}
	r.batches[batch.ID] = batch.Clone()
	return nil
}

func (r *Registry) GetBatch(ctx context.Context, id string) (models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return models.Batch{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.batches[id]
	if !ok || b.IsDeleted() {
		return models.Batch{}, repository.BatchNotFound("get batch", id)
	}
	return b.Clone(), nil
}

func (r *Registry) GetBatchByCode(ctx context.Context, facilityCode, code string) (models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return models.Batch{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.batches {
		if !b.IsDeleted() && b.FacilityCode == facilityCode && b.Code == code {
			return b.Clone(), nil
		}
	}
	return models.Batch{}, repository.BatchNotFound("get batch", code)
}

func (r *Registry) ListProcessingBatches(ctx context.Context, facilityCode string) ([]models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Batch, 0)
	for _, b := range r.batches {
		if b.IsDeleted() || b.FacilityCode != facilityCode || b.Status != models.BatchProcessing {
			continue
		}
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *Registry) UpdateBatch(ctx context.Context, batch models.Batch) (models.Batch, error) {
	if err := ctx.Err(); err != nil {
		return models.Batch{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.batches[batch.ID]
	if !ok || stored.IsDeleted() {
		return models.Batch{}, repository.BatchNotFound("update batch", batch.ID)
	}
	if stored.Version != batch.Version {
		return models.Batch{}, repository.Conflict("update batch", stored.Code)
	}

	next := stored.Clone()
	next.Status = batch.Status
	next.Station = batch.Station
	next.Week = batch.Week
	next.CurrentMass = batch.CurrentMass
	next.ClosedAt = batch.ClosedAt
	next.FinalizedAt = batch.FinalizedAt
	next.UpdatedAt = batch.UpdatedAt
	next.Fingerprint = batch.Fingerprint
	next.LastAdvanceCycle = batch.LastAdvanceCycle
	next.Version = stored.Version + 1
	next = next.Clone()

	r.batches[batch.ID] = next
	return next.Clone(), nil
}

func (r *Registry) SoftDeleteBatch(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.batches[id]
	if !ok || b.IsDeleted() {
		return repository.BatchNotFound("delete batch", id)
	}
	b.DeletedAt = &at
	b.UpdatedAt = at
	b.Version++
	r.batches[id] = b
	return nil
}

func (r *Registry) AddContribution(ctx context.Context, event models.ContributionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contributions[event.ID]; ok {
		return apperr.Persistence("add contribution", event.ID, errDuplicateID)
	}
	if err := r.touchLocked(event.BatchID, event.CreatedAt); err != nil {
		return err
	}
	r.contributions[event.ID] = event
	return nil
}

func (r *Registry) GetContribution(ctx context.Context, id string) (models.ContributionEvent, error) {
	if err := ctx.Err(); err != nil {
		return models.ContributionEvent{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.contributions[id]
	if !ok || e.DeletedAt != nil {
		return models.ContributionEvent{}, apperr.NotFound("get contribution", id, "contribution not found")
	}
	return e, nil
}

func (r *Registry) ListContributions(ctx context.Context, batchID string) ([]models.ContributionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.liveContributionsLocked(batchID), nil
}

func (r *Registry) SoftDeleteContribution(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.contributions[id]
	if !ok || e.DeletedAt != nil {
		return apperr.NotFound("delete contribution", id, "contribution not found")
	}
	if err := r.touchLocked(e.BatchID, at); err != nil {
		return err
	}
	e.DeletedAt = &at
	r.contributions[id] = e
	return nil
}

func (r *Registry) AddPhoto(ctx context.Context, photo models.PhotoRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.photos[photo.ID]; ok {
		return apperr.Persistence("add photo", photo.ID, errDuplicateID)
	}
	if err := r.touchLocked(photo.BatchID, photo.CreatedAt); err != nil {
		return err
	}
	r.photos[photo.ID] = photo
	return nil
}

func (r *Registry) ListPhotos(ctx context.Context, batchID string) ([]models.PhotoRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make(map[string]struct{})
	for _, e := range r.liveContributionsLocked(batchID) {
		live[e.ID] = struct{}{}
	}

	out := make([]models.PhotoRecord, 0)
	for _, p := range r.photos {
		if p.BatchID != batchID {
			continue
		}
		if p.ContributionID != "" {
			if _, ok := live[p.ContributionID]; !ok {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Registry) liveContributionsLocked(batchID string) []models.ContributionEvent {
	out := make([]models.ContributionEvent, 0)
	for _, e := range r.contributions {
		if e.BatchID == batchID && e.DeletedAt == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// touchLocked bumps the batch version and drops its fingerprint.
func (r *Registry) touchLocked(batchID string, at time.Time) error {
	b, ok := r.batches[batchID]
	if !ok || b.IsDeleted() {
		return repository.BatchNotFound("touch batch", batchID)
	}
	b.Version++
	b.Fingerprint = nil
	b.UpdatedAt = at
	r.batches[batchID] = b
	return nil
}
