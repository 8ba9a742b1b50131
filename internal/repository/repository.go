// Package repository defines the batch registry shared by every storage backend.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/models"
)

// ErrVersionConflict indicates the batch changed since it was read.
var ErrVersionConflict = errors.New("batch version conflict")

// ErrDuplicateCode indicates another live batch of the facility already uses the code.
var ErrDuplicateCode = errors.New("batch code already in use")

// Registry owns batch records and their contributions and photos. Every read path skips
// tombstoned records. Mutations of a batch are guarded by its Version: UpdateBatch only
// succeeds when the stored version equals the given one, and bumps it.
type Registry interface {
	UpsertFacility(ctx context.Context, facility models.Facility) error
	GetFacility(ctx context.Context, code string) (models.Facility, error)

	CreateBatch(ctx context.Context, batch models.Batch) error
	GetBatch(ctx context.Context, id string) (models.Batch, error)
	GetBatchByCode(ctx context.Context, facilityCode, code string) (models.Batch, error)
	ListProcessingBatches(ctx context.Context, facilityCode string) ([]models.Batch, error)
	// UpdateBatch persists the mutable lifecycle fields of batch and returns the stored record.
	UpdateBatch(ctx context.Context, batch models.Batch) (models.Batch, error)
	SoftDeleteBatch(ctx context.Context, id string, at time.Time) error

	// AddContribution, SoftDeleteContribution and AddPhoto bump the owning batch version
	// and clear its fingerprint.
	AddContribution(ctx context.Context, event models.ContributionEvent) error
	GetContribution(ctx context.Context, id string) (models.ContributionEvent, error)
	ListContributions(ctx context.Context, batchID string) ([]models.ContributionEvent, error)
	SoftDeleteContribution(ctx context.Context, id string, at time.Time) error
	AddPhoto(ctx context.Context, photo models.PhotoRecord) error
	// ListPhotos returns photos attached to the batch directly or to one of its live contributions.
	ListPhotos(ctx context.Context, batchID string) ([]models.PhotoRecord, error)
}

// Conflict wraps ErrVersionConflict as a persistence failure on ref.
func Conflict(op, ref string) error {
	return apperr.Persistence(op, ref, ErrVersionConflict)
}

// DuplicateCode wraps ErrDuplicateCode as a validation failure on code.
func DuplicateCode(op, code string) error {
	return &apperr.Error{Kind: apperr.KindValidation, Op: op, Ref: code, Err: ErrDuplicateCode}
}

// BatchNotFound is the not-found failure shared by all backends.
func BatchNotFound(op, ref string) error {
	return apperr.NotFound(op, ref, "batch not found")
}
