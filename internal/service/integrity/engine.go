package integrity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository"
)

// Ledger receives every successful certification. Implementations live in the
// sheets repository; a nil Ledger disables the audit trail.
type Ledger interface {
	RecordCertification(ctx context.Context, c models.Certification) error
}

// Engine certifies batches and verifies stored fingerprints.
type Engine struct {
	repo   repository.Registry
	ledger Ledger
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine wires an integrity engine.
func NewEngine(repo repository.Registry, ledger Ledger, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{repo: repo, ledger: ledger, logger: logger, now: time.Now}
}

// Snapshot loads the batch together with the snapshot of its current state.
func (e *Engine) Snapshot(ctx context.Context, batchID string) (models.Batch, Snapshot, error) {
	b, err := e.repo.GetBatch(ctx, batchID)
	if err != nil {
		return models.Batch{}, Snapshot{}, err
	}
	events, err := e.repo.ListContributions(ctx, batchID)
	if err != nil {
		return models.Batch{}, Snapshot{}, err
	}
	photos, err := e.repo.ListPhotos(ctx, batchID)
	if err != nil {
		return models.Batch{}, Snapshot{}, err
	}
	return b, BuildSnapshot(b, events, photos), nil
}

// Certify computes the fingerprint of the batch and stores it. The write is guarded by
// the version read with the snapshot, so a concurrent mutation makes Certify fail with a
// version conflict instead of storing a stale fingerprint.
func (e *Engine) Certify(ctx context.Context, batchID string) (models.Certification, error) {
	b, snap, err := e.Snapshot(ctx, batchID)
	if err != nil {
		return models.Certification{}, err
	}

	digest, err := ComputeFingerprint(snap)
	if err != nil {
		return models.Certification{}, err
	}

	now := e.now().UTC().Truncate(time.Millisecond)
	b.Fingerprint = &digest
	b.UpdatedAt = now
	stored, err := e.repo.UpdateBatch(ctx, b)
	if err != nil {
		return models.Certification{}, err
	}

	cert := models.Certification{
		BatchID:      stored.ID,
		BatchCode:    stored.Code,
		FacilityCode: stored.FacilityCode,
		Fingerprint:  digest,
		Version:      stored.Version,
		CertifiedAt:  now,
	}
	e.logger.Info("batch certified",
		zap.String("batch_code", cert.BatchCode),
		zap.String("facility", cert.FacilityCode),
		zap.String("fingerprint", digest),
		zap.Int64("version", cert.Version),
	)

	if e.ledger != nil {
		if err := e.ledger.RecordCertification(ctx, cert); err != nil {
			e.logger.Error("failed to record certification in ledger",
				zap.String("batch_code", cert.BatchCode),
				zap.Error(err),
			)
		}
	}
	return cert, nil
}

// Verify recomputes the fingerprint from current state and compares it with the stored one.
// An uncertified batch never matches.
func (e *Engine) Verify(ctx context.Context, batchID string) (models.Verification, error) {
	b, snap, err := e.Snapshot(ctx, batchID)
	if err != nil {
		return models.Verification{}, err
	}

	computed, err := ComputeFingerprint(snap)
	if err != nil {
		return models.Verification{}, err
	}

	out := models.Verification{
		BatchID:   b.ID,
		BatchCode: b.Code,
		Computed:  computed,
	}
	if b.Fingerprint != nil {
		out.Stored = *b.Fingerprint
		out.Certified = true
		out.Match = computed == out.Stored
	}

	if out.Certified && !out.Match {
		e.logger.Warn("fingerprint mismatch",
			zap.String("batch_code", b.Code),
			zap.String("stored", out.Stored),
			zap.String("computed", computed),
		)
	}
	return out, nil
}
