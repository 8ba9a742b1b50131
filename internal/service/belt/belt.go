// Package belt moves batches down the seven-station processing belt.
package belt

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/decay"
	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository"
)

const defaultWorkers = 4

// Service drives station transitions and finalization.
type Service struct {
	repo     repository.Registry
	workers  int
	logger   *zap.Logger
	now      func() time.Time
	newRunID func() string
}

// NewService wires a belt service. workers bounds the parallelism of a weekly advance.
func NewService(repo repository.Registry, workers int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Service{
		repo:     repo,
		workers:  workers,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// Advance moves one batch to the next station and recomputes its mass.
func (s *Service) Advance(ctx context.Context, batchID string) (models.Batch, error) {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return models.Batch{}, err
	}
	return s.advance(ctx, b, "", s.logger)
}

func (s *Service) advance(ctx context.Context, b models.Batch, cycle string, log *zap.Logger) (models.Batch, error) {
	if b.IsFinalized() {
		return models.Batch{}, apperr.InvalidState("advance", b.Code, "batch is finalized")
	}
	if b.Station >= models.StationCount {
		return models.Batch{}, apperr.InvalidState("advance", b.Code,
			fmt.Sprintf("batch already at station %d; finalize it instead", models.StationCount))
	}

	next := b.Station + 1
	mass, err := decay.MassAt(next, b.InitialMass, b.EffectiveDecayRate())
	if err != nil {
		return models.Batch{}, err
	}

	from := b.Station
	b.Station = next
	b.Week = next
	b.CurrentMass = mass
	b.UpdatedAt = s.stamp()
	b.Fingerprint = nil
	if cycle != "" {
		b.LastAdvanceCycle = cycle
	}

	stored, err := s.repo.UpdateBatch(ctx, b)
	if err != nil {
		return models.Batch{}, err
	}

	log.Info("batch advanced",
		zap.String("batch_code", stored.Code),
		zap.String("facility", stored.FacilityCode),
		zap.Int("from_station", from),
		zap.Int("to_station", stored.Station),
		zap.Float64("mass", stored.CurrentMass),
	)
	return stored, nil
}

// Finalize closes a batch with its weighed final mass. Finalized batches never change again.
func (s *Service) Finalize(ctx context.Context, batchID string, finalMass float64) (models.Batch, error) {
	if math.IsNaN(finalMass) || math.IsInf(finalMass, 0) {
		return models.Batch{}, apperr.Validation("finalize", batchID, "final mass must be positive")
	}
	// Checked after rounding so a stored mass is never 0.00.
	finalMass = decay.Round(finalMass)
	if finalMass <= 0 {
		return models.Batch{}, apperr.Validation("finalize", batchID, "final mass must be positive")
	}

	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return models.Batch{}, err
	}
	if b.IsFinalized() {
		return models.Batch{}, apperr.InvalidState("finalize", b.Code, "batch is already finalized")
	}
	if finalMass > b.InitialMass {
		return models.Batch{}, apperr.Validation("finalize", b.Code,
			fmt.Sprintf("final mass %.2f exceeds initial mass %.2f", finalMass, b.InitialMass))
	}

	now := s.stamp()
	b.Status = models.BatchFinalized
	b.CurrentMass = finalMass
	b.ClosedAt = &now
	finalizedAt := now
	b.FinalizedAt = &finalizedAt
	b.UpdatedAt = now
	b.Fingerprint = nil

	stored, err := s.repo.UpdateBatch(ctx, b)
	if err != nil {
		return models.Batch{}, err
	}

	expected := decay.ExpectedFinalMass(stored.InitialMass)
	s.logger.Info("batch finalized",
		zap.String("batch_code", stored.Code),
		zap.String("facility", stored.FacilityCode),
		zap.Int("station", stored.Station),
		zap.Float64("final_mass", stored.CurrentMass),
		zap.Float64("expected_final_mass", expected),
	)
	return stored, nil
}

// Guidance returns the projected decay curve plus the advisory final mass.
func (s *Service) Guidance(ctx context.Context, batchID string) (models.Guidance, error) {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return models.Guidance{}, err
	}

	rate := b.EffectiveDecayRate()
	projection, err := decay.Projection(b.InitialMass, rate)
	if err != nil {
		return models.Guidance{}, err
	}

	return models.Guidance{
		BatchCode:         b.Code,
		InitialMass:       b.InitialMass,
		DecayRate:         rate,
		Projection:        projection,
		ExpectedFinalMass: decay.ExpectedFinalMass(b.InitialMass),
	}, nil
}

// AdvanceFacility advances every processing batch of a facility once for cycle.
// Batches already advanced in the same cycle are skipped, so reruns are harmless.
// A failing batch is reported in the result and never stops the run.
func (s *Service) AdvanceFacility(ctx context.Context, facilityCode, cycle string) (models.WeeklyAdvanceReport, error) {
	if facilityCode == "" {
		return models.WeeklyAdvanceReport{}, apperr.Validation("weekly advance", "", "facility code is required")
	}
	if cycle == "" {
		return models.WeeklyAdvanceReport{}, apperr.Validation("weekly advance", facilityCode, "cycle is required")
	}

	report := models.WeeklyAdvanceReport{
		RunID:     s.newRunID(),
		Facility:  facilityCode,
		Cycle:     cycle,
		Items:     []models.AdvanceItem{},
		Errors:    []models.ItemError{},
		StartedAt: s.stamp(),
	}
	log := s.logger.With(
		zap.String("run_id", report.RunID),
		zap.String("facility", facilityCode),
		zap.String("cycle", cycle),
	)

	batches, err := s.repo.ListProcessingBatches(ctx, facilityCode)
	if err != nil {
		return models.WeeklyAdvanceReport{}, fmt.Errorf("list processing batches: %w", err)
	}
	log.Info("weekly advance started", zap.Int("batches", len(batches)))

	// Once started every batch is attempted, even if the caller goes away.
	runCtx := context.WithoutCancel(ctx)
	items := make([]itemResult, len(batches))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, b := range batches {
		g.Go(func() error {
			items[i] = s.advanceItem(runCtx, b, cycle, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range items {
		switch item.Outcome {
		case models.OutcomeAdvanced:
			report.Advanced++
		case models.OutcomeSkipped:
			report.Skipped++
		case models.OutcomeFailed:
			report.Failed++
			report.Errors = append(report.Errors, models.ItemError{
				BatchCode: item.BatchCode,
				Kind:      string(item.kind),
				Error:     item.Error,
			})
		}
		report.Items = append(report.Items, item.AdvanceItem)
	}
	report.FinishedAt = s.stamp()

	log.Info("weekly advance finished",
		zap.Int("advanced", report.Advanced),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

type itemResult struct {
	models.AdvanceItem
	kind apperr.Kind
}

func (s *Service) advanceItem(ctx context.Context, b models.Batch, cycle string, log *zap.Logger) itemResult {
	if b.LastAdvanceCycle == cycle {
		return itemResult{AdvanceItem: models.AdvanceItem{
			BatchCode: b.Code,
			Outcome:   models.OutcomeSkipped,
			Station:   b.Station,
			Mass:      b.CurrentMass,
		}}
	}

	stored, err := s.advance(ctx, b, cycle, log)
	if err != nil {
		err = apperr.PartialItem("weekly advance", b.Code, err)
		log.Warn("batch not advanced", zap.String("batch_code", b.Code), zap.Error(err))
		return itemResult{
			AdvanceItem: models.AdvanceItem{
				BatchCode: b.Code,
				Outcome:   models.OutcomeFailed,
				Station:   b.Station,
				Mass:      b.CurrentMass,
				Error:     apperr.Describe(err),
			},
			kind: apperr.CauseKind(err),
		}
	}

	return itemResult{AdvanceItem: models.AdvanceItem{
		BatchCode: stored.Code,
		Outcome:   models.OutcomeAdvanced,
		Station:   stored.Station,
		Mass:      stored.CurrentMass,
	}}
}

// stamp returns the current time at the millisecond precision every backend keeps.
func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}
