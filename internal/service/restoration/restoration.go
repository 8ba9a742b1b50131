// Package restoration puts batches of a facility back on known stations after the belt
// state was lost or corrupted.
package restoration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/decay"
	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository"
)

// Service applies restoration mappings.
type Service struct {
	repo   repository.Registry
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a restoration service.
func NewService(repo repository.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Restore overwrites each mapped batch with the state it would have at the target station:
// processing, week equal to the station, and the decayed mass. Entries are handled in code
// order and independently; a failing entry is reported and the rest still run. An error is
// returned only when the request itself is malformed.
func (s *Service) Restore(ctx context.Context, req models.RestorationRequest) (models.RestorationResponse, error) {
	facility := strings.TrimSpace(req.FacilityCode)
	if facility == "" {
		return models.RestorationResponse{}, apperr.Validation("restore", "", "facility_code is required")
	}
	if len(req.Mapping) == 0 {
		return models.RestorationResponse{}, apperr.Validation("restore", facility, "mapping must not be empty")
	}

	codes := make([]string, 0, len(req.Mapping))
	for code := range req.Mapping {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	log := s.logger.With(zap.String("facility", facility))
	log.Info("restoration started", zap.Int("entries", len(codes)))

	// Once started every entry is attempted, even if the caller goes away.
	runCtx := context.WithoutCancel(ctx)
	resp := models.RestorationResponse{
		Success:  true,
		Facility: facility,
		Restored: []models.RestoredBatch{},
		Errors:   []models.ItemError{},
	}
	for _, code := range codes {
		restored, err := s.restoreOne(runCtx, facility, code, req.Mapping[code])
		if err != nil {
			err = apperr.PartialItem("restore", code, err)
			log.Warn("batch not restored", zap.String("batch_code", code), zap.Error(err))
			resp.Errors = append(resp.Errors, models.ItemError{
				BatchCode: code,
				Kind:      string(apperr.CauseKind(err)),
				Error:     apperr.Describe(err),
			})
			continue
		}
		resp.Restored = append(resp.Restored, restored)
	}
	resp.Timestamp = s.stamp()

	log.Info("restoration finished",
		zap.Int("restored", len(resp.Restored)),
		zap.Int("failed", len(resp.Errors)),
	)
	return resp, nil
}

func (s *Service) restoreOne(ctx context.Context, facility, code string, station int) (models.RestoredBatch, error) {
	if station < models.FirstStation || station > models.StationCount {
		return models.RestoredBatch{}, apperr.Validation("restore", code,
			fmt.Sprintf("station %d outside %d..%d", station, models.FirstStation, models.StationCount))
	}

	b, err := s.repo.GetBatchByCode(ctx, facility, code)
	if err != nil {
		return models.RestoredBatch{}, err
	}

	mass, err := decay.MassAt(station, b.InitialMass, b.EffectiveDecayRate())
	if err != nil {
		return models.RestoredBatch{}, err
	}

	b.Status = models.BatchProcessing
	b.Station = station
	b.Week = station
	b.CurrentMass = mass
	b.ClosedAt = nil
	b.FinalizedAt = nil
	b.Fingerprint = nil
	b.UpdatedAt = s.stamp()

	stored, err := s.repo.UpdateBatch(ctx, b)
	if err != nil {
		return models.RestoredBatch{}, err
	}
	return models.RestoredBatch{
		BatchCode: stored.Code,
		Station:   stored.Station,
		Week:      stored.Week,
		Mass:      stored.CurrentMass,
	}, nil
}

func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}
