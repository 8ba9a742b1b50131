// Package intake registers facilities, new batches and the deliveries and photos attached to them.
package intake

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/decay"
	"github.com/mamadbah2/compost/internal/domain/geofence"
	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository"
)

// Service owns every write that adds material or evidence to a batch.
type Service struct {
	repo   repository.Registry
	radius float64
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewService wires an intake service. radius is the geofence radius in meters.
func NewService(repo repository.Registry, radius float64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if radius <= 0 {
		radius = geofence.DefaultRadiusMeters
	}
	return &Service{
		repo:   repo,
		radius: radius,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// RegisterFacility creates or updates a facility.
func (s *Service) RegisterFacility(ctx context.Context, f models.Facility) (models.Facility, error) {
	f.Code = strings.TrimSpace(f.Code)
	f.Name = strings.TrimSpace(f.Name)
	if f.Code == "" {
		return models.Facility{}, apperr.Validation("register facility", "", "facility code is required")
	}
	if f.Name == "" {
		return models.Facility{}, apperr.Validation("register facility", f.Code, "facility name is required")
	}
	if err := validateCoordinate("register facility", f.Code, f.Latitude, f.Longitude); err != nil {
		return models.Facility{}, err
	}

	now := s.stamp()
	f.CreatedAt = now
	f.UpdatedAt = now
	if err := s.repo.UpsertFacility(ctx, f); err != nil {
		return models.Facility{}, err
	}

	stored, err := s.repo.GetFacility(ctx, f.Code)
	if err != nil {
		return models.Facility{}, err
	}
	s.logger.Info("facility registered", zap.String("facility", stored.Code))
	return stored, nil
}

// GetFacility returns a facility by code.
func (s *Service) GetFacility(ctx context.Context, code string) (models.Facility, error) {
	return s.repo.GetFacility(ctx, code)
}

// CreateBatch opens a new batch at the first station.
func (s *Service) CreateBatch(ctx context.Context, req models.CreateBatchRequest) (models.Batch, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return models.Batch{}, apperr.Validation("create batch", "", "batch code is required")
	}
	if strings.TrimSpace(req.CreatorID) == "" {
		return models.Batch{}, apperr.Validation("create batch", code, "creator_id is required")
	}
	if math.IsNaN(req.InitialMass) || math.IsInf(req.InitialMass, 0) || req.InitialMass <= 0 {
		return models.Batch{}, apperr.Validation("create batch", code, "initial mass must be positive")
	}
	if req.DecayRate != nil {
		if err := decay.ValidateRate(*req.DecayRate); err != nil {
			return models.Batch{}, err
		}
	}
	if err := validateCoordinate("create batch", code, req.Latitude, req.Longitude); err != nil {
		return models.Batch{}, err
	}

	facility, err := s.repo.GetFacility(ctx, strings.TrimSpace(req.FacilityCode))
	if err != nil {
		return models.Batch{}, err
	}

	now := s.stamp()
	b := models.Batch{
		ID:           s.newID(),
		Code:         code,
		FacilityCode: facility.Code,
		Status:       models.BatchProcessing,
		Station:      models.FirstStation,
		Week:         models.FirstStation,
		InitialMass:  req.InitialMass,
		CurrentMass:  req.InitialMass,
		DecayRate:    req.DecayRate,
		StartedAt:    now,
		UpdatedAt:    now,
		CreatorID:    strings.TrimSpace(req.CreatorID),
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Version:      1,
	}
	if err := s.repo.CreateBatch(ctx, b); err != nil {
		return models.Batch{}, err
	}

	s.logger.Info("batch created",
		zap.String("batch_id", b.ID),
		zap.String("batch_code", b.Code),
		zap.String("facility", b.FacilityCode),
		zap.Float64("initial_mass", b.InitialMass),
	)
	return b, nil
}

// GetBatch returns a live batch.
func (s *Service) GetBatch(ctx context.Context, id string) (models.Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// RemoveBatch tombstones a batch. It disappears from every read but is never erased.
func (s *Service) RemoveBatch(ctx context.Context, id string) error {
	if err := s.repo.SoftDeleteBatch(ctx, id, s.stamp()); err != nil {
		return err
	}
	s.logger.Info("batch removed", zap.String("batch_id", id))
	return nil
}

// RegisterContribution records a delivery into a processing batch. When both the facility
// and the delivery carry coordinates the geofence verdict is stored with the event; an
// outside verdict is flagged, not rejected.
func (s *Service) RegisterContribution(ctx context.Context, batchID string, req models.ContributionRequest) (models.ContributionEvent, error) {
	contributor := strings.TrimSpace(req.ContributorID)
	if contributor == "" {
		return models.ContributionEvent{}, apperr.Validation("register contribution", batchID, "contributor_id is required")
	}
	if math.IsNaN(req.Mass) || math.IsInf(req.Mass, 0) || req.Mass <= 0 {
		return models.ContributionEvent{}, apperr.Validation("register contribution", batchID, "mass must be positive")
	}
	if err := validateCoordinate("register contribution", batchID, req.Latitude, req.Longitude); err != nil {
		return models.ContributionEvent{}, err
	}

	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return models.ContributionEvent{}, err
	}
	if b.IsFinalized() {
		return models.ContributionEvent{}, apperr.InvalidState("register contribution", b.Code, "batch is finalized")
	}

	event := models.ContributionEvent{
		ID:            s.newID(),
		BatchID:       b.ID,
		BatchCode:     b.Code,
		Mass:          decay.Round(req.Mass),
		ContributorID: contributor,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		CreatedAt:     s.stamp(),
	}

	if req.Latitude != nil && req.Longitude != nil {
		facility, err := s.repo.GetFacility(ctx, b.FacilityCode)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return models.ContributionEvent{}, err
		}
		verdict := geofence.Validate(facility.Latitude, facility.Longitude, req.Latitude, req.Longitude, s.radius)
		if verdict.Valid {
			event.GeofenceDistanceM = verdict.Distance
			event.OutsideGeofence = verdict.Outside
		}
	}

	if err := s.repo.AddContribution(ctx, event); err != nil {
		return models.ContributionEvent{}, err
	}

	fields := []zap.Field{
		zap.String("contribution_id", event.ID),
		zap.String("batch_code", b.Code),
		zap.String("contributor_id", contributor),
		zap.Float64("mass", event.Mass),
	}
	if event.OutsideGeofence {
		s.logger.Warn("contribution outside geofence", append(fields, zap.Intp("distance_m", event.GeofenceDistanceM))...)
	} else {
		s.logger.Info("contribution registered", fields...)
	}
	return event, nil
}

// RemoveContribution tombstones a delivery.
func (s *Service) RemoveContribution(ctx context.Context, id string) error {
	if err := s.repo.SoftDeleteContribution(ctx, id, s.stamp()); err != nil {
		return err
	}
	s.logger.Info("contribution removed", zap.String("contribution_id", id))
	return nil
}

// AttachPhoto stores a photo reference on a batch or on one of its live contributions.
func (s *Service) AttachPhoto(ctx context.Context, batchID string, req models.PhotoRequest) (models.PhotoRecord, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return models.PhotoRecord{}, apperr.Validation("attach photo", batchID, "reference is required")
	}
	if !req.Category.Valid() {
		return models.PhotoRecord{}, apperr.Validation("attach photo", batchID,
			fmt.Sprintf("unknown photo category %q", req.Category))
	}

	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return models.PhotoRecord{}, err
	}

	if req.ContributionID != "" {
		event, err := s.repo.GetContribution(ctx, req.ContributionID)
		if err != nil {
			return models.PhotoRecord{}, err
		}
		if event.BatchID != b.ID {
			return models.PhotoRecord{}, apperr.Validation("attach photo", req.ContributionID,
				"contribution belongs to another batch")
		}
	}

	photo := models.PhotoRecord{
		ID:             s.newID(),
		BatchID:        b.ID,
		ContributionID: req.ContributionID,
		Reference:      reference,
		Category:       req.Category,
		CreatedAt:      s.stamp(),
	}
	if err := s.repo.AddPhoto(ctx, photo); err != nil {
		return models.PhotoRecord{}, err
	}

	s.logger.Info("photo attached",
		zap.String("photo_id", photo.ID),
		zap.String("batch_code", b.Code),
		zap.String("category", string(photo.Category)),
	)
	return photo, nil
}

// MassSummary aggregates the live deliveries of a batch.
func (s *Service) MassSummary(ctx context.Context, batchID string) (models.MassSummary, error) {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return models.MassSummary{}, err
	}
	events, err := s.repo.ListContributions(ctx, batchID)
	if err != nil {
		return models.MassSummary{}, err
	}

	out := models.MassSummary{
		BatchCode:        b.Code,
		InitialBatchMass: b.InitialMass,
		CurrentBatchMass: b.CurrentMass,
	}
	contributors := make(map[string]struct{})
	var total float64
	for _, e := range events {
		out.Contributions++
		total += e.Mass
		contributors[e.ContributorID] = struct{}{}
		if e.OutsideGeofence {
			out.OutsideGeofence++
		}
	}
	out.ContributedMass = decay.Round(total)
	out.Contributors = len(contributors)
	return out, nil
}

func validateCoordinate(op, ref string, lat, lon *float64) error {
	if (lat == nil) != (lon == nil) {
		return apperr.Validation(op, ref, "latitude and longitude must be given together")
	}
	if lat == nil {
		return nil
	}
	if math.IsNaN(*lat) || *lat < -90 || *lat > 90 {
		return apperr.Validation(op, ref, fmt.Sprintf("latitude %v outside [-90,90]", *lat))
	}
	if math.IsNaN(*lon) || *lon < -180 || *lon > 180 {
		return apperr.Validation(op, ref, fmt.Sprintf("longitude %v outside [-180,180]", *lon))
	}
	return nil
}

func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}
