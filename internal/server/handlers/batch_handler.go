package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/compost/internal/domain/models"
)

// IntakeService describes the intake operations the HTTP layer exposes.
type IntakeService interface {
	RegisterFacility(ctx context.Context, f models.Facility) (models.Facility, error)
	GetFacility(ctx context.Context, code string) (models.Facility, error)
	CreateBatch(ctx context.Context, req models.CreateBatchRequest) (models.Batch, error)
	GetBatch(ctx context.Context, id string) (models.Batch, error)
	RemoveBatch(ctx context.Context, id string) error
	RegisterContribution(ctx context.Context, batchID string, req models.ContributionRequest) (models.ContributionEvent, error)
	RemoveContribution(ctx context.Context, id string) error
	AttachPhoto(ctx context.Context, batchID string, req models.PhotoRequest) (models.PhotoRecord, error)
	MassSummary(ctx context.Context, batchID string) (models.MassSummary, error)
}

// BeltService describes the station transitions.
type BeltService interface {
	Advance(ctx context.Context, batchID string) (models.Batch, error)
	Finalize(ctx context.Context, batchID string, finalMass float64) (models.Batch, error)
	Guidance(ctx context.Context, batchID string) (models.Guidance, error)
	AdvanceFacility(ctx context.Context, facilityCode, cycle string) (models.WeeklyAdvanceReport, error)
}

// IntegrityService describes certification and verification.
type IntegrityService interface {
	Certify(ctx context.Context, batchID string) (models.Certification, error)
	Verify(ctx context.Context, batchID string) (models.Verification, error)
}

// BatchHandler serves batch, contribution and photo routes.
type BatchHandler struct {
	intake    IntakeService
	belt      BeltService
	integrity IntegrityService
	logger    *zap.Logger
}

// NewBatchHandler constructs the HTTP handler adapter.
func NewBatchHandler(intake IntakeService, belt BeltService, integrity IntegrityService, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{intake: intake, belt: belt, integrity: integrity, logger: logger}
}

// Create opens a new batch.
func (h *BatchHandler) Create(c *gin.Context) {
	var req models.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	b, err := h.intake.CreateBatch(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// Get returns a live batch.
func (h *BatchHandler) Get(c *gin.Context) {
	b, err := h.intake.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Delete tombstones a batch.
func (h *BatchHandler) Delete(c *gin.Context) {
	if err := h.intake.RemoveBatch(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Guidance returns the decay projection of a batch.
func (h *BatchHandler) Guidance(c *gin.Context) {
	g, err := h.belt.Guidance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// Mass returns the delivery summary of a batch.
func (h *BatchHandler) Mass(c *gin.Context) {
	summary, err := h.intake.MassSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// AddContribution records a delivery.
func (h *BatchHandler) AddContribution(c *gin.Context) {
	var req models.ContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	event, err := h.intake.RegisterContribution(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// DeleteContribution tombstones a delivery.
func (h *BatchHandler) DeleteContribution(c *gin.Context) {
	if err := h.intake.RemoveContribution(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddPhoto attaches a photo reference.
func (h *BatchHandler) AddPhoto(c *gin.Context) {
	var req models.PhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	photo, err := h.intake.AttachPhoto(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, photo)
}

// Advance moves a batch to the next station.
func (h *BatchHandler) Advance(c *gin.Context) {
	b, err := h.belt.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Finalize closes a batch with its final mass.
func (h *BatchHandler) Finalize(c *gin.Context) {
	var req models.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	b, err := h.belt.Finalize(c.Request.Context(), c.Param("id"), req.FinalMass)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Certify fingerprints the current batch state.
func (h *BatchHandler) Certify(c *gin.Context) {
	cert, err := h.integrity.Certify(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

// Verify compares the stored fingerprint with the current state.
func (h *BatchHandler) Verify(c *gin.Context) {
	v, err := h.integrity.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
