package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/compost/internal/domain/models"
)

// FacilityHandler serves facility routes and the manual weekly advance.
type FacilityHandler struct {
	intake IntakeService
	belt   BeltService
	logger *zap.Logger
}

// NewFacilityHandler constructs the HTTP handler adapter.
func NewFacilityHandler(intake IntakeService, belt BeltService, logger *zap.Logger) *FacilityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacilityHandler{intake: intake, belt: belt, logger: logger}
}

// Put creates or updates the facility named in the path.
func (h *FacilityHandler) Put(c *gin.Context) {
	var f models.Facility
	if err := c.ShouldBindJSON(&f); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	f.Code = c.Param("code")

	stored, err := h.intake.RegisterFacility(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// Get returns a facility.
func (h *FacilityHandler) Get(c *gin.Context) {
	f, err := h.intake.GetFacility(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// Advance runs the weekly advance of the facility for the given cycle. Per-batch failures
// are part of the 200 response.
func (h *FacilityHandler) Advance(c *gin.Context) {
	var req models.WeeklyAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	report, err := h.belt.AdvanceFacility(c.Request.Context(), c.Param("code"), req.Cycle)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
