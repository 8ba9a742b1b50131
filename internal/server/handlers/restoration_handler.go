package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/models"
)

// RestorationService applies restoration mappings.
type RestorationService interface {
	Restore(ctx context.Context, req models.RestorationRequest) (models.RestorationResponse, error)
}

// RestorationHandler serves the restoration route. Partial failures are returned with a
// success envelope; only a malformed request yields the failure envelope.
type RestorationHandler struct {
	svc    RestorationService
	logger *zap.Logger
}

// NewRestorationHandler constructs the HTTP handler adapter.
func NewRestorationHandler(svc RestorationService, logger *zap.Logger) *RestorationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RestorationHandler{svc: svc, logger: logger}
}

// Restore applies the mapping in the request body.
func (h *RestorationHandler) Restore(c *gin.Context) {
	var req models.RestorationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid restoration payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.FailureEnvelope{Error: "invalid request body"})
		return
	}

	resp, err := h.svc.Restore(c.Request.Context(), req)
	if err != nil {
		status := statusFor(err)
		message := apperr.Describe(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("restoration failed", zap.Error(err))
			message = "internal error"
		}
		c.JSON(status, models.FailureEnvelope{Error: message})
		return
	}

	if len(resp.Errors) > 0 {
		h.logger.Warn("restoration finished with errors",
			zap.String("facility", resp.Facility),
			zap.Int("errors", len(resp.Errors)),
		)
	}
	c.JSON(http.StatusOK, resp)
}
