package contact

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vaani-voice/backend/internal/models"
	"github.com/vaani-voice/backend/pkg/response"
)

// Handler handles contact form HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a contact handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /api/contact. Returns the stored lead with 201.
func (h *Handler) Create(c *gin.Context) {
	var in models.ContactInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "Invalid request body", "")
		return
	}

	lead, err := h.svc.Submit(c.Request.Context(), in)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(c, verr.Message, verr.Field)
			return
		}
		h.logger.Error("submit contact failed", zap.Error(err))
		response.Internal(c, "Failed to submit request")
		return
	}
	response.Created(c, lead)
}
