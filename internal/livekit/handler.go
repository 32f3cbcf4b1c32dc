package livekit

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vaani-voice/backend/pkg/response"
)

// CredentialIssuer is satisfied by *Issuer.
type CredentialIssuer interface {
	Issue(ctx context.Context) (*Credential, error)
}

// Handler serves connection details for the live voice demo.
type Handler struct {
	issuer CredentialIssuer
	logger *zap.Logger
}

// NewHandler creates a connection-details handler.
func NewHandler(issuer CredentialIssuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{issuer: issuer, logger: logger}
}

// GetConnectionDetails handles GET /api/connection-details.
// Returns { serverUrl, token, participantName, roomName } for a brand new demo room.
func (h *Handler) GetConnectionDetails(c *gin.Context) {
	response.NoStore(c)
	cred, err := h.issuer.Issue(c.Request.Context())
	switch {
	case err == nil:
		response.OK(c, cred)
	case errors.Is(err, ErrMisconfigured):
		h.logger.Error("connection details requested but LIVEKIT_API_KEY, LIVEKIT_API_SECRET or LIVEKIT_URL is unset")
		response.Internal(c, "Server misconfigured")
	default:
		h.logger.Error("issue credential failed", zap.Error(err))
		response.Internal(c, "Could not generate token")
	}
}
