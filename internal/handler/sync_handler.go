package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/finguru/backend-api/internal/models"
	appErrors "github.com/finguru/backend-api/pkg/errors"
	"github.com/finguru/backend-api/pkg/response"
)

type syncRequester interface {
	RequestSync(ctx context.Context, userID string) (*models.SyncResponse, error)
}

// SyncHandler starts background account syncs.
type SyncHandler struct {
	service syncRequester
}

// NewSyncHandler creates a new handler.
func NewSyncHandler(svc syncRequester) *SyncHandler {
	return &SyncHandler{service: svc}
}

// Sync godoc
// @Summary Sync linked accounts
// @Description Queue a transaction sync for the authenticated user
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Success 202 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /accounts/sync [post]
func (h *SyncHandler) Sync(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	res, err := h.service.RequestSync(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, res)
}
