package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/finguru/backend-api/internal/middleware"
	"github.com/finguru/backend-api/internal/models"
	appErrors "github.com/finguru/backend-api/pkg/errors"
)

type syncServiceMock struct {
	userID string
	err    error
}

func (m *syncServiceMock) RequestSync(ctx context.Context, userID string) (*models.SyncResponse, error) {
	m.userID = userID
	if m.err != nil {
		return nil, m.err
	}
	return &models.SyncResponse{Success: true, JobID: "job-1", RequestedAt: time.Now()}, nil
}

func TestSyncHandlerAccepted(t *testing.T) {
	svc := &syncServiceMock{}
	handler := NewSyncHandler(svc)
	c, w := jsonContext(t, http.MethodPost, "/accounts/sync", "")
	c.Set(middleware.ContextUserKey, &models.TokenClaims{UserID: "u1", Email: "alice@example.com"})

	handler.Sync(c)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "u1", svc.userID)
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestSyncHandlerDispatchFailure(t *testing.T) {
	svc := &syncServiceMock{err: appErrors.WrapAs(errors.New("connection refused"), appErrors.ErrDispatch)}
	handler := NewSyncHandler(svc)
	c, w := jsonContext(t, http.MethodPost, "/accounts/sync", "")
	c.Set(middleware.ContextUserKey, &models.TokenClaims{UserID: "u1", Email: "alice@example.com"})

	handler.Sync(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "sync could not be started, try again")
	assert.NotContains(t, w.Body.String(), `"success"`)
}

func TestSyncHandlerRequiresClaims(t *testing.T) {
	handler := NewSyncHandler(&syncServiceMock{})
	c, w := jsonContext(t, http.MethodPost, "/accounts/sync", "")

	handler.Sync(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
