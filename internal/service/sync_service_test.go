package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finguru/backend-api/internal/models"
	appErrors "github.com/finguru/backend-api/pkg/errors"
)

type publishedJob struct {
	queue     string
	messageID string
	body      []byte
}

type mockPublisher struct {
	published []publishedJob
	err       error
}

func (m *mockPublisher) PublishWithID(ctx context.Context, queue, messageID string, payload interface{}) error {
	if m.err != nil {
		return m.err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.published = append(m.published, publishedJob{queue: queue, messageID: messageID, body: body})
	return nil
}

func TestSyncServiceRequestSync(t *testing.T) {
	pub := &mockPublisher{}
	svc := NewSyncService(pub, "transaction-sync", NewMetricsService(), zap.NewNop())

	res, err := svc.RequestSync(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.TransactionsSynced)
	assert.NotEmpty(t, res.JobID)

	require.Len(t, pub.published, 1)
	job := pub.published[0]
	assert.Equal(t, "transaction-sync", job.queue)
	assert.Equal(t, res.JobID, job.messageID)
	assert.JSONEq(t, `{"userId":"u1","action":"sync"}`, string(job.body))
}

func TestSyncServiceDispatchFailure(t *testing.T) {
	pub := &mockPublisher{err: appErrors.WrapAs(errors.New("connection refused"), appErrors.ErrDispatch)}
	svc := NewSyncService(pub, "transaction-sync", nil, nil)

	res, err := svc.RequestSync(context.Background(), "u1")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, appErrors.ErrDispatch))
	assert.Equal(t, "sync could not be started, try again", appErrors.FromError(err).Message)
}

func TestSyncServiceWrapsTransportError(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker gone")}
	svc := NewSyncService(pub, "", nil, nil)

	_, err := svc.RequestSync(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDispatch))
}

func TestSyncServiceRequiresUser(t *testing.T) {
	pub := &mockPublisher{}
	svc := NewSyncService(pub, "transaction-sync", nil, nil)

	_, err := svc.RequestSync(context.Background(), " ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, pub.published)
}

func TestSyncJobPayloadShape(t *testing.T) {
	body, err := json.Marshal(models.SyncJob{UserID: "u1", Action: models.SyncActionSync})
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":"u1","action":"sync"}`, string(body))
}
