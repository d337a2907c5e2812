package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finguru/backend-api/internal/service"
	"github.com/finguru/backend-api/pkg/jobs"
)

type mockAccounts struct {
	calls  []string
	err    error
	onSync func()
}

func (m *mockAccounts) MarkSynced(ctx context.Context, userID string, syncedAt time.Time) (int64, error) {
	m.calls = append(m.calls, userID)
	if m.onSync != nil {
		m.onSync()
	}
	if m.err != nil {
		return 0, m.err
	}
	return 2, nil
}

type mockMarker struct {
	keys      map[string]bool
	existsErr error
}

func (m *mockMarker) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.keys[key], nil
}

func (m *mockMarker) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	m.keys[key] = true
	return nil
}

func TestSyncHandlerMarksAccounts(t *testing.T) {
	accounts := &mockAccounts{}
	h := NewSyncHandler(accounts, nil, service.NewMetricsService(), zap.NewNop())

	err := h.Handle(context.Background(), jobs.Job{ID: "job-1", Body: []byte(`{"userId":"u1","action":"sync"}`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, accounts.calls)
}

func TestSyncHandlerRejectsMalformed(t *testing.T) {
	bodies := map[string]string{
		"not json":       `{"userId":`,
		"missing user":   `{"action":"sync"}`,
		"unknown action": `{"userId":"u1","action":"purge"}`,
	}
	for name, body := range bodies {
		accounts := &mockAccounts{}
		h := NewSyncHandler(accounts, nil, nil, nil)

		err := h.Handle(context.Background(), jobs.Job{ID: "job-1", Body: []byte(body)})
		require.Error(t, err, name)
		assert.True(t, jobs.IsPermanent(err), name)
		assert.True(t, errors.Is(err, ErrMalformedJob), name)
		assert.Empty(t, accounts.calls, name)
	}
}

func TestSyncHandlerSkipsRedelivery(t *testing.T) {
	accounts := &mockAccounts{}
	marker := &mockMarker{}
	h := NewSyncHandler(accounts, marker, nil, nil)
	job := jobs.Job{ID: "job-1", Body: []byte(`{"userId":"u1","action":"sync"}`)}

	require.NoError(t, h.Handle(context.Background(), job))
	require.NoError(t, h.Handle(context.Background(), job))
	assert.Len(t, accounts.calls, 1)
}

func TestSyncHandlerLeavesNoMarkerOnFailure(t *testing.T) {
	accounts := &mockAccounts{err: errors.New("database unavailable")}
	marker := &mockMarker{}
	h := NewSyncHandler(accounts, marker, nil, nil)
	job := jobs.Job{ID: "job-1", Body: []byte(`{"userId":"u1","action":"sync"}`)}

	err := h.Handle(context.Background(), job)
	require.Error(t, err)
	assert.False(t, jobs.IsPermanent(err))
	assert.Empty(t, marker.keys)

	accounts.err = nil
	require.NoError(t, h.Handle(context.Background(), job))
	assert.Len(t, accounts.calls, 2)
}

func TestSyncHandlerMarksDoneOnlyAfterSync(t *testing.T) {
	marker := &mockMarker{}
	accounts := &mockAccounts{}
	accounts.onSync = func() {
		// A crash here must leave the job eligible for redelivery.
		assert.Empty(t, marker.keys)
	}
	h := NewSyncHandler(accounts, marker, nil, nil)

	require.NoError(t, h.Handle(context.Background(), jobs.Job{ID: "job-1", Body: []byte(`{"userId":"u1","action":"sync"}`)}))
	assert.True(t, marker.keys[doneKey("job-1")])
}

func TestSyncHandlerWithoutJobIDAlwaysProcesses(t *testing.T) {
	accounts := &mockAccounts{}
	marker := &mockMarker{}
	h := NewSyncHandler(accounts, marker, nil, nil)

	require.NoError(t, h.Handle(context.Background(), jobs.Job{Body: []byte(`{"userId":"u1","action":"sync"}`)}))
	require.NoError(t, h.Handle(context.Background(), jobs.Job{Body: []byte(`{"userId":"u2","action":"sync"}`)}))
	assert.Equal(t, []string{"u1", "u2"}, accounts.calls)
	assert.Empty(t, marker.keys)
}

func TestSyncHandlerProceedsWhenMarkerFails(t *testing.T) {
	accounts := &mockAccounts{}
	h := NewSyncHandler(accounts, &mockMarker{existsErr: errors.New("redis down")}, nil, nil)

	err := h.Handle(context.Background(), jobs.Job{ID: "job-1", Body: []byte(`{"userId":"u1","action":"sync"}`)})
	require.NoError(t, err)
	assert.Len(t, accounts.calls, 1)
}
