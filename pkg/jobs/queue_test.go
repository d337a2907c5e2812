package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJob(t *testing.T) {
	done := make(chan error, 1)
	q := NewQueue("sync", func(ctx context.Context, job Job) error {
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "1", Done: func(err error) { done <- err }}))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var calls int32
	done := make(chan error, 1)
	handlerErr := errors.New("database unavailable")
	q := NewQueue("sync", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return handlerErr
	}, QueueConfig{MaxRetries: 2, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "1", Done: func(err error) { done <- err }}))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, handlerErr)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	case <-time.After(2 * time.Second):
		t.Fatal("job never exhausted retries")
	}
}

func TestQueueRetrySucceeds(t *testing.T) {
	var calls int32
	done := make(chan error, 1)
	q := NewQueue("sync", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "1", Done: func(err error) { done <- err }}))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("sync", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(context.Background(), Job{ID: "1"}))
}

func TestQueuePermanentFailureSkipsRetries(t *testing.T) {
	var calls int32
	done := make(chan error, 1)
	q := NewQueue("sync", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(errors.New("malformed body"))
	}, QueueConfig{MaxRetries: 5, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "1", Done: func(err error) { done <- err }}))

	select {
	case err := <-done:
		assert.True(t, IsPermanent(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	case <-time.After(time.Second):
		t.Fatal("job was not finished")
	}
}
