package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finguru/backend-api/internal/models"
	"github.com/finguru/backend-api/internal/service"
	"github.com/finguru/backend-api/pkg/jobs"
)

// ErrMalformedJob is returned for bodies that can never be processed.
var ErrMalformedJob = errors.New("malformed sync job")

const doneTTL = 24 * time.Hour

type accountSyncer interface {
	MarkSynced(ctx context.Context, userID string, syncedAt time.Time) (int64, error)
}

type deliveryMarker interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// SyncHandler processes transaction-sync jobs.
type SyncHandler struct {
	accounts accountSyncer
	seen     deliveryMarker
	metrics  *service.MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewSyncHandler constructs a handler. seen may be nil to disable
// redelivery detection. Jobs without an ID are never treated as redeliveries.
func NewSyncHandler(accounts accountSyncer, seen deliveryMarker, metrics *service.MetricsService, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{accounts: accounts, seen: seen, metrics: metrics, logger: logger, now: time.Now}
}

// Handle decodes the job and records the sync. Malformed bodies fail
// permanently; store errors are returned for retry. A job is only marked done
// after MarkSynced succeeds, so a crash mid-job leads to reprocessing.
func (h *SyncHandler) Handle(ctx context.Context, job jobs.Job) (err error) {
	defer func() { h.metrics.RecordSyncJob(err) }()

	payload, err := decodeSyncJob(job.Body)
	if err != nil {
		h.logger.Warn("discarding sync job", zap.String("job_id", job.ID), zap.Error(err))
		return jobs.Permanent(err)
	}

	if h.alreadyDone(ctx, job.ID) {
		h.logger.Info("skipping duplicate sync job", zap.String("job_id", job.ID))
		return nil
	}

	touched, err := h.accounts.MarkSynced(ctx, payload.UserID, h.now().UTC())
	if err != nil {
		return fmt.Errorf("sync accounts for %s: %w", payload.UserID, err)
	}
	h.markDone(ctx, job.ID)

	h.logger.Info("accounts synced",
		zap.String("job_id", job.ID),
		zap.String("user_id", payload.UserID),
		zap.Int64("accounts", touched),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

func (h *SyncHandler) alreadyDone(ctx context.Context, jobID string) bool {
	if jobID == "" || h.seen == nil {
		return false
	}
	done, err := h.seen.Exists(ctx, doneKey(jobID))
	if err != nil {
		h.logger.Warn("redelivery check failed", zap.String("job_id", jobID), zap.Error(err))
		return false
	}
	return done
}

func (h *SyncHandler) markDone(ctx context.Context, jobID string) {
	if jobID == "" || h.seen == nil {
		return
	}
	if err := h.seen.Set(ctx, doneKey(jobID), h.now().UTC().Format(time.RFC3339), doneTTL); err != nil {
		h.logger.Warn("failed to record finished sync job", zap.String("job_id", jobID), zap.Error(err))
	}
}

func decodeSyncJob(body []byte) (models.SyncJob, error) {
	var payload models.SyncJob
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	payload.UserID = strings.TrimSpace(payload.UserID)
	if payload.UserID == "" {
		return payload, fmt.Errorf("%w: missing userId", ErrMalformedJob)
	}
	if !payload.Action.Valid() {
		return payload, fmt.Errorf("%w: unknown action %q", ErrMalformedJob, payload.Action)
	}
	return payload, nil
}

func doneKey(jobID string) string {
	return "sync:done:" + jobID
}
