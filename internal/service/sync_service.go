package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finguru/backend-api/internal/models"
	appErrors "github.com/finguru/backend-api/pkg/errors"
)

type jobPublisher interface {
	PublishWithID(ctx context.Context, queue, messageID string, payload interface{}) error
}

// SyncService hands account-sync requests to the background worker.
type SyncService struct {
	publisher jobPublisher
	queue     string
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewSyncService constructs a SyncService publishing to queue.
func NewSyncService(publisher jobPublisher, queue string, metrics *MetricsService, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue == "" {
		queue = "transaction-sync"
	}
	return &SyncService{publisher: publisher, queue: queue, metrics: metrics, logger: logger, now: time.Now}
}

// RequestSync enqueues a sync job for userID. A returned error means the sync
// did not start; success only means the broker accepted the job.
func (s *SyncService) RequestSync(ctx context.Context, userID string) (res *models.SyncResponse, err error) {
	defer func() { s.metrics.RecordSyncDispatch(err) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}

	jobID := uuid.NewString()
	job := models.SyncJob{UserID: userID, Action: models.SyncActionSync}
	if err := s.publisher.PublishWithID(ctx, s.queue, jobID, job); err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrDispatch.Code {
			return nil, err
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrDispatch)
	}

	s.logger.Info("sync requested", zap.String("user_id", userID), zap.String("job_id", jobID))
	return &models.SyncResponse{
		Success:            true,
		TransactionsSynced: 0,
		JobID:              jobID,
		RequestedAt:        s.now().UTC(),
	}, nil
}
