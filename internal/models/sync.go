package models

import "time"

// SyncAction enumerates the work a sync job can request.
type SyncAction string

const (
	SyncActionSync SyncAction = "sync"
)

// Valid reports whether the worker knows how to process the action.
func (a SyncAction) Valid() bool {
	return a == SyncActionSync
}

// SyncJob is the message body published to the sync queue.
type SyncJob struct {
	UserID string     `json:"userId"`
	Action SyncAction `json:"action"`
}

// SyncResponse mirrors the result shape returned to the dashboard.
type SyncResponse struct {
	Success            bool      `json:"success"`
	TransactionsSynced int       `json:"transactions_synced"`
	JobID              string    `json:"job_id"`
	RequestedAt        time.Time `json:"requested_at"`
}
