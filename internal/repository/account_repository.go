package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// AccountRepository records sync progress on linked bank accounts.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// MarkSynced stamps every account of the user with the sync time and returns
// the number of accounts touched.
func (r *AccountRepository) MarkSynced(ctx context.Context, userID string, syncedAt time.Time) (int64, error) {
	const query = `UPDATE accounts SET last_synced_at = $2 WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, syncedAt)
	if err != nil {
		return 0, fmt.Errorf("mark accounts synced: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark accounts synced rows: %w", err)
	}
	return affected, nil
}
