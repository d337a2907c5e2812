package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/finguru/backend-api/internal/models"
	appErrors "github.com/finguru/backend-api/pkg/errors"
)

const uniqueViolation = pq.ErrorCode("23505")

// SessionRepository persists refresh-token sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new instance of SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session. A token collision yields ErrConflict.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	return insertSession(ctx, r.db, session)
}

// FindByToken returns the session holding the given refresh token, or sql.ErrNoRows.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	const query = `SELECT id, user_id, token, expires_at, revoked, revoked_at, created_at, ip_address, user_agent FROM sessions WHERE token = $1 LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by token: %w", err)
	}
	return &session, nil
}

// Revoke marks an active session revoked. It returns sql.ErrNoRows when the
// session does not exist or was already revoked.
func (r *SessionRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	return revokeSession(ctx, r.db, id, revokedAt)
}

// Rotate revokes the old session and inserts its replacement atomically. Only
// one caller can win the revoke, so a replayed token cannot mint a second session.
func (r *SessionRepository) Rotate(ctx context.Context, oldID string, next *models.Session) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = revokeSession(ctx, tx, oldID, time.Now().UTC()); err != nil {
		return err
	}
	if err = insertSession(ctx, tx, next); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

func insertSession(ctx context.Context, ext sqlx.ExtContext, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sessions (id, user_id, token, expires_at, revoked, revoked_at, created_at, ip_address, user_agent) VALUES (:id, :user_id, :token, :expires_at, :revoked, :revoked_at, :created_at, :ip_address, :user_agent)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, session); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "session token already exists")
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func revokeSession(ctx context.Context, ext sqlx.ExtContext, id string, revokedAt time.Time) error {
	const query = `UPDATE sessions SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`
	res, err := ext.ExecContext(ctx, query, id, revokedAt)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke session rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
