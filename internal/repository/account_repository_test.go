package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkSynced(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET last_synced_at = $2 WHERE user_id = $1")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.MarkSynced(context.Background(), "u1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
