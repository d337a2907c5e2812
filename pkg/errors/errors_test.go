package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	cloned := Clone(ErrInvalidRefreshToken, "")
	wrapped := fmt.Errorf("refresh: %w", WrapAs(errors.New("no rows"), ErrInvalidRefreshToken))

	assert.True(t, errors.Is(cloned, ErrInvalidRefreshToken))
	assert.True(t, errors.Is(wrapped, ErrInvalidRefreshToken))
	assert.False(t, errors.Is(cloned, ErrInvalidCredentials))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))
	assert.Equal(t, ErrInternal.Code, FromError(errors.New("boom")).Code)
	assert.Equal(t, ErrTimeout.Code, FromError(context.DeadlineExceeded).Code)

	dispatch := WrapAs(errors.New("refused"), ErrDispatch)
	assert.Same(t, dispatch, FromError(fmt.Errorf("sync: %w", dispatch)))
}

func TestInternal(t *testing.T) {
	assert.Equal(t, ErrTimeout.Code, Internal(fmt.Errorf("store: %w", context.DeadlineExceeded), "failed").Code)
	err := Internal(errors.New("boom"), "failed to load user")
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, "failed to load user: boom", err.Error())
}

func TestCloneKeepsOriginal(t *testing.T) {
	clone := Clone(ErrUnauthorized, "invalid authorization header")
	assert.Equal(t, "unauthorized", ErrUnauthorized.Message)
	assert.Equal(t, "invalid authorization header", clone.Message)
	assert.Nil(t, Clone(nil, "x"))
}
