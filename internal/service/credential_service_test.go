package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherRoundTrip(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	digest, err := h.Hash(context.Background(), "password123")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", digest)

	assert.True(t, h.Verify(context.Background(), "password123", digest))
	assert.False(t, h.Verify(context.Background(), "password124", digest))
}

func TestPasswordHasherSaltsEachDigest(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	first, err := h.Hash(context.Background(), "password123")
	require.NoError(t, err)
	second, err := h.Hash(context.Background(), "password123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestPasswordHasherRejectsOverlongSecret(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	longest := strings.Repeat("a", MaxSecretBytes)

	digest, err := h.Hash(context.Background(), longest)
	require.NoError(t, err)

	assert.True(t, h.Verify(context.Background(), longest, digest))
	assert.False(t, h.Verify(context.Background(), longest+"a", digest))
}

func TestPasswordHasherMalformedDigest(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	assert.False(t, h.Verify(context.Background(), "password123", "not-a-bcrypt-digest"))
	assert.False(t, h.VerifyUnknown(context.Background(), "password123"))
}

func TestPasswordHasherCostClamp(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0).Cost())
	assert.Equal(t, bcrypt.MinCost, NewPasswordHasher(1).Cost())
}

func TestPasswordHasherCancelled(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Hash(ctx, "password123")
	require.Error(t, err)
}
