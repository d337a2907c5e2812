package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/finguru/backend-api/pkg/errors"
)

func newTestTokenService(now time.Time) *TokenService {
	svc := NewTokenService(TokenConfig{Secret: "test-secret", AccessExpiry: 15 * time.Minute, RefreshExpiry: 7 * 24 * time.Hour})
	svc.now = func() time.Time { return now }
	return svc
}

func TestTokenServiceAccessRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(now)

	token, exp, err := svc.IssueAccess("user-1", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), exp)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, exp.Unix(), claims.ExpiresAt.Unix())
}

func TestTokenServiceRefreshCarriesNoEmail(t *testing.T) {
	svc := newTestTokenService(time.Now())

	first, _, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)
	second, _, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	claims, err := svc.Verify(first)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Empty(t, claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenServiceExpiry(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(issued)
	token, exp, err := svc.IssueAccess("user-1", "alice@example.com")
	require.NoError(t, err)

	svc.now = func() time.Time { return exp.Add(-time.Second) }
	_, err = svc.Verify(token)
	require.NoError(t, err)

	svc.now = func() time.Time { return exp }
	_, err = svc.Verify(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrExpiredToken))
	assert.False(t, errors.Is(err, appErrors.ErrInvalidToken))
}

func TestTokenServiceRejectsBadSignature(t *testing.T) {
	svc := newTestTokenService(time.Now())
	other := NewTokenService(TokenConfig{Secret: "other-secret"})

	token, _, err := other.IssueAccess("user-1", "alice@example.com")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidToken))
}

func TestTokenServiceRejectsOtherAlgorithms(t *testing.T) {
	svc := newTestTokenService(time.Now())
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidToken))
}

func TestTokenServiceRejectsGarbage(t *testing.T) {
	svc := newTestTokenService(time.Now())
	for _, token := range []string{"", "abc", "a.b.c"} {
		_, err := svc.Verify(token)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidToken), token)
	}
}

func TestTokenServiceRequiresExpiry(t *testing.T) {
	svc := newTestTokenService(time.Now())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "user-1"})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidToken))
}
