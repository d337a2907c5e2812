package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/finguru/backend-api/internal/models"
	appErrors "github.com/finguru/backend-api/pkg/errors"
)

// TokenConfig configures the signing secret and token lifetimes.
type TokenConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// TokenService signs and verifies HS256 bearer tokens.
type TokenService struct {
	secret []byte
	config TokenConfig
	now    func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(config TokenConfig) *TokenService {
	if config.AccessExpiry <= 0 {
		config.AccessExpiry = 15 * time.Minute
	}
	if config.RefreshExpiry <= 0 {
		config.RefreshExpiry = 7 * 24 * time.Hour
	}
	return &TokenService{secret: []byte(config.Secret), config: config, now: time.Now}
}

// AccessExpiry returns the access token lifetime.
func (s *TokenService) AccessExpiry() time.Duration {
	return s.config.AccessExpiry
}

// IssueAccess signs a short-lived token carrying the user id and email.
func (s *TokenService) IssueAccess(userID, email string) (string, time.Time, error) {
	return s.sign(models.TokenClaims{UserID: userID, Email: email}, s.config.AccessExpiry, "")
}

// IssueRefresh signs a long-lived token carrying only the user id. Each token
// gets a random jti so two tokens minted in the same second still differ.
func (s *TokenService) IssueRefresh(userID string) (string, time.Time, error) {
	return s.sign(models.TokenClaims{UserID: userID}, s.config.RefreshExpiry, uuid.NewString())
}

func (s *TokenService) sign(claims models.TokenClaims, ttl time.Duration, jti string) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.config.Issuer,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry. It returns ErrExpiredToken once the
// token is past exp and ErrInvalidToken for every other failure.
func (s *TokenService) Verify(tokenString string) (*models.TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(tokenString, &models.TokenClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.WrapAs(err, appErrors.ErrExpiredToken)
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInvalidToken)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "invalid token claims")
	}
	return claims, nil
}
