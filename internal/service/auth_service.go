package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finguru/backend-api/internal/models"
	appErrors "github.com/finguru/backend-api/pkg/errors"
)

type authUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateWithSession(ctx context.Context, user *models.User, session *models.Session) error
}

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	Revoke(ctx context.Context, id string, revokedAt time.Time) error
	Rotate(ctx context.Context, oldID string, next *models.Session) error
}

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	// RevokeOnRotate revokes the presented refresh token when it is exchanged.
	// When false the old token stays usable until it expires.
	RevokeOnRotate bool
	StoreTimeout   time.Duration
}

// AuthService provides register, login and refresh-token rotation.
type AuthService struct {
	users     authUserStore
	sessions  sessionStore
	hasher    *PasswordHasher
	tokens    *TokenService
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserStore, sessions sessionStore, hasher *PasswordHasher, tokens *TokenService, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &AuthService{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		tokens:    tokens,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
	svc.validator.RegisterValidation("secret_len", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxSecretBytes
	})
	svc.validator.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return svc
}

// Register creates a user with its first session and returns a token pair.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (res *models.AuthResponse, err error) {
	defer func() { s.metrics.RecordAuthEvent("register", err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	email := normalizeEmail(req.Email)

	findCtx, cancel := s.storeCtx(ctx)
	existing, err := s.users.FindByEmail(findCtx, email)
	cancel()
	if err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateUser, "")
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check existing user")
	}

	digest, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: digest,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        req.Phone,
	}

	pair, err := s.issuePair(user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	createCtx, cancel := s.storeCtx(ctx)
	err = s.users.CreateWithSession(createCtx, user, pair.session)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, appErrors.ErrDuplicateUser):
			return nil, appErrors.Clone(appErrors.ErrDuplicateUser, "")
		case errors.Is(err, appErrors.ErrConflict):
			return nil, err
		default:
			return nil, appErrors.Internal(err, "failed to create user")
		}
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return pair.response(user), nil
}

// Login authenticates a user and opens a new session alongside any existing ones.
// Unknown email and wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (res *models.AuthResponse, err error) {
	defer func() { s.metrics.RecordAuthEvent("login", err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	findCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.FindByEmail(findCtx, normalizeEmail(req.Email))
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.hasher.VerifyUnknown(ctx, req.Password)
			return nil, invalidCredentials()
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}

	if !s.hasher.Verify(ctx, req.Password, user.PasswordHash) {
		return nil, invalidCredentials()
	}

	pair, err := s.issuePair(user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	createCtx, cancel := s.storeCtx(ctx)
	err = s.sessions.Create(createCtx, pair.session)
	cancel()
	if err != nil {
		if errors.Is(err, appErrors.ErrConflict) {
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to persist session")
	}

	return pair.response(user), nil
}

// Refresh exchanges a refresh token for a new pair. Unknown, revoked, expired
// and forged tokens are indistinguishable to the caller.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (res *models.AuthResponse, err error) {
	defer func() { s.metrics.RecordAuthEvent("refresh", err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	claims, err := s.tokens.Verify(req.RefreshToken)
	if err != nil {
		return nil, s.rejectRefresh("token verification failed", err)
	}

	findCtx, cancel := s.storeCtx(ctx)
	session, err := s.sessions.FindByToken(findCtx, req.RefreshToken)
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.rejectRefresh("session not found", nil)
		}
		return nil, appErrors.Internal(err, "failed to fetch session")
	}
	if session.Revoked {
		return nil, s.rejectRefresh("session revoked", nil)
	}
	if !session.IsValid(s.now()) {
		return nil, s.rejectRefresh("session expired", nil)
	}
	if session.UserID != claims.UserID {
		return nil, s.rejectRefresh("session owner mismatch", nil)
	}

	userCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.FindByID(userCtx, session.UserID)
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.rejectRefresh("session owner no longer exists", nil)
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}

	pair, err := s.issuePair(user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	writeCtx, cancel := s.storeCtx(ctx)
	if s.config.RevokeOnRotate {
		err = s.sessions.Rotate(writeCtx, session.ID, pair.session)
	} else {
		err = s.sessions.Create(writeCtx, pair.session)
	}
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, s.rejectRefresh("session already rotated", nil)
		case errors.Is(err, appErrors.ErrConflict):
			return nil, err
		default:
			return nil, appErrors.Internal(err, "failed to persist session")
		}
	}

	return pair.response(user), nil
}

// Logout revokes the caller's session for the given refresh token. Logging out
// an already revoked session succeeds.
func (s *AuthService) Logout(ctx context.Context, userID string, req models.LogoutRequest) (err error) {
	defer func() { s.metrics.RecordAuthEvent("logout", err) }()

	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid logout payload")
	}

	findCtx, cancel := s.storeCtx(ctx)
	session, err := s.sessions.FindByToken(findCtx, req.RefreshToken)
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
		}
		return appErrors.Internal(err, "failed to fetch session")
	}
	if session.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "session does not belong to user")
	}

	revokeCtx, cancel := s.storeCtx(ctx)
	err = s.sessions.Revoke(revokeCtx, session.ID, s.now().UTC())
	cancel()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Internal(err, "failed to revoke session")
	}
	return nil
}

// ValidateToken verifies an access token and returns its claims. Refresh
// tokens are rejected because they carry no email.
func (s *AuthService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "not an access token")
	}
	return claims, nil
}

// CurrentUser returns the profile of the authenticated user.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.UserInfo, error) {
	key := userCacheKey(userID)
	var cached models.UserInfo
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	findCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.FindByID(findCtx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}

	info := user.Info()
	s.cache.Set(ctx, key, info, 0)
	return &info, nil
}

type tokenPair struct {
	access   string
	session  *models.Session
	issuedAt time.Time
	ttl      time.Duration
}

func (p *tokenPair) response(user *models.User) *models.AuthResponse {
	return &models.AuthResponse{
		AccessToken:  p.access,
		RefreshToken: p.session.Token,
		ExpiresIn:    int64(p.ttl.Seconds()),
		IssuedAt:     p.issuedAt,
		User:         user.Info(),
	}
}

func (s *AuthService) issuePair(user *models.User, ip, userAgent string) (*tokenPair, error) {
	access, _, err := s.tokens.IssueAccess(user.ID, user.Email)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	refresh, refreshExpiry, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create refresh token")
	}

	now := s.now().UTC()
	return &tokenPair{
		access: access,
		session: &models.Session{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Token:     refresh,
			ExpiresAt: refreshExpiry,
			CreatedAt: now,
			IPAddress: ip,
			UserAgent: userAgent,
		},
		issuedAt: now,
		ttl:      s.tokens.AccessExpiry(),
	}, nil
}

func (s *AuthService) rejectRefresh(reason string, cause error) error {
	fields := []zap.Field{zap.String("reason", reason)}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	s.logger.Debug("refresh rejected", fields...)
	return appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
}

func (s *AuthService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

func invalidCredentials() error {
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userCacheKey(userID string) string {
	return "user:" + userID
}
