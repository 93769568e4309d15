package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/metrics"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/notify"
	"github.com/nkiryanov/schoolauth/internal/repository"
	"github.com/nkiryanov/schoolauth/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/schoolauth/internal/service/ratelimit"
)

const defaultResetTTL = time.Hour

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks and return false for malformed hashes
	Compare(hashedPassword string, password string) bool
}

type Config struct {
	// Hasher for new passwords and password checks. Argon2id if not set
	Hasher PasswordHasher

	// Password policy for change and reset
	Policy PasswordPolicy

	// Password reset token lifetime, 1 hour if not set
	ResetTTL time.Duration

	// Failed logins limiter, not limited if not set
	Limiter ratelimit.Limiter

	// Reset token delivery, tokens are dropped if not set
	Notifier notify.Notifier

	Metrics *metrics.Metrics
	Logger  logger.Logger

	// Clock, time.Now if not set
	Now func() time.Time
}

type LoginResult struct {
	Tokens  models.TokenPair
	Profile models.Profile
}

// Auth service
type AuthService struct {
	// Manager to issue and rotate tokens
	tokens *tokenmanager.TokenManager

	// hasher to hash or compare user passwords
	hasher PasswordHasher

	// Hash compared when user not found, so the response time does not tell if user exists
	dummyHash string

	policy   PasswordPolicy
	resetTTL time.Duration
	limiter  ratelimit.Limiter
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   logger.Logger
	now      func() time.Time

	// Repository to access long term data
	storage repository.Storage
}

func NewService(cfg Config, tokens *tokenmanager.TokenManager, storage repository.Storage) (*AuthService, error) {
	if tokens == nil || storage == nil {
		return nil, errors.New("token manager and storage must not be nil")
	}

	if cfg.Hasher == nil {
		h, err := NewArgon2Hasher(DefaultArgon2Params)
		if err != nil {
			return nil, err
		}
		cfg.Hasher = h
	}
	if cfg.ResetTTL == 0 {
		cfg.ResetTTL = defaultResetTTL
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{Logger: cfg.Logger}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	dummyHash, err := cfg.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("hasher failed. Err: %w", err)
	}

	return &AuthService{
		tokens:    tokens,
		hasher:    cfg.Hasher,
		dummyHash: dummyHash,
		policy:    cfg.Policy.withDefaults(),
		resetTTL:  cfg.ResetTTL,
		limiter:   cfg.Limiter,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
		storage:   storage,
	}, nil
}

// Emails are compared case insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login user with email and password
// Unknown, inactive users and wrong passwords give the same apperrors.ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, email string, password string) (res LoginResult, err error) {
	defer func() { s.metrics.Login(err) }()

	email = NormalizeEmail(email)

	if err := s.limiter.Check(ctx, email); err != nil {
		if errors.Is(err, apperrors.ErrRateLimited) {
			return res, err
		}
		s.logger.Warn("login limiter is unavailable", "error", err)
	}

	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		user = models.User{}
	default:
		return res, fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}

	// Order of checks is fixed: hash is compared for every request
	var matched bool
	if user.ID == uuid.Nil || !user.Active {
		s.hasher.Compare(s.dummyHash, password)
	} else {
		matched = s.hasher.Compare(user.HashedPassword, password)
	}

	if !matched {
		s.loginFailed(ctx, email)
		return res, apperrors.ErrInvalidCredentials
	}

	if user.Role.RequiresApproval() && !user.Approved {
		return res, apperrors.ErrPendingApproval
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn("login limiter is unavailable", "error", err)
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return res, err
	}

	return LoginResult{Tokens: pair, Profile: user.Profile()}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email string) {
	if err := s.limiter.Fail(ctx, email); err != nil {
		s.logger.Warn("login limiter is unavailable", "error", err)
	}
}

// Exchange refresh token for new token pair
// Presented token becomes unusable. Reusing it revokes all user tokens
func (s *AuthService) Refresh(ctx context.Context, refresh string) (pair models.TokenPair, err error) {
	defer func() { s.metrics.Refresh(err) }()

	rotated, next, err := s.tokens.RotateRefresh(ctx, refresh)
	if err != nil {
		if errors.Is(err, apperrors.ErrTokenReuseDetected) {
			s.logger.Warn("refresh token reuse detected, user tokens revoked", "user_id", rotated.UserID)
		}
		return pair, err
	}

	// Role, tenant and flags may change since the previous token was issued
	user, err := s.storage.User().GetUserByID(ctx, rotated.UserID)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		return pair, apperrors.ErrInvalidToken
	default:
		return pair, fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}

	if !user.Active {
		if _, err := s.tokens.RevokeAll(ctx, user.ID); err != nil {
			return pair, err
		}
		return pair, apperrors.ErrAccountInactive
	}
	if user.Role.RequiresApproval() && !user.Approved {
		return pair, apperrors.ErrPendingApproval
	}

	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{Access: access, Refresh: next}, nil
}

// Revoke the refresh token of the caller. Unknown and revoked tokens are ignored
func (s *AuthService) Logout(ctx context.Context, identity models.Identity, refresh string) error {
	return s.tokens.RevokeRefresh(ctx, identity.UserID, refresh)
}

// Change password and revoke all refresh tokens of the user
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, current string, newPassword string) (err error) {
	defer func() { s.metrics.Password("change", err) }()

	user, err := s.storage.User().GetUserByID(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.hasher.Compare(s.dummyHash, current)
		return apperrors.ErrInvalidCredentials
	default:
		return fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}

	// Access token outlives deactivation
	if !user.Active {
		return apperrors.ErrAccountInactive
	}

	if !s.hasher.Compare(user.HashedPassword, current) {
		return apperrors.ErrInvalidCredentials
	}

	if err := s.policy.Check(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't hash password. Err: %w", err)
	}

	var revoked int64
	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		if err := tx.User().UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}
		n, err := tx.Refresh().RevokeAllForUser(ctx, user.ID, s.now())
		revoked = n
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}

	s.logger.Info("password changed", "user_id", user.ID, "revoked_tokens", revoked)
	return nil
}

// Start password reset. The result does not tell if the email is known
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { s.metrics.Password("forgot", err) }()

	user, err := s.storage.User().GetUserByEmail(ctx, NormalizeEmail(email))
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		return nil
	default:
		return fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}

	if !user.Active {
		return nil
	}

	// Failures below are logged only: the caller must not learn the user exists
	raw, hash, err := tokenmanager.NewOpaqueToken()
	if err != nil {
		s.logger.Error("can't generate reset token", "user_id", user.ID, "error", err)
		return nil
	}

	now := s.now()
	token, err := s.storage.Reset().Create(ctx, models.ResetToken{
		UserID:    user.ID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.resetTTL),
	})
	if err != nil {
		s.logger.Error("can't save reset token", "user_id", user.ID, "error", err)
		return nil
	}

	err = s.notifier.PasswordReset(ctx, notify.ResetMessage{
		UserID:    user.ID,
		Email:     user.Email,
		Token:     raw,
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		s.logger.Error("can't deliver reset token", "user_id", user.ID, "error", err)
		return nil
	}

	s.logger.Info("password reset requested", "user_id", user.ID, "expires_at", token.ExpiresAt)
	return nil
}

// Set new password with reset token. Token is usable once
// All refresh tokens of the user are revoked
func (s *AuthService) ResetPassword(ctx context.Context, resetToken string, newPassword string) (err error) {
	defer func() { s.metrics.Password("reset", err) }()

	// Weak password must not burn the token
	if err := s.policy.Check(newPassword); err != nil {
		return err
	}

	if resetToken == "" {
		return apperrors.ErrInvalidToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't hash password. Err: %w", err)
	}

	var userID uuid.UUID
	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		now := s.now()

		token, err := tx.Reset().Consume(ctx, tokenmanager.HashToken(resetToken), now)
		if err != nil {
			return err
		}
		userID = token.UserID

		if err := tx.User().UpdatePassword(ctx, token.UserID, hash); err != nil {
			return err
		}

		_, err = tx.Refresh().RevokeAllForUser(ctx, token.UserID, now)
		return err
	})

	switch {
	case err == nil:
		s.logger.Info("password reset", "user_id", userID)
		return nil
	case errors.Is(err, apperrors.ErrResetTokenNotFound):
		return apperrors.ErrInvalidToken
	default:
		return fmt.Errorf("%w: %w", apperrors.ErrServiceUnavailable, err)
	}
}

// Verify access token of the request
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.Identity, error) {
	return s.tokens.ParseAccess(ctx, access)
}

func (s *AuthService) RefreshTTL() time.Duration {
	return s.tokens.RefreshTTL()
}
