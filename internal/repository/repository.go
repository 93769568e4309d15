package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// Create user if email is free, otherwise return the existing one untouched
	EnsureUser(ctx context.Context, user models.User) (u models.User, created bool, err error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Replace password hash. Returns apperrors.ErrUserNotFound if user not exists
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error

	SetApproved(ctx context.Context, userID uuid.UUID, approved bool) error
	SetActive(ctx context.Context, userID uuid.UUID, active bool) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token if it exists in the database, even revoked or expired
	// If not found must return apperrors.ErrRefreshTokenNotFound
	GetByHash(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Atomically revoke the active token and save its successor
	// Only one concurrent caller may succeed for the same hash. Others get:
	//   - apperrors.ErrRefreshTokenNotFound if token is not known
	//   - apperrors.ErrRefreshTokenRevoked if token was revoked already
	//   - apperrors.ErrRefreshTokenExpired if token is expired
	// The presented token record is returned with revoked and expired errors too
	Rotate(ctx context.Context, tokenHash string, next models.RefreshToken, now time.Time) (models.RefreshToken, error)

	// Revoke the token only if it belongs to the user. Idempotent
	Revoke(ctx context.Context, userID uuid.UUID, tokenHash string, now time.Time) error

	// Revoke all active user tokens, returns number of revoked tokens
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)

	// Delete tokens expired before the moment
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Password reset token repository interface
type ResetTokenRepo interface {
	Create(ctx context.Context, token models.ResetToken) (models.ResetToken, error)

	// Mark token consumed if it is not consumed and not expired
	// Otherwise return apperrors.ErrResetTokenNotFound
	Consume(ctx context.Context, tokenHash string, now time.Time) (models.ResetToken, error)

	// Delete tokens expired before the moment
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Reset() ResetTokenRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
