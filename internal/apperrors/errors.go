package apperrors

import (
	"errors"
)

// Errors returned to callers of the auth service.
// Handlers map them to HTTP statuses, so keep messages generic.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPendingApproval    = errors.New("account is pending approval")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token is expired")
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	ErrPolicyViolation    = errors.New("password does not satisfy policy")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("too many attempts")

	// Storage failures are wrapped with this error so details never leak to clients
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Errors returned by repositories
var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token is revoked")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrResetTokenNotFound = errors.New("reset token not found or already used")
)
