package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/logger"
)

// Render service error with the status code of the error kind
// Errors that have no kind are logged and rendered as internal error
func renderError(w http.ResponseWriter, err error, l logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenReuseDetected):
		render.ServiceError(w, "Token reuse detected", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenExpired):
		render.ServiceError(w, "Token expired", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrInvalidToken):
		render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrAccountInactive):
		render.ServiceError(w, "Account inactive", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrUnauthenticated):
		render.ServiceError(w, "Unauthenticated", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrPendingApproval):
		render.ServiceError(w, "Account pending approval", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrForbidden):
		render.ServiceError(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ServiceError(w, "User not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrPolicyViolation):
		render.ServiceError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrRateLimited):
		render.ServiceError(w, "Too many attempts", http.StatusTooManyRequests)
	case errors.Is(err, apperrors.ErrServiceUnavailable):
		l.Error("service unavailable", "error", err)
		render.ServiceError(w, "Service unavailable", http.StatusServiceUnavailable)
	default:
		l.Error("unexpected error", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
