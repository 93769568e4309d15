package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/handlers/middleware"
	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/metrics"
	"github.com/nkiryanov/schoolauth/internal/models"
	"github.com/nkiryanov/schoolauth/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	cookie CookieConfig,
	pinger pinger,
	m *metrics.Metrics,
	logger logger.Logger,
) http.Handler {
	cookie = cookie.withDefaults(authService.RefreshTTL())

	authz := middleware.NewAuth(authService, m)
	authenticated := authz.RequireAuth()
	admins := authz.RequireAuth(models.RoleSuperAdmin, models.RoleBranchAdmin)

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /login", handleLogin(authService, cookie, logger))
	apiauth.Handle("POST /refresh", handleRefresh(authService, cookie, logger))
	apiauth.Handle("POST /logout", authenticated(handleLogout(authService, cookie, logger)))

	apiauth.Handle("POST /password/change", authenticated(handleChangePassword(authService, cookie, logger)))
	apiauth.Handle("POST /password/forgot", handleForgotPassword(authService, logger))
	apiauth.Handle("POST /password/reset", handleResetPassword(authService, logger))

	apiauth.Handle("GET /me", authenticated(handleMe()))
	apiauth.Handle("GET /tenants/{tenant}/scope", admins(handleTenantScope()))
	apiauth.Handle("POST /users/{id}/approval", admins(handleSetApproved(userService, logger)))
	apiauth.Handle("POST /users/{id}/active", admins(handleSetActive(userService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("GET /metrics", m.Handler())
	root.Handle("GET /healthz", handleHealth(pinger, logger))

	handler := chain(root,
		middleware.RequestMiddleware(logger, m),
	)

	return handler
}

type authService interface {
	// Login user with email and password
	// Has to return apperrors.ErrInvalidCredentials for any credentials mismatch
	Login(ctx context.Context, email string, password string) (auth.LoginResult, error)

	// Rotate refresh token
	// Has to return apperrors.ErrTokenReuseDetected if revoked token presented
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Revoke refresh token of the identity. Unknown tokens are not an error
	Logout(ctx context.Context, identity models.Identity, refresh string) error

	ChangePassword(ctx context.Context, userID uuid.UUID, current string, newPassword string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken string, newPassword string) error

	// Verify access token and return identity of the caller
	Authenticate(ctx context.Context, access string) (models.Identity, error)

	RefreshTTL() time.Duration
}

// Admin moderation of user accounts
// Has to return apperrors.ErrForbidden if identity can't manage the user
// and apperrors.ErrUserNotFound if user not exists
type userService interface {
	SetApproved(ctx context.Context, identity models.Identity, userID uuid.UUID, approved bool) (models.User, error)
	SetActive(ctx context.Context, identity models.Identity, userID uuid.UUID, active bool) (models.User, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}
