package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/handlers/userctx"
	"github.com/nkiryanov/schoolauth/internal/metrics"
	"github.com/nkiryanov/schoolauth/internal/models"
)

type identityParser interface {
	Authenticate(ctx context.Context, accessToken string) (models.Identity, error)
}

type Auth struct {
	parser  identityParser
	metrics *metrics.Metrics
}

func NewAuth(parser identityParser, m *metrics.Metrics) *Auth {
	return &Auth{parser: parser, metrics: m}
}

// RequireAuth rejects requests without a valid bearer access token.
// When roles are given the caller must hold one of them. Super admins get no implicit pass.
func (a *Auth) RequireAuth(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				a.metrics.Authz(apperrors.ErrUnauthenticated)
				unauthenticated(w)
				return
			}

			identity, err := a.parser.Authenticate(r.Context(), token)
			if err != nil {
				a.metrics.Authz(apperrors.ErrUnauthenticated)
				unauthenticated(w)
				return
			}

			if len(roles) > 0 && !identity.HasRole(roles...) {
				a.metrics.Authz(apperrors.ErrForbidden)
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}

			a.metrics.Authz(nil)
			rememberIdentity(w, identity)
			next.ServeHTTP(w, r.WithContext(userctx.New(r.Context(), identity)))
		})
	}
}

// BearerToken extracts token from 'Authorization: Bearer <token>' header
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	render.ServiceError(w, "Unauthenticated", http.StatusUnauthorized)
}
