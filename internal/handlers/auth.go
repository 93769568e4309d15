package handlers

import (
	"net/http"
	"time"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/handlers/userctx"
	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/models"
)

type accessResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	User        *models.Profile `json:"user,omitempty"`
}

func newAccessResponse(access models.IssuedToken) accessResponse {
	return accessResponse{
		AccessToken: access.Value,
		TokenType:   "Bearer",
		ExpiresAt:   access.ExpiresAt,
	}
}

func handleLogin(authService authService, cookie CookieConfig, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,max=254"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := authService.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			renderError(w, err, l)
			return
		}

		setTokens(w, cookie, res.Tokens)
		response := newAccessResponse(res.Tokens.Access)
		response.User = &res.Profile
		render.JSON(w, response)
	})
}

func handleRefresh(authService authService, cookie CookieConfig, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, ok := cookie.read(r)
		if !ok {
			renderError(w, apperrors.ErrInvalidToken, l)
			return
		}

		pair, err := authService.Refresh(r.Context(), refresh)
		switch {
		case err == nil:
			setTokens(w, cookie, pair)
			render.JSON(w, newAccessResponse(pair.Access))
		default:
			// Presented cookie is useless anyway
			cookie.clear(w)
			renderError(w, err, l)
		}
	})
}

func handleLogout(authService authService, cookie CookieConfig, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		cookie.clear(w)

		if refresh, ok := cookie.read(r); ok {
			if err := authService.Logout(r.Context(), identity, refresh); err != nil {
				renderError(w, err, l)
				return
			}
		}

		render.JSON(w, response{Message: "Logged out"})
	})
}
