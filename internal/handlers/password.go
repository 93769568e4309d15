package handlers

import (
	"net/http"

	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/handlers/userctx"
	"github.com/nkiryanov/schoolauth/internal/logger"
)

type messageResponse struct {
	Message string `json:"message"`
}

func handleChangePassword(authService authService, cookie CookieConfig, l logger.Logger) http.Handler {
	type request struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = authService.ChangePassword(r.Context(), identity.UserID, data.CurrentPassword, data.NewPassword)
		if err != nil {
			renderError(w, err, l)
			return
		}

		// Every refresh token of the user was revoked, the cookie too
		cookie.clear(w)
		render.JSON(w, messageResponse{Message: "Password changed"})
	})
}

func handleForgotPassword(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email,max=254"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := authService.ForgotPassword(r.Context(), data.Email); err != nil {
			renderError(w, err, l)
			return
		}

		// Same answer whether the account exists or not
		render.JSONWithStatus(w, messageResponse{Message: "If the account exists, reset instructions have been sent"}, http.StatusAccepted)
	})
}

func handleResetPassword(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Token       string `json:"token" validate:"required"`
		NewPassword string `json:"new_password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := authService.ResetPassword(r.Context(), data.Token, data.NewPassword); err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, messageResponse{Message: "Password reset"})
	})
}
