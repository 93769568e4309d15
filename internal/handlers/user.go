package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/handlers/userctx"
	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/models"
)

func handleMe() http.Handler {
	type response struct {
		ID        uuid.UUID   `json:"id"`
		Role      models.Role `json:"role"`
		TenantID  *string     `json:"tenant_id,omitempty"`
		ExpiresAt time.Time   `json:"expires_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{
			ID:        identity.UserID,
			Role:      identity.Role,
			TenantID:  identity.TenantID,
			ExpiresAt: identity.ExpiresAt,
		})
	})
}

// Route level role check lets super and branch admins in; the tenant is checked here.
// Super admin may act on any tenant, branch admin on its own only
func handleTenantScope() http.Handler {
	type response struct {
		Tenant string      `json:"tenant"`
		Role   models.Role `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		tenant := r.PathValue("tenant")
		if !identity.CanAccessTenant(tenant) {
			render.ServiceError(w, "Forbidden", http.StatusForbidden)
			return
		}

		render.JSON(w, response{Tenant: tenant, Role: identity.Role})
	})
}

type accountResponse struct {
	models.Profile
	Approved bool `json:"approved"`
	Active   bool `json:"active"`
}

func newAccountResponse(u models.User) accountResponse {
	return accountResponse{Profile: u.Profile(), Approved: u.Approved, Active: u.Active}
}

// Approve the pending account or withdraw the approval
func handleSetApproved(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Approved *bool `json:"approved" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		userID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			renderError(w, apperrors.ErrUserNotFound, l)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.SetApproved(r.Context(), identity, userID, *data.Approved)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newAccountResponse(user))
	})
}

// Deactivated user can't login and loses all refresh tokens
func handleSetActive(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Active *bool `json:"active" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		userID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			renderError(w, apperrors.ErrUserNotFound, l)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.SetActive(r.Context(), identity, userID, *data.Active)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newAccountResponse(user))
	})
}
