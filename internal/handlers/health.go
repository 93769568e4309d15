package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/schoolauth/internal/handlers/render"
	"github.com/nkiryanov/schoolauth/internal/logger"
)

const healthTimeout = 2 * time.Second

func handleHealth(p pinger, l logger.Logger) http.Handler {
	type response struct {
		Status string `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			l.Warn("health check failed", "error", err)
			render.JSONWithStatus(w, response{Status: "unavailable"}, http.StatusServiceUnavailable)
			return
		}

		render.JSON(w, response{Status: "ok"})
	})
}
