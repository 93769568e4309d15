package middleware

import (
	"net/http"
	"time"

	"github.com/nkiryanov/schoolauth/internal/metrics"
	"github.com/nkiryanov/schoolauth/internal/models"
)

type logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Response writer that remembers what was sent and who asked
type requestWriter struct {
	http.ResponseWriter
	status   int
	size     int
	identity *models.Identity // set by RequireAuth
}

func (w *requestWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.size += size
	return size, err
}

func (w *requestWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.status = statusCode
}

// Remember authenticated caller if the writer belongs to RequestMiddleware
func rememberIdentity(w http.ResponseWriter, identity models.Identity) {
	if rw, ok := w.(*requestWriter); ok {
		rw.identity = &identity
	}
}

// RequestMiddleware logs every request and observes its duration.
// Server errors are logged with warn level.
func RequestMiddleware(l logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &requestWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			m.ObserveHTTP(r.Method, rw.status, duration)

			args := []any{
				"method", r.Method,
				"uri", r.RequestURI,
				"duration", duration,
				"status", rw.status,
				"size", rw.size,
			}
			if rw.identity != nil {
				args = append(args, "user_id", rw.identity.UserID, "role", rw.identity.Role)
			}

			if rw.status >= http.StatusInternalServerError {
				l.Warn("HTTP request failed", args...)
				return
			}
			l.Info("got HTTP request", args...)
		})
	}
}
