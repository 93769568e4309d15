package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
)

const namespace = "schoolauth"

// Service metrics. All methods are safe to call on nil *Metrics
type Metrics struct {
	registry *prometheus.Registry

	LoginTotal          *prometheus.CounterVec
	RefreshTotal        *prometheus.CounterVec
	PasswordTotal       *prometheus.CounterVec
	AuthzTotal          *prometheus.CounterVec
	SweptTotal          *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers metrics in own registry together with go and process collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		LoginTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),
		RefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "Refresh token rotations by result",
			},
			[]string{"result"},
		),
		PasswordTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "password_total",
				Help:      "Password change, forgot and reset operations by result",
			},
			[]string{"operation", "result"},
		),
		AuthzTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authz_total",
				Help:      "Authorization decisions of protected routes",
			},
			[]string{"result"},
		),
		SweptTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "swept_records_total",
				Help:      "Expired records deleted by the sweeper",
			},
			[]string{"kind"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "status"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes metrics of the registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Login(err error) {
	if m == nil {
		return
	}
	m.LoginTotal.WithLabelValues(Result(err)).Inc()
}

func (m *Metrics) Refresh(err error) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(Result(err)).Inc()
}

func (m *Metrics) Password(operation string, err error) {
	if m == nil {
		return
	}
	m.PasswordTotal.WithLabelValues(operation, Result(err)).Inc()
}

func (m *Metrics) Authz(err error) {
	if m == nil {
		return
	}
	m.AuthzTotal.WithLabelValues(Result(err)).Inc()
}

func (m *Metrics) Swept(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptTotal.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

// Result converts error to low cardinality label value
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, apperrors.ErrPendingApproval):
		return "pending_approval"
	case errors.Is(err, apperrors.ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, apperrors.ErrTokenReuseDetected):
		return "token_reuse"
	case errors.Is(err, apperrors.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, apperrors.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, apperrors.ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, apperrors.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, apperrors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperrors.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
