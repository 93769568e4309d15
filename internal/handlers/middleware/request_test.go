package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolauth/internal/metrics"
)

type logRecord struct {
	level string
	msg   string
	args  []any
}

// Logger that keeps records
type recordLogger struct {
	records []logRecord
}

func (l *recordLogger) Info(msg string, v ...any) {
	l.records = append(l.records, logRecord{"info", msg, v})
}

func (l *recordLogger) Warn(msg string, v ...any) {
	l.records = append(l.records, logRecord{"warn", msg, v})
}

func TestRequestMiddleware(t *testing.T) {
	get := func(t *testing.T, h http.Handler, authorization string) (int, string) {
		srv := httptest.NewServer(h)
		defer srv.Close()

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/test", nil)
		require.NoError(t, err)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err, "should make request to test server")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "should read response body")
		defer resp.Body.Close() // nolint:errcheck

		return resp.StatusCode, string(body)
	}

	teapot := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, err := w.Write([]byte("hi"))
		require.NoError(t, err, "should write response")
	})

	t.Run("anonymous request", func(t *testing.T) {
		l := &recordLogger{}
		m := metrics.New()

		code, body := get(t, RequestMiddleware(l, m)(teapot), "")

		require.Equal(t, http.StatusTeapot, code)
		require.Equal(t, "hi", body)

		require.Len(t, l.records, 1, "logger should be called once")
		rec := l.records[0]
		require.Equal(t, "info", rec.level)
		require.Equal(t, "got HTTP request", rec.msg)
		require.Len(t, rec.args, 10, "no identity fields for anonymous request")
		require.Equal(t, []any{"method", "GET", "uri", "/test"}, rec.args[:4])
		require.Equal(t, "duration", rec.args[4])
		require.NotEmpty(t, rec.args[5], "duration should not be empty")
		require.Equal(t, []any{"status", http.StatusTeapot, "size", 2}, rec.args[6:10])

		require.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration), "request duration has to be observed")
	})

	t.Run("authenticated request logs caller", func(t *testing.T) {
		l := &recordLogger{}
		h := RequestMiddleware(l, nil)(NewAuth(roleParser, nil).RequireAuth()(teapot))

		code, _ := get(t, h, "Bearer branch_admin")

		require.Equal(t, http.StatusTeapot, code)
		require.Len(t, l.records, 1)
		args := l.records[0].args
		require.Len(t, args, 14)
		require.Equal(t, "user_id", args[10])
		require.NotEmpty(t, args[11])
		require.Equal(t, "role", args[12])
		require.EqualValues(t, "branch_admin", args[13])
	})

	t.Run("rejected request has no caller", func(t *testing.T) {
		l := &recordLogger{}
		h := RequestMiddleware(l, nil)(NewAuth(roleParser, nil).RequireAuth()(teapot))

		code, _ := get(t, h, "Bearer janitor")

		require.Equal(t, http.StatusUnauthorized, code)
		require.Len(t, l.records[0].args, 10)
		require.Equal(t, http.StatusUnauthorized, l.records[0].args[7])
	})

	t.Run("server error logged as warning", func(t *testing.T) {
		l := &recordLogger{}
		m := metrics.New()
		failing := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		code, _ := get(t, RequestMiddleware(l, m)(failing), "")

		require.Equal(t, http.StatusServiceUnavailable, code)
		require.Equal(t, "warn", l.records[0].level)
		require.Equal(t, "HTTP request failed", l.records[0].msg)
	})
}
