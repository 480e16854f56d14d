package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestOpsRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "oncocentre_test_total", Help: "test"}).Inc()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	healthy := NewOpsRouter(reg, map[string]Check{
		"database": func(context.Context) error { return nil },
	}, logger)

	t.Run("healthz", func(t *testing.T) {
		rec := get(t, healthy, "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("readyz ok", func(t *testing.T) {
		rec := get(t, healthy, "/readyz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"database":"ok"}`, rec.Body.String())
	})

	t.Run("readyz failing check", func(t *testing.T) {
		failing := NewOpsRouter(reg, map[string]Check{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}, logger)
		rec := get(t, failing, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"database":"ok","redis":"unavailable"}`, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "refused")
	})

	t.Run("metrics", func(t *testing.T) {
		rec := get(t, healthy, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "oncocentre_test_total 1")
	})

	t.Run("no application routes", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, healthy, "/records").Code)
	})
}
