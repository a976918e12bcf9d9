package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/book-club/internal/metrics"
)

func newRouter(logger *slog.Logger, reg *metrics.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Metrics(reg))
	r.Use(Logger(logger))
	r.Get("/clubs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fine"))
	})
	return r
}

func TestLogger_RecordsRouteAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r := newRouter(logger, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clubs/abc", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	line := buf.String()
	assert.Contains(t, line, `"route":"/clubs/{id}"`)
	assert.Contains(t, line, `"path":"/clubs/abc"`)
	assert.Contains(t, line, `"status":418`)
	assert.Contains(t, line, `"bytes":15`)
	assert.Contains(t, line, `"level":"WARN"`)
}

func TestLogger_ImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r := newRouter(logger, nil)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Contains(t, buf.String(), `"status":200`)
	assert.Contains(t, buf.String(), `"level":"INFO"`)
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	reg := metrics.NewRegistry()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	r := newRouter(logger, reg)

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/clubs/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 3.0, testutil.ToFloat64(reg.HTTPRequestsTotal.WithLabelValues("/clubs/{id}", "GET", "418")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.HTTPRequestsTotal.WithLabelValues("unmatched", "GET", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.HTTPRequestsInFlight.WithLabelValues("GET")))
}
