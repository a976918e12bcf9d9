package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/book-club/internal/repository"
	"github.com/sakif/book-club/internal/repository/memory"
)

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry

	r.ObserveRequest("/x", http.MethodGet, "200", time.Millisecond)
	r.TrackInFlight(http.MethodGet)()

	store := memory.New()
	assert.Same(t, store, InstrumentStore(store, nil))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObserveRequest(t *testing.T) {
	r := NewRegistry()

	r.ObserveRequest("/api/clubs/{id}", http.MethodGet, "200", 20*time.Millisecond)
	r.ObserveRequest("/api/clubs/{id}", http.MethodGet, "200", 30*time.Millisecond)
	r.ObserveRequest("/api/clubs/{id}", http.MethodGet, "404", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.HTTPRequestsTotal.WithLabelValues("/api/clubs/{id}", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.HTTPRequestsTotal.WithLabelValues("/api/clubs/{id}", "GET", "404")))
}

func TestTrackInFlight(t *testing.T) {
	r := NewRegistry()

	done := r.TrackInFlight(http.MethodPost)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.HTTPRequestsInFlight.WithLabelValues("POST")))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(r.HTTPRequestsInFlight.WithLabelValues("POST")))
}

func TestInstrumentStore(t *testing.T) {
	r := NewRegistry()
	store := InstrumentStore(memory.New(), r)
	ctx := context.Background()

	_, err := store.Load(ctx, repository.KeyClubs)
	require.ErrorIs(t, err, repository.ErrKeyNotFound)
	require.NoError(t, store.Save(ctx, repository.KeyClubs, []byte(`[]`)))
	_, err = store.Load(ctx, repository.KeyClubs)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreOpsTotal.WithLabelValues(repository.KeyClubs, "load", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreOpsTotal.WithLabelValues(repository.KeyClubs, "load", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StoreOpsTotal.WithLabelValues(repository.KeyClubs, "save", "ok")))
}

func TestHandlerServesTextFormat(t *testing.T) {
	r := NewRegistry()
	r.ObserveRequest("/healthz", http.MethodGet, "200", time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "bookclub_http_requests_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
