// Package metrics exposes Prometheus metrics for the HTTP API and storage.
//
// Every Registry owns its own prometheus.Registry instead of using the global
// default one, so two servers (or two tests) in one process never collide on
// metric names. A nil *Registry is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/book-club/internal/repository"
)

const namespace = "bookclub"

type Registry struct {
	reg *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	StoreOpsTotal   *prometheus.CounterVec
	StoreOpDuration *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests processed, by route pattern, method and status code.",
			},
			[]string{"route", "method", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
		HTTPRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "HTTP requests currently being served.",
			},
			[]string{"method"},
		),

		StoreOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Collection store loads and saves, by key, operation and result.",
			},
			[]string{"key", "op", "result"},
		),
		StoreOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Collection store latency in seconds.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"key", "op"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveRequest records one finished HTTP request.
func (r *Registry) ObserveRequest(route, method, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns the matching decrement.
func (r *Registry) TrackInFlight(method string) func() {
	if r == nil {
		return func() {}
	}
	g := r.HTTPRequestsInFlight.WithLabelValues(method)
	g.Inc()
	return g.Dec
}

func (r *Registry) observeStore(key, op string, err error, d time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, repository.ErrKeyNotFound):
		result = "miss"
	case err != nil:
		result = "error"
	}
	r.StoreOpsTotal.WithLabelValues(key, op, result).Inc()
	r.StoreOpDuration.WithLabelValues(key, op).Observe(d.Seconds())
}

// InstrumentStore wraps store so every Load and Save is counted and timed.
func InstrumentStore(store repository.CollectionStore, r *Registry) repository.CollectionStore {
	if r == nil {
		return store
	}
	return &instrumentedStore{next: store, reg: r}
}

type instrumentedStore struct {
	next repository.CollectionStore
	reg  *Registry
}

func (s *instrumentedStore) Load(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.next.Load(ctx, key)
	s.reg.observeStore(key, "load", err, time.Since(start))
	return data, err
}

func (s *instrumentedStore) Save(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := s.next.Save(ctx, key, data)
	s.reg.observeStore(key, "save", err, time.Since(start))
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
