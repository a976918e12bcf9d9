package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/book-club/internal/metrics"
)

// Metrics records request count, latency and in-flight requests. Requests
// are labelled by route pattern, not raw path, to keep label cardinality
// bounded by the route table.
func Metrics(reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := reg.TrackInFlight(r.Method)
			defer done()

			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			reg.ObserveRequest(routePattern(r), r.Method, strconv.Itoa(wrapped.statusCode), time.Since(start))
		})
	}
}
