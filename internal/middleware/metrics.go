package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/clustify-agent/internal/metrics"
)

// Metrics records request count, latency and in-flight requests per route.
//
// ROUTE LABEL:
// The label is chi's route pattern ("/api/prompts"), not the raw path.
// Raw paths would create one time series per distinct URL, and a scanner
// hitting random URLs could blow up Prometheus memory. Requests that match
// no route are grouped under "unmatched".
//
// The pattern is only known once chi has routed the request, so in-flight
// is tracked per method and the final labels are read after next returns.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			inFlight := m.InFlight.WithLabelValues(r.Method)
			inFlight.Inc()
			defer inFlight.Dec()

			wrapped := wrapWriter(w)
			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := strconv.Itoa(wrapped.statusCode)

			m.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			m.RequestsDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}
