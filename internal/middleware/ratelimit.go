package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/sakif/clustify-agent/internal/metrics"
	"github.com/sakif/clustify-agent/internal/ratelimit"
)

// RateLimit refuses requests from a client IP that has used up its budget
// on the named route group.
//
// Refused requests get 429 with a Retry-After header (whole seconds) and the
// standard error body. If the limiter itself fails (Redis down) the request
// is let through and the failure is logged: a broken limiter must not lock
// every user out of login.
//
// The key is r.RemoteAddr. The server installs chi's RealIP ahead of this
// only when proxy headers are trusted, so a direct caller cannot rotate
// X-Forwarded-For to get a fresh budget.
func RateLimit(limiter ratelimit.Limiter, route string, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			d, err := limiter.Allow(r.Context(), route+":"+ip)
			if err != nil {
				logger.Error("rate limiter unavailable, allowing request",
					slog.String("route", route),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				m.Limited(route)
				logger.Warn("rate limit exceeded",
					slog.String("route", route),
					slog.String("remote_ip", ip),
				)

				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "Too many requests, please try again later",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. After chi's RealIP the field
// may already be a bare address, which SplitHostPort rejects.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
