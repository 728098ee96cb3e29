// Package metrics defines the Prometheus collectors exported on /metrics.
//
// All collectors are created and registered in New; callers hold a *Metrics
// and use its methods. Every method is safe on a nil *Metrics, so tests and
// tools can pass nil instead of building a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clustify"

// Outcome labels shared by the business counters.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	AuthAttempts    *prometheus.CounterVec
	Submissions     *prometheus.CounterVec
	FilesStored     prometheus.Counter
	UploadBytes     prometheus.Counter
	ResponderCalls  *prometheus.CounterVec
	ResponderTiming prometheus.Histogram
	RateLimited     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method"},
		),
		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "attempts_total",
				Help:      "Registration and login attempts by operation and result.",
			},
			[]string{"op", "result"}, // op=register|login
		),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prompts",
				Name:      "submissions_total",
				Help:      "Prompt submissions by result.",
			},
			[]string{"result"},
		),
		FilesStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prompts",
				Name:      "files_stored_total",
				Help:      "Attachment blobs written to storage.",
			},
		),
		UploadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prompts",
				Name:      "upload_bytes_total",
				Help:      "Bytes of attachment content accepted.",
			},
		),
		ResponderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "responder",
				Name:      "calls_total",
				Help:      "Responder calls by result; fallback means the local text was used.",
			},
			[]string{"result"}, // result=ok|fallback
		),
		ResponderTiming: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "responder",
				Name:      "duration_seconds",
				Help:      "Responder call latency.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter, by route.",
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal, m.RequestsDuration, m.InFlight,
		m.AuthAttempts, m.Submissions, m.FilesStored, m.UploadBytes,
		m.ResponderCalls, m.ResponderTiming, m.RateLimited,
	)
	return m
}

func (m *Metrics) AuthAttempt(op, result string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Submission(result string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) FileStored(size int64) {
	if m == nil {
		return
	}
	m.FilesStored.Inc()
	m.UploadBytes.Add(float64(size))
}

// ResponderCall records one responder call. fellBack is true when the
// pipeline had to use the fallback text.
func (m *Metrics) ResponderCall(d time.Duration, fellBack bool) {
	if m == nil {
		return
	}
	result := ResultOK
	if fellBack {
		result = "fallback"
	}
	m.ResponderCalls.WithLabelValues(result).Inc()
	m.ResponderTiming.Observe(d.Seconds())
}

func (m *Metrics) Limited(route string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(route).Inc()
}
