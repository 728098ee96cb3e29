package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.AuthAttempt("login", ResultOK)
		m.Submission(ResultError)
		m.FileStored(10)
		m.ResponderCall(time.Second, true)
		m.Limited("/api/auth/login")
	})
}

func TestCountersIncrement(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AuthAttempt("register", ResultOK)
	m.AuthAttempt("register", ResultOK)
	m.AuthAttempt("login", ResultRejected)
	m.FileStored(100)
	m.FileStored(50)
	m.ResponderCall(10*time.Millisecond, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("register", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("login", ResultRejected)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesStored))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.UploadBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResponderCalls.WithLabelValues("fallback")))
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
