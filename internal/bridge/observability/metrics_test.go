package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics("chatbridge")

	m.SessionAdded()
	m.SessionAdded()
	m.SessionRemoved()
	m.CreationOutcome(OutcomeQR)
	m.CreationOutcome(OutcomeTimeout)
	m.CreationOutcome(OutcomeQR)
	m.Event("qr")
	m.ProviderError("get_chats")
	m.Reaped("error")
	m.ObservePairingLatency(1500 * time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionCreations.WithLabelValues(OutcomeQR)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionCreations.WithLabelValues(OutcomeTimeout)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionEvents.WithLabelValues("qr")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderErrors.WithLabelValues("get_chats")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReapedSessions.WithLabelValues("error")))
}

func TestMetricsIndependentRegistries(t *testing.T) {
	a := NewMetrics("chatbridge")
	b := NewMetrics("chatbridge")
	a.SessionAdded()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.ActiveSessions))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionAdded()
		m.SessionRemoved()
		m.CreationOutcome(OutcomeError)
		m.Event("status")
		m.ProviderError("close")
		m.Reaped("stale")
		m.ObservePairingLatency(time.Second)
	})
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("chatbridge")
	m.CreationOutcome(OutcomeQR)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `chatbridge_session_creations_total{outcome="qr"} 1`)
}
