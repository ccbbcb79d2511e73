package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Creation outcomes.
const (
	OutcomeQR       = "qr"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Metrics groups all Prometheus instruments used by the service. Instruments are
// registered on the Metrics' own registry so several instances can coexist in
// one process. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions   prometheus.Gauge
	SessionCreations *prometheus.CounterVec
	SessionEvents    *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	ReapedSessions   *prometheus.CounterVec
	PairingLatency   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions held in the session store.",
		}),
		SessionCreations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_creations_total",
			Help:      "Session creation requests by outcome.",
		}, []string{"outcome"}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Driver events by kind.",
		}, []string{"kind"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Driver call failures by operation.",
		}, []string{"op"}),
		ReapedSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_sessions_total",
			Help:      "Sessions torn down by the janitor by reason.",
		}, []string{"reason"}),
		PairingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pairing_latency_ms",
			Help:      "Time from session creation to first QR code in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 5000, 10000, 20000, 30000},
		}),
	}
}

func (m *Metrics) SessionAdded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionRemoved() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) CreationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SessionCreations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) ProviderError(op string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Reaped(reason string) {
	if m == nil {
		return
	}
	m.ReapedSessions.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObservePairingLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.PairingLatency.Observe(float64(d.Milliseconds()))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
