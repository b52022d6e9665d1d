package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the state store. Each manager
// instance owns its own registry so isolated instances in tests never
// collide on collector registration.
type Metrics struct {
	registry *prometheus.Registry

	// Operations counts every state-manager operation by name and
	// outcome (ok, not_found, invalid, error).
	Operations *prometheus.CounterVec

	// ActiveSessions tracks the size of the in-memory session index.
	ActiveSessions prometheus.Gauge

	// PersistDuration observes the latency of durability writes.
	PersistDuration prometheus.Histogram
}

// NewMetrics creates a metrics set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentstate_operations_total",
			Help: "State manager operations by name and outcome.",
		}, []string{"op", "outcome"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentstate_sessions_active",
			Help: "Number of sessions in the in-memory index.",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentstate_persist_duration_seconds",
			Help:    "Latency of session durability writes.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler returns an HTTP handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
