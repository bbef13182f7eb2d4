// Package metrics exposes flowdeck's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors shared across the tracker and dashboard.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	SnapshotsTotal    prometheus.Counter
	GraphBuildSeconds prometheus.Histogram
	SSESubscribers    prometheus.Gauge
}

// New creates and registers the flowdeck collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowdeck_active_connections",
			Help: "Connections in the most recent snapshot.",
		}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowdeck_snapshots_total",
			Help: "Connection snapshots received from the proxy.",
		}),
		GraphBuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowdeck_graph_build_seconds",
			Help:    "Time spent aggregating a snapshot into a flow graph.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 8),
		}),
		SSESubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowdeck_sse_subscribers",
			Help: "Open dashboard event streams.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.SnapshotsTotal, m.GraphBuildSeconds, m.SSESubscribers)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
