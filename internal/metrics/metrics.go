// Package metrics defines the Prometheus instrumentation for the engine:
// connection counts, publish/drop counters, queue size histograms, and
// process resource gauges. Each Metrics instance owns its own registry
// rather than registering against the global default, so multiple
// engines in one process (as in tests) don't collide on metric names.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge the engine reports, bound to its own
// registry so it never reaches for the global prometheus.DefaultRegisterer.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal    prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	ConnectionsRejected *prometheus.CounterVec

	SamplesPublished prometheus.Counter
	SamplesDropped   prometheus.Counter

	CatalogBurstsSent prometheus.Counter

	SlowClientsDisconnected prometheus.Counter
	ClientQueueBytes        prometheus.Histogram

	DatasetsRegistered prometheus.Gauge

	ProcessCPUPercent prometheus.Gauge
	ProcessRSSBytes   prometheus.Gauge
	GoroutinesActive  prometheus.Gauge
}

// New constructs a Metrics bound to a fresh registry and registers every
// collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livegrapher_connections_total",
			Help: "Total number of accepted client connections.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livegrapher_connections_active",
			Help: "Current number of connected clients.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livegrapher_connections_rejected_total",
			Help: "Connections rejected before accept, by reason.",
		}, []string{"reason"}),

		SamplesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livegrapher_samples_published_total",
			Help: "Total data points fanned out to at least one subscriber.",
		}),
		SamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livegrapher_samples_dropped_total",
			Help: "Total samples dropped because the dataset registry was full, plus frames dropped at a client's queue byte cap.",
		}),

		CatalogBurstsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livegrapher_catalog_bursts_total",
			Help: "Total catalog bursts sent in response to list requests.",
		}),

		SlowClientsDisconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livegrapher_slow_clients_disconnected_total",
			Help: "Total clients disconnected after too many frames were dropped at their queue byte cap.",
		}),
		ClientQueueBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "livegrapher_client_queue_bytes",
			Help:    "Distribution of per-client pending write-queue size in bytes.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}),

		DatasetsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livegrapher_datasets_registered",
			Help: "Current number of registered dataset names.",
		}),

		ProcessCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livegrapher_process_cpu_percent",
			Help: "Sampled process CPU usage percentage.",
		}),
		ProcessRSSBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livegrapher_process_rss_bytes",
			Help: "Sampled process resident set size in bytes.",
		}),
		GoroutinesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livegrapher_goroutines_active",
			Help: "Current runtime.NumGoroutine() value.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsActive,
		m.ConnectionsRejected,
		m.SamplesPublished,
		m.SamplesDropped,
		m.CatalogBurstsSent,
		m.SlowClientsDisconnected,
		m.ClientQueueBytes,
		m.DatasetsRegistered,
		m.ProcessCPUPercent,
		m.ProcessRSSBytes,
		m.GoroutinesActive,
	)

	return m
}

// Handler returns the http.Handler serving this instance's metrics in the
// Prometheus exposition format, for mounting at e.g. /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
