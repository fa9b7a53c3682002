// Package metrics exposes the pipeline's Prometheus instrumentation and
// the ops HTTP endpoint serving it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing, so instrumentation can be disabled by configuration.
type Metrics struct {
	registry *prometheus.Registry

	tipsProcessed       *prometheus.CounterVec
	attachmentDownloads *prometheus.CounterVec
	breakerState        prometheus.Gauge
	upstreamLatency     *prometheus.HistogramVec
	csvRowsImported     *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tipsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inspectetl",
			Name:      "tips_processed_total",
			Help:      "Processed work items by kind and outcome.",
		}, []string{"kind", "outcome"}),
		attachmentDownloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inspectetl",
			Name:      "attachment_downloads_total",
			Help:      "Attachment download attempts by result.",
		}, []string{"result"}),
		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "inspectetl",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		upstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inspectetl",
			Name:      "upstream_request_seconds",
			Help:      "Upstream request latency by service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		csvRowsImported: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inspectetl",
			Name:      "csv_rows_imported_total",
			Help:      "CSV intake rows by kind and disposition.",
		}, []string{"kind", "disposition"}),
	}
}

// Registry returns the backing registry for the ops endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTip counts one processed work item.
func (m *Metrics) ObserveTip(kind, outcome string) {
	if m == nil {
		return
	}
	m.tipsProcessed.WithLabelValues(kind, outcome).Inc()
}

// ObserveAttachment counts one attachment download attempt.
func (m *Metrics) ObserveAttachment(result string) {
	if m == nil {
		return
	}
	m.attachmentDownloads.WithLabelValues(result).Inc()
}

// SetBreakerState publishes the breaker state.
func (m *Metrics) SetBreakerState(state string) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.Set(v)
}

// ObserveUpstreamLatency records one upstream request duration.
func (m *Metrics) ObserveUpstreamLatency(service string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(service).Observe(d.Seconds())
}

// ObserveCSVRow counts one intake row.
func (m *Metrics) ObserveCSVRow(kind, disposition string) {
	if m == nil {
		return
	}
	m.csvRowsImported.WithLabelValues(kind, disposition).Inc()
}
