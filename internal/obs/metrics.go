// Package obs holds the Prometheus instrumentation for report generation.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics carries the counters and histograms published on /metrics. Each
// process builds its own registry so tests can construct Metrics freely.
type Metrics struct {
	reg *prometheus.Registry

	ReportsTriggered  prometheus.Counter
	ReportsCompleted  prometheus.Counter
	ReportsFailed     prometheus.Counter
	StoresProcessed   prometheus.Counter
	StoresSkipped     prometheus.Counter
	GenerationSeconds prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ReportsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storepulse_reports_triggered_total",
			Help: "Report jobs accepted by the trigger endpoint.",
		}),
		ReportsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storepulse_reports_completed_total",
			Help: "Report jobs that reached the Complete state.",
		}),
		ReportsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storepulse_reports_failed_total",
			Help: "Report jobs that reached the Failed state.",
		}),
		StoresProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storepulse_stores_processed_total",
			Help: "Stores whose metrics row made it into an artifact.",
		}),
		StoresSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storepulse_stores_skipped_total",
			Help: "Stores skipped because their metrics computation failed.",
		}),
		GenerationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storepulse_report_generation_seconds",
			Help:    "Wall time of one full report generation run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	m.reg.MustRegister(m.ReportsTriggered, m.ReportsCompleted, m.ReportsFailed,
		m.StoresProcessed, m.StoresSkipped, m.GenerationSeconds)
	return m
}

// Handler serves this registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
