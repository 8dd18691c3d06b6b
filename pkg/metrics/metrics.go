// Package metrics exposes import counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ImportMetrics records per-run counters. A nil *ImportMetrics is valid
// and records nothing.
type ImportMetrics struct {
	rowsRead   *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	warnings   *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	runs       *prometheus.CounterVec
	submit     *prometheus.HistogramVec
	pending    prometheus.Gauge
}

// New registers the import metrics with reg.
func New(reg prometheus.Registerer) *ImportMetrics {
	f := promauto.With(reg)
	return &ImportMetrics{
		rowsRead: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collections",
			Subsystem: "import",
			Name:      "rows_read_total",
			Help:      "Data rows read from uploaded files.",
		}, []string{"kind", "format"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collections",
			Subsystem: "import",
			Name:      "rows_dropped_total",
			Help:      "Rows dropped during normalization.",
		}, []string{"kind"}),
		warnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collections",
			Subsystem: "import",
			Name:      "row_warnings_total",
			Help:      "Per-row warnings raised during normalization.",
		}, []string{"kind"}),
		duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collections",
			Subsystem: "import",
			Name:      "duplicates_dropped_total",
			Help:      "Records removed by deduplication.",
		}, []string{"kind"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collections",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Import runs by final state.",
		}, []string{"kind", "state"}),
		submit: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "collections",
			Subsystem: "import",
			Name:      "submit_duration_seconds",
			Help:      "Time spent in the bulk create call.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "collections",
			Subsystem: "import",
			Name:      "pending_runs",
			Help:      "Runs awaiting confirmation.",
		}),
	}
}

// ObservePreview records the counts of a normalized batch.
func (m *ImportMetrics) ObservePreview(kind, format string, rows, dropped, warnings, duplicates int) {
	if m == nil {
		return
	}
	m.rowsRead.WithLabelValues(kind, format).Add(float64(rows))
	m.dropped.WithLabelValues(kind).Add(float64(dropped))
	m.warnings.WithLabelValues(kind).Add(float64(warnings))
	m.duplicates.WithLabelValues(kind).Add(float64(duplicates))
}

// ObserveRun records a run reaching state.
func (m *ImportMetrics) ObserveRun(kind, state string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(kind, state).Inc()
}

// ObserveSubmit records the duration of a bulk create call.
func (m *ImportMetrics) ObserveSubmit(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.submit.WithLabelValues(kind).Observe(d.Seconds())
}

// SetPending sets the number of runs awaiting confirmation.
func (m *ImportMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
