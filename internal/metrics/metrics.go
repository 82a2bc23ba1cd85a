// Package metrics exposes Prometheus metrics for a pricing run. Runs are
// short-lived, so metrics are written to a node_exporter textfile at the
// end rather than scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/propane-pricer/internal/model"
)

const namespace = "pricer"

// Run holds the metrics for one run on its own registry.
type Run struct {
	reg *prometheus.Registry

	rows           *prometheus.CounterVec
	failures       *prometheus.CounterVec
	upsertDuration prometheus.Histogram
	inFlight       prometheus.Gauge
	lastRun        prometheus.Gauge
}

// New creates and registers the run metrics.
func New() *Run {
	m := &Run{
		reg: prometheus.NewRegistry(),

		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows processed, by outcome",
		}, []string{"outcome"}),

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_failures_total",
			Help:      "Failed rows, by error kind and upsert reason",
		}, []string{"kind", "reason"}),

		upsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upsert_duration_seconds",
			Help:      "Single-row upsert latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upserts_in_flight",
			Help:      "Upsert calls currently running",
		}),

		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}

	m.reg.MustRegister(m.rows, m.failures, m.upsertDuration, m.inFlight, m.lastRun)
	return m
}

// Registry returns the registry the metrics live on.
func (m *Run) Registry() *prometheus.Registry { return m.reg }

// UpsertStarted marks an upsert call as in flight.
func (m *Run) UpsertStarted() { m.inFlight.Inc() }

// UpsertFinished records an upsert call's latency.
func (m *Run) UpsertFinished(elapsed time.Duration, _ error) {
	m.inFlight.Dec()
	m.upsertDuration.Observe(elapsed.Seconds())
}

// Record counts an outcome.
func (m *Run) Record(o model.Outcome) {
	if o.Succeeded() {
		m.rows.WithLabelValues("success").Inc()
		return
	}
	m.rows.WithLabelValues("failure").Inc()
	m.failures.WithLabelValues(string(o.Failure.Kind), string(o.Failure.Reason)).Inc()
}

// WriteTextfile stamps the finish time and writes all metrics to path in
// the Prometheus text format.
func (m *Run) WriteTextfile(path string, finishedAt time.Time) error {
	m.lastRun.Set(float64(finishedAt.Unix()))
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
