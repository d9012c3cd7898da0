// Package metrics exposes prometheus collectors for pipeline runs.
package metrics

import (
	"sync"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	keysTotal     *prometheus.CounterVec
	rowsAppended  *prometheus.CounterVec
	rowsDropped   *prometheus.CounterVec
	warningsTotal *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	lastSuccess   *prometheus.GaugeVec
	lockConflicts *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *Metrics {
	return &Metrics{
		runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by terminal status.",
		}, []string{"table", "status"}),
		keysTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster",
			Name:      "keys_total",
			Help:      "Total number of reconciled keys by outcome.",
		}, []string{"table", "outcome"}),
		rowsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster",
			Name:      "rows_appended_total",
			Help:      "Total number of rows appended to versioned tables.",
		}, []string{"table"}),
		rowsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster",
			Name:      "rows_dropped_total",
			Help:      "Total number of source rows dropped for a missing identifier.",
		}, []string{"table"}),
		warningsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster",
			Name:      "data_quality_warnings_total",
			Help:      "Total number of data-quality warnings raised while normalizing.",
		}, []string{"table"}),
		runDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "roster",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"table", "status"}),
		lastSuccess: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "roster",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that did not fail.",
		}, []string{"table"}),
		lockConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster",
			Name:      "lock_conflicts_total",
			Help:      "Total number of runs rejected because another run held the table.",
		}, []string{"table"}),
	}
})

// Get returns the process-wide collectors.
func Get() *Metrics {
	return metricsSingleton()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(summary domain.RunSummary) {
	table := summary.Table
	status := string(summary.Status)

	m.runsTotal.WithLabelValues(table, status).Inc()
	m.runDuration.WithLabelValues(table, status).Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	if summary.DryRun {
		return
	}

	m.keysTotal.WithLabelValues(table, "unchanged").Add(float64(summary.Counts.Unchanged))
	m.keysTotal.WithLabelValues(table, "new").Add(float64(summary.Counts.AppendedNew))
	m.keysTotal.WithLabelValues(table, "changed").Add(float64(summary.Counts.AppendedChanged))
	m.keysTotal.WithLabelValues(table, "skipped").Add(float64(summary.Counts.Skipped))
	m.rowsAppended.WithLabelValues(table).Add(float64(summary.Counts.RowsAppended))
	m.rowsDropped.WithLabelValues(table).Add(float64(summary.Counts.RowsDropped))
	m.warningsTotal.WithLabelValues(table).Add(float64(len(summary.Warnings)))

	if summary.Status != domain.RunStatusFailed {
		m.lastSuccess.WithLabelValues(table).Set(float64(summary.FinishedAt.Unix()))
	}
}

// LockConflict records a run rejected by the table lock.
func (m *Metrics) LockConflict(table string) {
	m.lockConflicts.WithLabelValues(table).Inc()
}
