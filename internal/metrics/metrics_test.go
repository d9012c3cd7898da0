package metrics

import (
	"testing"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	m := Get()
	started := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	summary := domain.NewRunSummary(domain.Trigger{Bucket: "b", Name: "metrics.csv"}, "tbl_metrics_test", started)
	summary.Status = domain.RunStatusPartial
	summary.Counts = domain.RunCounts{RowsRead: 5, RowsDropped: 1, Unchanged: 2, AppendedNew: 1, AppendedChanged: 1, Skipped: 1, RowsAppended: 3}
	summary.Warnings = []domain.DataQualityWarning{{RowNumber: 3, Reason: "missing identifier, row dropped"}}
	summary.FinishedAt = started.Add(2 * time.Second)

	m.ObserveRun(summary)

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("tbl_metrics_test", "partial")); got != 1 {
		t.Fatalf("expected 1 partial run, got %v", got)
	}
	if got := testutil.ToFloat64(m.rowsAppended.WithLabelValues("tbl_metrics_test")); got != 3 {
		t.Fatalf("expected 3 appended rows, got %v", got)
	}
	if got := testutil.ToFloat64(m.keysTotal.WithLabelValues("tbl_metrics_test", "skipped")); got != 1 {
		t.Fatalf("expected 1 skipped key, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("tbl_metrics_test")); got != float64(summary.FinishedAt.Unix()) {
		t.Fatalf("unexpected last success %v", got)
	}

	m.LockConflict("tbl_metrics_test")
	if got := testutil.ToFloat64(m.lockConflicts.WithLabelValues("tbl_metrics_test")); got != 1 {
		t.Fatalf("expected 1 lock conflict, got %v", got)
	}
}
