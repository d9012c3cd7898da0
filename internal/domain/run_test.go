package domain

import (
	"errors"
	"testing"
)

func TestTableNameFor(t *testing.T) {
	cases := map[string]string{
		"Roster Export.xlsx":         "tbl_roster_export",
		"exports/2024/roster-06.csv": "tbl_roster_06",
		"weird name (final).XLSX":    "tbl_weird_name_final",
		".xlsx":                      "tbl_roster",
	}
	for in, want := range cases {
		if got := TableNameFor(in); got != want {
			t.Errorf("TableNameFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTriggerValidate(t *testing.T) {
	if err := (Trigger{Bucket: "b", Name: "n.csv"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Trigger{Name: "n.csv"}).Validate(); !errors.Is(err, ErrInvalidTrigger) {
		t.Fatalf("expected ErrInvalidTrigger, got %v", err)
	}
	if err := (Trigger{Bucket: "b"}).Validate(); !errors.Is(err, ErrInvalidTrigger) {
		t.Fatalf("expected ErrInvalidTrigger, got %v", err)
	}
}

func TestResolveStatus(t *testing.T) {
	s := RunSummary{}
	s.ResolveStatus()
	if s.Status != RunStatusNoop {
		t.Fatalf("expected noop, got %s", s.Status)
	}
	s.Counts.RowsAppended = 2
	s.ResolveStatus()
	if s.Status != RunStatusSuccess {
		t.Fatalf("expected success, got %s", s.Status)
	}
	s.Counts.Skipped = 1
	s.ResolveStatus()
	if s.Status != RunStatusPartial {
		t.Fatalf("expected partial, got %s", s.Status)
	}
}

func TestPipelineErrorClassification(t *testing.T) {
	err := NewError(KindStore, "append", errors.New("boom"))
	if !IsFatal(err) || KindOf(err) != KindStore {
		t.Fatalf("expected fatal store error, got %v", err)
	}
	warn := NewError(KindReconciliation, "compare", ErrUncomparableValue)
	if IsFatal(warn) {
		t.Fatal("reconciliation errors are recoverable")
	}
	if !errors.Is(warn, ErrUncomparableValue) {
		t.Fatal("wrapped sentinel not reachable")
	}
	if NewError(KindStore, "noop", nil) != nil {
		t.Fatal("nil error should stay nil")
	}
	if !IsFatal(errors.New("plain")) {
		t.Fatal("unclassified errors are fatal")
	}
}
