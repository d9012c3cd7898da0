package domain

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Trigger identifies the object-storage location of a roster export.
type Trigger struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// Validate checks that both bucket and object name are set.
func (t Trigger) Validate() error {
	if strings.TrimSpace(t.Bucket) == "" {
		return fmt.Errorf("%w: bucket is required", ErrInvalidTrigger)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: object name is required", ErrInvalidTrigger)
	}
	return nil
}

// URI renders the trigger as a bucket URI.
func (t Trigger) URI() string {
	return fmt.Sprintf("%s/%s", t.Bucket, t.Name)
}

var tableNamePattern = regexp.MustCompile(`[^a-z0-9_]+`)

// TableNameFor derives the target table from the object name: tbl_<base name>.
func TableNameFor(objectName string) string {
	base := path.Base(strings.ReplaceAll(objectName, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.ToLower(strings.TrimSpace(base))
	base = tableNamePattern.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "roster"
	}
	return "tbl_" + base
}

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusNoop    RunStatus = "noop"
	RunStatusFailed  RunStatus = "failed"
)

// RunCounts aggregates per-run row and key counts.
type RunCounts struct {
	RowsRead        int `json:"rowsRead"`
	RowsDropped     int `json:"rowsDropped"`
	Unchanged       int `json:"unchanged"`
	AppendedNew     int `json:"appendedNew"`
	AppendedChanged int `json:"appendedChanged"`
	Skipped         int `json:"skipped"`
	RowsAppended    int `json:"rowsAppended"`
}

// RunSummary is the user-visible outcome of one read-reconcile-write cycle.
type RunSummary struct {
	RunID      uuid.UUID            `json:"runId"`
	Table      string               `json:"table"`
	Trigger    Trigger              `json:"trigger"`
	Status     RunStatus            `json:"status"`
	DryRun     bool                 `json:"dryRun,omitempty"`
	Counts     RunCounts            `json:"counts"`
	Warnings   []DataQualityWarning `json:"warnings"`
	KeyErrors  []KeyError           `json:"keyErrors"`
	Error      string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt time.Time            `json:"finishedAt"`
}

// NewRunSummary starts a summary for the given trigger.
func NewRunSummary(trigger Trigger, table string, startedAt time.Time) RunSummary {
	return RunSummary{
		RunID:     uuid.New(),
		Table:     table,
		Trigger:   trigger,
		Warnings:  []DataQualityWarning{},
		KeyErrors: []KeyError{},
		StartedAt: startedAt,
	}
}

// ResolveStatus derives the status from the counts once the run completed without fatal errors.
func (s *RunSummary) ResolveStatus() {
	switch {
	case s.Counts.Skipped > 0:
		s.Status = RunStatusPartial
	case s.Counts.RowsAppended == 0:
		s.Status = RunStatusNoop
	default:
		s.Status = RunStatusSuccess
	}
}

// MarshalJSON renders the wrapped error as a message.
func (e KeyError) MarshalJSON() ([]byte, error) {
	message := ""
	if e.Err != nil {
		message = e.Err.Error()
	}
	return json.Marshal(struct {
		EntityID string `json:"entity_id"`
		Field    string `json:"field,omitempty"`
		Message  string `json:"message"`
	}{e.EntityID, e.Field, message})
}
