package domain

import (
	"time"

	"github.com/google/uuid"
)

// IngestionLogEntry captures row and key level issues that occur during a run.
type IngestionLogEntry struct {
	ID           uuid.UUID `json:"id"`
	RunID        uuid.UUID `json:"run_id"`
	TableName    string    `json:"table_name"`
	FileName     string    `json:"file_name"`
	Kind         ErrorKind `json:"kind"`
	RowNumber    *int      `json:"row_number,omitempty"`
	EntityID     string    `json:"entity_id,omitempty"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}

// IngestionLogFromWarning builds a data-quality log entry.
func IngestionLogFromWarning(summary RunSummary, warning DataQualityWarning) IngestionLogEntry {
	row := warning.RowNumber
	return IngestionLogEntry{
		RunID:        summary.RunID,
		TableName:    summary.Table,
		FileName:     summary.Trigger.Name,
		Kind:         KindDataQuality,
		RowNumber:    &row,
		EntityID:     warning.EntityID,
		ErrorMessage: warning.String(),
	}
}

// IngestionLogFromKeyError builds a reconciliation log entry.
func IngestionLogFromKeyError(summary RunSummary, keyErr KeyError) IngestionLogEntry {
	kind := KindOf(keyErr.Err)
	if kind == "" {
		kind = KindReconciliation
	}
	return IngestionLogEntry{
		RunID:        summary.RunID,
		TableName:    summary.Table,
		FileName:     summary.Trigger.Name,
		Kind:         kind,
		EntityID:     keyErr.EntityID,
		ErrorMessage: keyErr.Error(),
	}
}
