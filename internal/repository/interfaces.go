package repository

import (
	"context"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/google/uuid"
)

// TableState describes whether a versioned table exists and holds rows.
type TableState string

const (
	TableFound    TableState = "found"
	TableNotFound TableState = "not_found"
	TableEmpty    TableState = "empty"
)

// CurrentSnapshot is the current version of every entity in a table.
type CurrentSnapshot struct {
	Records []domain.EntityRecord
	// CorruptIDs lists entities with more than one open version. The record with
	// the greatest start date was returned for each of them.
	CorruptIDs []string
	// DroppedRows counts stored rows without an identifier.
	DroppedRows int
}

// AppendOptions carries the bookkeeping written with every appended row.
type AppendOptions struct {
	RunID    uuid.UUID
	LoadedAt time.Time
}

// RosterRepository is the append-only versioned roster store.
type RosterRepository interface {
	TableState(ctx context.Context, table string) (TableState, error)
	EnsureSchema(ctx context.Context, table string) error
	FetchCurrent(ctx context.Context, table string) (CurrentSnapshot, error)
	Append(ctx context.Context, table string, records []domain.EntityRecord, opts AppendOptions) (int, error)
	// History returns the logical timeline of one entity ordered by start date.
	History(ctx context.Context, table string, entityID string) ([]domain.EntityRecord, error)
	// Lock serializes runs against a table. It fails with domain.ErrRunInProgress
	// when another run holds the lock.
	Lock(ctx context.Context, table string) (func(), error)
}

// IngestionLogRepository stores row and key level issues for observability.
type IngestionLogRepository interface {
	Record(ctx context.Context, entries []domain.IngestionLogEntry) error
	List(ctx context.Context, runID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error)
}

// RunRepository stores one summary row per pipeline run.
type RunRepository interface {
	Record(ctx context.Context, summary domain.RunSummary) error
	Get(ctx context.Context, runID uuid.UUID) (domain.RunSummary, error)
	ListRecent(ctx context.Context, table string, limit int) ([]domain.RunSummary, error)
}
