package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
)

type memoryRosterRepository struct {
	tableLocks

	mu     sync.RWMutex
	cols   []column
	tables map[string][]domain.StoredRecord
}

// NewMemoryRosterRepository returns a process-local store, used for dry runs and tests.
func NewMemoryRosterRepository(schema domain.RosterSchema) RosterRepository {
	return &memoryRosterRepository{
		cols:   rosterColumns(schema),
		tables: make(map[string][]domain.StoredRecord),
	}
}

func (r *memoryRosterRepository) TableState(_ context.Context, table string) (TableState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, ok := r.tables[table]
	switch {
	case !ok:
		return TableNotFound, nil
	case len(rows) == 0:
		return TableEmpty, nil
	default:
		return TableFound, nil
	}
}

func (r *memoryRosterRepository) EnsureSchema(_ context.Context, table string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[table]; !ok {
		r.tables[table] = []domain.StoredRecord{}
	}
	return nil
}

func (r *memoryRosterRepository) FetchCurrent(_ context.Context, table string) (CurrentSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, ok := r.tables[table]
	if !ok {
		return CurrentSnapshot{}, fmt.Errorf("%w: %s", domain.ErrTableNotFound, table)
	}
	return snapshotFromRows(rows), nil
}

func (r *memoryRosterRepository) Append(_ context.Context, table string, records []domain.EntityRecord, opts AppendOptions) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	loadedAt := opts.LoadedAt
	if loadedAt.IsZero() {
		loadedAt = time.Now().UTC()
	}

	stored := make([]domain.StoredRecord, 0, len(records))
	for _, record := range records {
		// Round-trip through the column encoding so values match what a SQL store returns.
		values, err := encodeRecord(r.cols, record)
		if err != nil {
			return 0, err
		}
		stored = append(stored, domain.StoredRecord{
			EntityRecord: decodeRecord(r.cols, values),
			RunID:        opts.RunID.String(),
			LoadedAt:     loadedAt,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[table]; !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrTableNotFound, table)
	}
	r.tables[table] = append(r.tables[table], stored...)
	return len(stored), nil
}

func (r *memoryRosterRepository) History(_ context.Context, table string, entityID string) ([]domain.EntityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, ok := r.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTableNotFound, table)
	}
	var matching []domain.StoredRecord
	for _, row := range rows {
		if row.EntityID == entityID {
			matching = append(matching, row)
		}
	}
	return domain.LogicalRows(matching), nil
}

// snapshotFromRows resolves the current snapshot from physical rows in memory.
func snapshotFromRows(rows []domain.StoredRecord) CurrentSnapshot {
	var (
		kept    = make([]domain.StoredRecord, 0, len(rows))
		dropped int
	)
	for _, row := range rows {
		if row.EntityID == "" {
			dropped++
			continue
		}
		kept = append(kept, row)
	}
	current, corrupt := domain.CurrentOf(domain.LogicalRows(kept))
	return CurrentSnapshot{
		Records:     current,
		CorruptIDs:  corrupt,
		DroppedRows: dropped,
	}
}
