package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/google/uuid"
)

type memoryIngestionLogRepository struct {
	mu      sync.Mutex
	entries []domain.IngestionLogEntry
}

// NewMemoryIngestionLogRepository keeps ingestion logs in process memory.
func NewMemoryIngestionLogRepository() IngestionLogRepository {
	return &memoryIngestionLogRepository{}
}

func (r *memoryIngestionLogRepository) Record(_ context.Context, entries []domain.IngestionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, entry := range entries {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		r.entries = append(r.entries, entry)
	}
	return nil
}

func (r *memoryIngestionLogRepository) List(_ context.Context, runID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 200
	}
	out := []domain.IngestionLogEntry{}
	for _, entry := range r.entries {
		if entry.RunID == runID {
			out = append(out, entry)
		}
	}
	if offset >= len(out) {
		return []domain.IngestionLogEntry{}, nil
	}
	if offset > 0 {
		out = out[offset:]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryRunRepository struct {
	mu   sync.Mutex
	runs map[uuid.UUID]domain.RunSummary
}

// NewMemoryRunRepository keeps run summaries in process memory.
func NewMemoryRunRepository() RunRepository {
	return &memoryRunRepository{runs: make(map[uuid.UUID]domain.RunSummary)}
}

func (r *memoryRunRepository) Record(_ context.Context, summary domain.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[summary.RunID] = summary
	return nil
}

func (r *memoryRunRepository) Get(_ context.Context, runID uuid.UUID) (domain.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary, ok := r.runs[runID]
	if !ok {
		return domain.RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return summary, nil
}

func (r *memoryRunRepository) ListRecent(_ context.Context, table string, limit int) ([]domain.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	out := []domain.RunSummary{}
	for _, summary := range r.runs {
		if table == "" || summary.Table == table {
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
