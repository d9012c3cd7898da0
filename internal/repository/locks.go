package repository

import (
	"context"
	"sync"

	"github.com/rpattn/rosterscd/internal/domain"
)

// tableLocks serializes runs per table within one process.
type tableLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *tableLocks) Lock(_ context.Context, table string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[table] {
		return nil, domain.ErrRunInProgress
	}
	l.held[table] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, table)
			l.mu.Unlock()
		})
	}, nil
}
