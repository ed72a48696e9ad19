// Package memory keeps audit history in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/storage/history"
)

// Store is a bounded in-memory HistoryStore.
type Store struct {
	mu       sync.RWMutex
	capacity int
	runs     []seo.AuditRun
}

// New builds a Store retaining capacity runs.
func New(capacity int) *Store {
	return &Store{capacity: history.Capacity(capacity)}
}

// Append stores run and evicts the oldest beyond capacity.
func (s *Store) Append(_ context.Context, run seo.AuditRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	if over := len(s.runs) - s.capacity; over > 0 {
		s.runs = append([]seo.AuditRun(nil), s.runs[over:]...)
	}
	return nil
}

// List returns up to limit of the newest runs, oldest first.
func (s *Store) List(_ context.Context, limit int) ([]seo.AuditRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return history.Tail(s.runs, limit), nil
}

// Latest returns the newest run.
func (s *Store) Latest(_ context.Context) (seo.AuditRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return seo.AuditRun{}, seo.ErrNoHistory
	}
	return s.runs[len(s.runs)-1], nil
}
