package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/store"
)

// RunStore keeps a bounded task run log in memory.
type RunStore struct {
	mu       sync.RWMutex
	capacity int
	runs     []seo.TaskResult
	byID     map[string]struct{}
}

// NewRunStore builds a RunStore retaining at most capacity runs (default 500).
func NewRunStore(capacity int) *RunStore {
	if capacity <= 0 {
		capacity = 500
	}
	return &RunStore{capacity: capacity, byID: make(map[string]struct{})}
}

// Record appends result, evicting the oldest run when full.
func (s *RunStore) Record(_ context.Context, result seo.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[result.ID]; exists {
		return nil
	}
	s.runs = append(s.runs, result)
	s.byID[result.ID] = struct{}{}
	if over := len(s.runs) - s.capacity; over > 0 {
		for _, evicted := range s.runs[:over] {
			delete(s.byID, evicted.ID)
		}
		s.runs = append([]seo.TaskResult(nil), s.runs[over:]...)
	}
	return nil
}

// List returns runs newest first.
func (s *RunStore) List(_ context.Context, task seo.TaskName, limit int) ([]seo.TaskResult, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]seo.TaskResult, 0, min(limit, len(s.runs)))
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if task != "" && s.runs[i].TaskName != task {
			continue
		}
		out = append(out, s.runs[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// Get returns the run with the given ID.
func (s *RunStore) Get(_ context.Context, id string) (seo.TaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return seo.TaskResult{}, store.ErrNotFound
}
