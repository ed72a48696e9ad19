// Package file persists audit history as a JSON array in a single file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/storage/history"
	"github.com/JakeFAU/seo-orchestrator/internal/storage/local"
)

// Store is a HistoryStore backed by a JSON file. Writes replace the file
// atomically so a crash never leaves a truncated history.
type Store struct {
	mu       sync.Mutex
	path     string
	capacity int
}

// New builds a Store at path, creating the parent directory.
func New(path string, capacity int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &Store{path: path, capacity: history.Capacity(capacity)}, nil
}

// Path returns the history file location.
func (s *Store) Path() string {
	return s.path
}

// Append adds run and trims the file to capacity.
func (s *Store) Append(ctx context.Context, run seo.AuditRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	runs, err := s.read()
	if err != nil {
		return err
	}
	runs = append(runs, run)
	if over := len(runs) - s.capacity; over > 0 {
		runs = runs[over:]
	}
	return s.write(runs)
}

// List returns up to limit of the newest runs, oldest first.
func (s *Store) List(ctx context.Context, limit int) ([]seo.AuditRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	runs, err := s.read()
	if err != nil {
		return nil, err
	}
	return history.Tail(runs, limit), nil
}

// Latest returns the newest run.
func (s *Store) Latest(ctx context.Context) (seo.AuditRun, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return seo.AuditRun{}, err
	}
	if len(runs) == 0 {
		return seo.AuditRun{}, seo.ErrNoHistory
	}
	return runs[0], nil
}

func (s *Store) read() ([]seo.AuditRun, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var runs []seo.AuditRun
	if err := json.Unmarshal(raw, &runs); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", s.path, err)
	}
	return runs, nil
}

func (s *Store) write(runs []seo.AuditRun) error {
	raw, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return local.WriteFileAtomic(s.path, raw)
}
