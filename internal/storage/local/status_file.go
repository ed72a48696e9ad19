package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// ErrNoStatus is returned by StatusFile.Read before the first health check.
var ErrNoStatus = errors.New("no health status recorded")

// StatusFile holds the most recent health report, overwritten on every write.
type StatusFile struct {
	mu   sync.Mutex
	path string
}

// NewStatusFile prepares the parent directory of path.
func NewStatusFile(path string) (*StatusFile, error) {
	if path == "" {
		return nil, fmt.Errorf("status path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create status directory: %w", err)
	}
	return &StatusFile{path: path}, nil
}

// Write replaces the file with report.
func (f *StatusFile) Write(report seo.HealthReport) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode health report: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return WriteFileAtomic(f.path, raw)
}

// Read returns the last written report.
func (f *StatusFile) Read() (seo.HealthReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return seo.HealthReport{}, ErrNoStatus
	}
	if err != nil {
		return seo.HealthReport{}, fmt.Errorf("read health status: %w", err)
	}
	var report seo.HealthReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return seo.HealthReport{}, fmt.Errorf("decode health status: %w", err)
	}
	return report, nil
}
