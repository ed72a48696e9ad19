package store

import (
	"context"
	"errors"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("task run not found")

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 100

// RunRepository persists completed task runs.
type RunRepository interface {
	// Record stores result. Recording the same ID twice keeps the first row.
	Record(ctx context.Context, result seo.TaskResult) error
	// List returns up to limit runs, newest first. An empty task lists every
	// task.
	List(ctx context.Context, task seo.TaskName, limit int) ([]seo.TaskResult, error)
	// Get loads a single run or returns ErrNotFound.
	Get(ctx context.Context, id string) (seo.TaskResult, error)
}
