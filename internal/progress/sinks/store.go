package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/store"
)

// StoreSink writes every completed task run to the run repository that backs
// GET /api/runs.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink returns a sink over repo. A nil repo turns the sink into a no-op.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume records the task_completed events in batch. One failed write does not
// stop the rest; all failures come back joined.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var errs []error
	recorded := 0
	for _, evt := range batch {
		if evt.Type != progress.TypeTaskCompleted || evt.Result == nil {
			continue
		}
		if err := s.repo.Record(ctx, *evt.Result); err != nil {
			errs = append(errs, fmt.Errorf("record task run %s: %w", evt.Result.ID, err))
			continue
		}
		recorded++
	}
	if recorded > 0 {
		s.logger.Debug("task runs recorded", zap.Int("count", recorded))
	}
	return errors.Join(errs...)
}

// Close is a no-op; the repository is owned by the server.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
