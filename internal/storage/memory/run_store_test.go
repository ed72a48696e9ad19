package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/store"
)

var _ store.RunRepository = (*RunStore)(nil)

func result(i int, task seo.TaskName) seo.TaskResult {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	return seo.TaskResult{
		ID:          fmt.Sprintf("run-%d", i),
		TaskName:    task,
		Trigger:     seo.TriggerScheduled,
		StartedAt:   start,
		CompletedAt: start.Add(time.Second),
		Status:      seo.TaskStatusSuccess,
	}
}

func TestRunStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore(3)
	for i := range 5 {
		task := seo.TaskTechnicalSEO
		if i%2 == 1 {
			task = seo.TaskReporting
		}
		require.NoError(t, s.Record(ctx, result(i, task)))
	}

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "run-4", all[0].ID)
	require.Equal(t, "run-2", all[2].ID)

	reports, err := s.List(ctx, seo.TaskReporting, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "run-3", reports[0].ID)

	_, err = s.Get(ctx, "run-0")
	require.ErrorIs(t, err, store.ErrNotFound)
	got, err := s.Get(ctx, "run-3")
	require.NoError(t, err)
	require.Equal(t, seo.TaskReporting, got.TaskName)
}

func TestRunStoreIgnoresDuplicateIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore(10)
	first := result(1, seo.TaskTechnicalSEO)
	require.NoError(t, s.Record(ctx, first))
	dup := first
	dup.Status = seo.TaskStatusFailure
	require.NoError(t, s.Record(ctx, dup))

	runs, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, seo.TaskStatusSuccess, runs[0].Status)
}
