package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

var _ seo.HistoryStore = (*Store)(nil)

func TestStoreKeepsNewestFifty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := New(path, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Latest(ctx)
	require.ErrorIs(t, err, seo.ErrNoHistory)

	for i := range 55 {
		require.NoError(t, s.Append(ctx, seo.AuditRun{
			ID:           fmt.Sprintf("audit-%02d", i),
			Timestamp:    time.Date(2026, 3, 1, 0, i, 0, 0, time.UTC),
			OverallScore: i,
		}))
	}

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 50)
	require.Equal(t, "audit-05", runs[0].ID)
	require.Equal(t, "audit-54", runs[49].ID)

	recent, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "audit-53", recent[0].ID)
	require.Equal(t, "audit-54", recent[1].ID)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, 54, latest.OverallScore)
	require.Equal(t, path, s.Path())
}

func TestStoreRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := New(filepath.Join(t.TempDir(), "history.db"), 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Append(ctx, seo.AuditRun{ID: "audit-1"}))
	require.Error(t, s.Append(ctx, seo.AuditRun{ID: "audit-1"}))

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
