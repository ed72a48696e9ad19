package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
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
	path := filepath.Join(t.TempDir(), "data", "seo-audit-history.json")
	s, err := New(path, 0)
	require.NoError(t, err)

	_, err = s.Latest(ctx)
	require.ErrorIs(t, err, seo.ErrNoHistory)

	for i := range 55 {
		require.NoError(t, s.Append(ctx, seo.AuditRun{
			ID:        fmt.Sprintf("audit-%02d", i),
			Timestamp: time.Date(2026, 3, 1, 0, i, 0, 0, time.UTC),
			Categories: map[seo.Category]*seo.CategoryResult{
				seo.CategorySecurity: {Score: 100, Issues: []seo.Issue{}},
				seo.CategoryMobile:   nil,
			},
			OverallScore: i,
		}))
	}

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 50)
	require.Equal(t, "audit-05", runs[0].ID)
	require.Equal(t, "audit-54", runs[49].ID)
	require.Nil(t, runs[49].Categories[seo.CategoryMobile])
	require.Contains(t, runs[49].Categories, seo.CategoryMobile)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk []json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Len(t, onDisk, 50)

	reopened, err := New(path, 0)
	require.NoError(t, err)
	latest, err := reopened.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, "audit-54", latest.ID)
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s, err := New(path, 5)
	require.NoError(t, err)

	_, err = s.List(context.Background(), 0)
	require.ErrorContains(t, err, "decode history")
	require.Error(t, s.Append(context.Background(), seo.AuditRun{ID: "x"}))
}
