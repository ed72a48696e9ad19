package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	historymem "github.com/JakeFAU/seo-orchestrator/internal/storage/history/memory"
	"github.com/JakeFAU/seo-orchestrator/internal/storage/memory"
)

var day = time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)

func auditRun(id string, offset int, score int, cats map[seo.Category]*seo.CategoryResult) seo.AuditRun {
	return seo.AuditRun{
		ID:           id,
		Timestamp:    day.Add(time.Duration(offset) * 24 * time.Hour),
		OverallScore: score,
		Categories:   cats,
		Recommendations: []seo.Recommendation{{
			Category: seo.CategorySecurity,
			Priority: seo.PriorityHigh,
			Title:    "Add Content-Security-Policy header",
		}},
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	runs := []seo.AuditRun{
		auditRun("a", 0, 60, map[seo.Category]*seo.CategoryResult{
			seo.CategorySecurity: {Score: 40},
			seo.CategoryMobile:   {Score: 80},
		}),
		auditRun("b", 1, 90, map[seo.Category]*seo.CategoryResult{
			seo.CategorySecurity: {Score: 100},
			seo.CategoryMobile:   nil,
		}),
		auditRun("c", 2, 75, nil),
	}

	sum := Summarize(runs)
	assert.Equal(t, 3, sum.Runs)
	require.NotNil(t, sum.Latest)
	assert.Equal(t, "c", sum.Latest.ID)
	assert.Equal(t, -15, sum.Change)
	assert.InDelta(t, 75.0, sum.Average, 1e-9)
	assert.Equal(t, 90, sum.Best)
	assert.Equal(t, 60, sum.Worst)
	assert.Len(t, sum.Trend, 3)
	assert.InDelta(t, 70.0, sum.CategoryAverages[seo.CategorySecurity], 1e-9)
	assert.InDelta(t, 80.0, sum.CategoryAverages[seo.CategoryMobile], 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	sum := Summarize(nil)
	assert.Zero(t, sum.Runs)
	assert.Nil(t, sum.Latest)
	assert.Empty(t, sum.Trend)
}

func TestParseType(t *testing.T) {
	t.Parallel()

	got, err := ParseType(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, TypePDF, got)

	_, err = ParseType("backlinks")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestBuilder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	history := historymem.New(50)
	runs := memory.NewRunStore(10)
	builder := NewBuilder(history, runs, clockwork.NewFakeClockAt(day))

	_, err := builder.Build(ctx, TypeLatest, 0)
	require.ErrorIs(t, err, seo.ErrNoHistory)
	_, err = builder.Build(ctx, TypePDF, 0)
	require.ErrorIs(t, err, seo.ErrNoHistory)

	doc, err := builder.Build(ctx, TypeAudit, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(doc.Body))

	require.NoError(t, history.Append(ctx, auditRun("a", 0, 60, map[seo.Category]*seo.CategoryResult{
		seo.CategorySecurity: {Score: 40, Issues: []seo.Issue{{Type: "missing_header"}}},
		seo.CategoryMobile:   nil,
	})))
	require.NoError(t, history.Append(ctx, auditRun("b", 1, 70, nil)))
	require.NoError(t, runs.Record(ctx, seo.TaskResult{ID: "r1", TaskName: seo.TaskReporting, StartedAt: day}))

	doc, err = builder.Build(ctx, TypeLatest, 0)
	require.NoError(t, err)
	assert.Equal(t, "application/json", doc.ContentType)
	var latest seo.AuditRun
	require.NoError(t, json.Unmarshal(doc.Body, &latest))
	assert.Equal(t, "b", latest.ID)

	doc, err = builder.Build(ctx, TypeSummary, 0)
	require.NoError(t, err)
	var sum Summary
	require.NoError(t, json.Unmarshal(doc.Body, &sum))
	assert.Equal(t, 10, sum.Change)

	doc, err = builder.Build(ctx, TypeTasks, 0)
	require.NoError(t, err)
	var results []seo.TaskResult
	require.NoError(t, json.Unmarshal(doc.Body, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "r1", results[0].ID)

	doc, err = builder.Build(ctx, TypePDF, 0)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "pdf", doc.Extension())
	assert.True(t, bytes.HasPrefix(doc.Body, []byte("%PDF-")))

	_, err = builder.Build(ctx, "nope", 0)
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestRenderPDFWithDisabledCategory(t *testing.T) {
	t.Parallel()

	run := auditRun("x", 0, 50, map[seo.Category]*seo.CategoryResult{
		seo.CategoryCoreWebVitals: {Score: 50},
		seo.CategoryImages:        nil,
	})
	body, err := RenderPDF(run, Summarize([]seo.AuditRun{run}), day)
	require.NoError(t, err)
	assert.Greater(t, len(body), 500)
}
