// Package report turns audit history and the task run log into dashboard
// reports (JSON) and printable PDF summaries.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/store"
)

// ErrUnknownType is returned for report types Builder does not produce.
var ErrUnknownType = errors.New("unknown report type")

// Type names a report.
type Type string

// Report types.
const (
	TypeAudit   Type = "audit"
	TypeLatest  Type = "latest"
	TypeSummary Type = "summary"
	TypeTasks   Type = "tasks"
	TypePDF     Type = "pdf"
)

// ParseType validates s.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeAudit, TypeLatest, TypeSummary, TypeTasks, TypePDF:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Point is one audit on the score trend.
type Point struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Score     int       `json:"score"`
}

// Summary condenses the audit history into a score trend.
type Summary struct {
	Runs             int                      `json:"runs"`
	Latest           *Point                   `json:"latest,omitempty"`
	Change           int                      `json:"change"`
	Average          float64                  `json:"average"`
	Best             int                      `json:"best"`
	Worst            int                      `json:"worst"`
	Trend            []Point                  `json:"trend"`
	CategoryAverages map[seo.Category]float64 `json:"category_averages"`
}

// Summarize computes the trend of runs, which must be ordered oldest first.
// Disabled categories do not count towards category averages.
func Summarize(runs []seo.AuditRun) Summary {
	sum := Summary{
		Runs:             len(runs),
		Trend:            make([]Point, 0, len(runs)),
		CategoryAverages: make(map[seo.Category]float64),
	}
	if len(runs) == 0 {
		return sum
	}
	scores := make([]float64, 0, len(runs))
	perCategory := make(map[seo.Category][]float64)
	sum.Best, sum.Worst = runs[0].OverallScore, runs[0].OverallScore
	for _, run := range runs {
		sum.Trend = append(sum.Trend, Point{ID: run.ID, Timestamp: run.Timestamp, Score: run.OverallScore})
		scores = append(scores, float64(run.OverallScore))
		sum.Best = max(sum.Best, run.OverallScore)
		sum.Worst = min(sum.Worst, run.OverallScore)
		for cat, res := range run.Categories {
			if res != nil {
				perCategory[cat] = append(perCategory[cat], float64(res.Score))
			}
		}
	}
	sum.Average = seo.Mean(scores)
	for cat, values := range perCategory {
		sum.CategoryAverages[cat] = seo.Mean(values)
	}
	latest := sum.Trend[len(sum.Trend)-1]
	sum.Latest = &latest
	if len(sum.Trend) > 1 {
		sum.Change = latest.Score - sum.Trend[len(sum.Trend)-2].Score
	}
	return sum
}

// Document is a rendered report.
type Document struct {
	Type        Type
	ContentType string
	Body        []byte
}

// Extension returns the file extension matching the document content.
func (d Document) Extension() string {
	if d.Type == TypePDF {
		return "pdf"
	}
	return "json"
}

// Builder renders reports from the history store and run log.
type Builder struct {
	history seo.HistoryStore
	runs    store.RunRepository
	clock   seo.Clock
}

// NewBuilder returns a Builder. runs may be nil, in which case the tasks report
// is empty.
func NewBuilder(history seo.HistoryStore, runs store.RunRepository, clock seo.Clock) *Builder {
	return &Builder{history: history, runs: runs, clock: clock}
}

// Build renders the report t. limit bounds the audit history and run log
// entries considered; zero means everything retained.
func (b *Builder) Build(ctx context.Context, t Type, limit int) (Document, error) {
	switch t {
	case TypeAudit:
		runs, err := b.history.List(ctx, limit)
		if err != nil {
			return Document{}, fmt.Errorf("list history: %w", err)
		}
		if runs == nil {
			runs = []seo.AuditRun{}
		}
		return jsonDocument(t, runs)
	case TypeLatest:
		run, err := b.history.Latest(ctx)
		if err != nil {
			return Document{}, fmt.Errorf("latest audit: %w", err)
		}
		return jsonDocument(t, run)
	case TypeSummary:
		runs, err := b.history.List(ctx, limit)
		if err != nil {
			return Document{}, fmt.Errorf("list history: %w", err)
		}
		return jsonDocument(t, Summarize(runs))
	case TypeTasks:
		results := []seo.TaskResult{}
		if b.runs != nil {
			listed, err := b.runs.List(ctx, "", limit)
			if err != nil {
				return Document{}, fmt.Errorf("list task runs: %w", err)
			}
			results = append(results, listed...)
		}
		return jsonDocument(t, results)
	case TypePDF:
		runs, err := b.history.List(ctx, limit)
		if err != nil {
			return Document{}, fmt.Errorf("list history: %w", err)
		}
		if len(runs) == 0 {
			return Document{}, seo.ErrNoHistory
		}
		body, err := RenderPDF(runs[len(runs)-1], Summarize(runs), b.clock.Now())
		if err != nil {
			return Document{}, err
		}
		return Document{Type: t, ContentType: "application/pdf", Body: body}, nil
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func jsonDocument(t Type, v any) (Document, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Document{}, fmt.Errorf("encode %s report: %w", t, err)
	}
	return Document{Type: t, ContentType: "application/json", Body: body}, nil
}

func sortedCategories(m map[seo.Category]*seo.CategoryResult) []seo.Category {
	out := make([]seo.Category, 0, len(m))
	for _, c := range seo.Categories() {
		if _, ok := m[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
