// Package mobile audits how pages render on a phone-sized viewport.
package mobile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/browser"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Inspector renders a page under an emulated viewport.
type Inspector interface {
	InspectLayout(ctx context.Context, url string, vp browser.Viewport) (browser.Layout, error)
}

// Rubric penalties.
const (
	OverflowPenalty    = 30
	TinyTextPenalty    = 20
	SmallTargetPenalty = 5
	SmallTargetCap     = 25
)

// PageResult is the layout and score of one page.
type PageResult struct {
	URL    string          `json:"url"`
	Score  int             `json:"score"`
	Layout *browser.Layout `json:"layout,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Details is the category detail payload.
type Details struct {
	Viewport browser.Viewport `json:"viewport"`
	Pages    []PageResult     `json:"pages"`
}

// Auditor inspects every configured page on the mobile viewport.
type Auditor struct {
	inspector Inspector
	pages     []string
	viewport  browser.Viewport
	logger    *zap.Logger
}

// New builds an Auditor using browser.MobileViewport.
func New(inspector Inspector, pages []string, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{inspector: inspector, pages: pages, viewport: browser.MobileViewport, logger: logger}
}

// Category implements the audit contract.
func (a *Auditor) Category() seo.Category {
	return seo.CategoryMobile
}

// Audit scores each page with ScorePage; the category is the mean over pages
// that rendered.
func (a *Auditor) Audit(ctx context.Context) (*seo.CategoryResult, error) {
	if len(a.pages) == 0 {
		return nil, errors.New("no pages configured")
	}
	result := &seo.CategoryResult{Issues: []seo.Issue{}}
	details := Details{Viewport: a.viewport}
	var (
		scores  []float64
		lastErr error
	)
	for _, page := range a.pages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("mobile audit canceled: %w", err)
		}
		layout, err := a.inspector.InspectLayout(ctx, page, a.viewport)
		if err != nil {
			lastErr = err
			a.logger.Warn("layout inspection failed", zap.String("url", page), zap.Error(err))
			details.Pages = append(details.Pages, PageResult{URL: page, Error: err.Error()})
			result.Issues = append(result.Issues, seo.Issue{
				Type:     "page_error",
				Severity: seo.SeverityMedium,
				Message:  fmt.Sprintf("Could not render %s: %v", page, err),
				URL:      page,
			})
			continue
		}
		if layout.URL == "" {
			layout.URL = page
		}
		score, issues := ScorePage(layout)
		scores = append(scores, float64(score))
		result.Issues = append(result.Issues, issues...)
		details.Pages = append(details.Pages, PageResult{URL: page, Score: score, Layout: &layout})
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("all %d pages failed: %w", len(a.pages), lastErr)
	}
	result.Score = seo.ClampScore(seo.Mean(scores))
	result.Details = details
	return result, nil
}

// ScorePage applies the mobile rubric to one layout.
func ScorePage(l browser.Layout) (int, []seo.Issue) {
	score := 100
	var issues []seo.Issue
	if l.HorizontalOverflow() {
		score -= OverflowPenalty
		issues = append(issues, seo.Issue{
			Type:     "horizontal_overflow",
			Severity: seo.SeverityHigh,
			Message:  fmt.Sprintf("Content is %dpx wide on a %dpx screen", l.ScrollWidth, l.ViewportWidth),
			URL:      l.URL,
		})
	}
	if l.TinyTextCount > 0 {
		score -= TinyTextPenalty
		issues = append(issues, seo.Issue{
			Type:     "tiny_text",
			Severity: seo.SeverityMedium,
			Message:  fmt.Sprintf("%d text elements are smaller than %dpx", l.TinyTextCount, browser.MinFontPx),
			URL:      l.URL,
		})
	}
	if l.SmallTargetCount > 0 {
		score -= min(SmallTargetPenalty*l.SmallTargetCount, SmallTargetCap)
		issues = append(issues, seo.Issue{
			Type:     "small_touch_targets",
			Severity: seo.SeverityMedium,
			Message:  fmt.Sprintf("%d touch targets are smaller than %dpx", l.SmallTargetCount, browser.MinTargetPx),
			URL:      l.URL,
		})
	}
	return max(score, 0), issues
}
