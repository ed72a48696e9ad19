// Package vitals audits Core Web Vitals of the configured pages.
package vitals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/browser"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Meter loads a page and reports its timings.
type Meter interface {
	MeasureVitals(ctx context.Context, url string) (browser.Vitals, error)
}

// Threshold splits a metric into good (<= Good), needs improvement (<= Poor)
// and poor.
type Threshold struct {
	Name string
	Good float64
	Poor float64
	Unit string
}

// Rate scores v as 100, 50 or 0.
func (t Threshold) Rate(v float64) int {
	switch {
	case v <= t.Good:
		return 100
	case v <= t.Poor:
		return 50
	default:
		return 0
	}
}

// Metric thresholds.
var (
	LCP  = Threshold{Name: "LCP", Good: 2500, Poor: 4000, Unit: "ms"}
	FID  = Threshold{Name: "FID", Good: 100, Poor: 300, Unit: "ms"}
	CLS  = Threshold{Name: "CLS", Good: 0.1, Poor: 0.25}
	Load = Threshold{Name: "Load", Good: 3000, Poor: 5000, Unit: "ms"}
)

// PageResult holds the measurements and score of one page.
type PageResult struct {
	URL    string          `json:"url"`
	Score  int             `json:"score"`
	Vitals *browser.Vitals `json:"vitals,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Details is the category detail payload.
type Details struct {
	Pages []PageResult `json:"pages"`
}

// Auditor measures every configured page sequentially.
type Auditor struct {
	meter  Meter
	pages  []string
	logger *zap.Logger
}

// New builds an Auditor for the absolute page URLs.
func New(meter Meter, pages []string, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{meter: meter, pages: pages, logger: logger}
}

// Category implements the audit contract.
func (a *Auditor) Category() seo.Category {
	return seo.CategoryCoreWebVitals
}

// Audit measures each page; failed pages are reported and excluded from the mean.
func (a *Auditor) Audit(ctx context.Context) (*seo.CategoryResult, error) {
	if len(a.pages) == 0 {
		return nil, errors.New("no pages configured")
	}
	result := &seo.CategoryResult{Issues: []seo.Issue{}}
	details := Details{}
	var scores []float64
	var lastErr error

	for _, page := range a.pages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("vitals audit canceled: %w", err)
		}
		v, err := a.meter.MeasureVitals(ctx, page)
		if err != nil {
			lastErr = err
			a.logger.Warn("vitals measurement failed", zap.String("url", page), zap.Error(err))
			details.Pages = append(details.Pages, PageResult{URL: page, Error: err.Error()})
			result.Issues = append(result.Issues, seo.Issue{
				Type:     "page_error",
				Severity: seo.SeverityMedium,
				Message:  fmt.Sprintf("Could not measure %s: %v", page, err),
				URL:      page,
			})
			continue
		}
		mean, issues := rate(v)
		scores = append(scores, mean)
		result.Issues = append(result.Issues, issues...)
		vCopy := v
		details.Pages = append(details.Pages, PageResult{URL: page, Score: seo.ClampScore(mean), Vitals: &vCopy})
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("all %d pages failed: %w", len(a.pages), lastErr)
	}
	result.Score = seo.ClampScore(seo.Mean(scores))
	result.Details = details
	return result, nil
}

// ScorePage rates one page as the mean of its four metric scores and returns an
// issue per metric outside the good range.
func ScorePage(v browser.Vitals) (int, []seo.Issue) {
	mean, issues := rate(v)
	return seo.ClampScore(mean), issues
}

// rate returns the unrounded page mean; the category averages these so that
// rounding happens once.
func rate(v browser.Vitals) (float64, []seo.Issue) {
	checks := []struct {
		t     Threshold
		value float64
	}{
		{LCP, v.LCPMs},
		{FID, v.FIDMs},
		{CLS, v.CLS},
		{Load, v.LoadMs},
	}
	var (
		scores []float64
		issues []seo.Issue
	)
	for _, c := range checks {
		score := c.t.Rate(c.value)
		scores = append(scores, float64(score))
		if score == 100 {
			continue
		}
		severity := seo.SeverityMedium
		if score == 0 {
			severity = seo.SeverityHigh
		}
		issues = append(issues, seo.Issue{
			Type:     "slow_" + strings.ToLower(c.t.Name),
			Severity: severity,
			Message:  fmt.Sprintf("%s of %s exceeds the %s target", c.t.Name, format(c.value, c.t.Unit), format(c.t.Good, c.t.Unit)),
			URL:      v.URL,
			Subject:  c.t.Name,
		})
	}
	return seo.Mean(scores), issues
}

func format(v float64, unit string) string {
	if unit == "ms" {
		if v >= 1000 {
			return fmt.Sprintf("%.1fs", v/1000)
		}
		return fmt.Sprintf("%.0fms", v)
	}
	return fmt.Sprintf("%.2f", v)
}
