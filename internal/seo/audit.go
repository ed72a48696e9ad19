package seo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNoHistory is returned when the audit history is empty.
var ErrNoHistory = errors.New("no audit history")

// Category identifies one technical audit category.
type Category string

// Audit categories in their canonical execution order.
const (
	CategoryCoreWebVitals Category = "core_web_vitals"
	CategoryBrokenLinks   Category = "broken_links"
	CategoryImages        Category = "image_optimization"
	CategoryMobile        Category = "mobile_responsiveness"
	CategoryStructure     Category = "site_structure"
	CategorySecurity      Category = "security_headers"
)

var categories = []Category{
	CategoryCoreWebVitals,
	CategoryBrokenLinks,
	CategoryImages,
	CategoryMobile,
	CategoryStructure,
	CategorySecurity,
}

// Categories returns all audit categories in canonical order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory validates s as a known category.
func ParseCategory(s string) (Category, error) {
	for _, c := range categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown audit category %q", s)
}

// Severity grades an Issue.
type Severity string

// Severity values.
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
	SeverityInfo   Severity = "info"
)

// IssueCategoryError marks a category whose auditor failed.
const IssueCategoryError = "category_error"

// Issue is a single finding produced by an auditor.
type Issue struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	URL      string   `json:"url,omitempty"`
	Subject  string   `json:"subject,omitempty"`
}

// CategoryResult is the outcome of one category audit.
type CategoryResult struct {
	Score   int     `json:"score"`
	Issues  []Issue `json:"issues"`
	Details any     `json:"details,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// FailedCategory converts an auditor failure into a zero-score result.
func FailedCategory(err error) *CategoryResult {
	msg := "audit failed"
	if err != nil {
		msg = err.Error()
	}
	return &CategoryResult{
		Score: 0,
		Issues: []Issue{{
			Type:     IssueCategoryError,
			Severity: SeverityHigh,
			Message:  msg,
		}},
		Error: msg,
	}
}

// Failed reports whether the result records an auditor failure.
func (r *CategoryResult) Failed() bool {
	return r != nil && r.Error != ""
}

// ClampScore rounds v to the nearest integer within [0, 100]. NaN maps to 0.
func ClampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	rounded := math.Round(v)
	switch {
	case rounded < 0:
		return 0
	case rounded > 100:
		return 100
	default:
		return int(rounded)
	}
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Summary buckets the categories of one audit run.
type Summary struct {
	Passed   int `json:"passed"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
	Disabled int `json:"disabled"`
}

// Priority grades a Recommendation.
type Priority string

// Priority values.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Recommendation is advisory output derived from category results.
type Recommendation struct {
	Category    Category `json:"category"`
	Priority    Priority `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

// AuditRun is one complete technical audit. A nil entry in Categories means the
// category was disabled for the run.
type AuditRun struct {
	ID              string                       `json:"id"`
	Timestamp       time.Time                    `json:"timestamp"`
	DurationMs      int64                        `json:"duration_ms"`
	Categories      map[Category]*CategoryResult `json:"categories"`
	OverallScore    int                          `json:"overall_score"`
	Summary         Summary                      `json:"summary"`
	Recommendations []Recommendation             `json:"recommendations"`
}
