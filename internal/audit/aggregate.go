package audit

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Score bucket boundaries.
const (
	PassedThreshold  = 80
	WarningThreshold = 50
)

// Aggregate computes the overall score as the mean of enabled categories and
// buckets every category. Nil entries are disabled.
func Aggregate(categories map[seo.Category]*seo.CategoryResult) (int, seo.Summary) {
	var (
		summary seo.Summary
		scores  []float64
	)
	for _, c := range seo.Categories() {
		res := categories[c]
		if res == nil {
			summary.Disabled++
			continue
		}
		scores = append(scores, float64(res.Score))
		switch {
		case res.Score >= PassedThreshold:
			summary.Passed++
		case res.Score >= WarningThreshold:
			summary.Warning++
		default:
			summary.Critical++
		}
	}
	return seo.ClampScore(seo.Mean(scores)), summary
}

// Recommend derives advisory recommendations from category results.
func Recommend(categories map[seo.Category]*seo.CategoryResult) []seo.Recommendation {
	recs := []seo.Recommendation{}
	for _, c := range seo.Categories() {
		res := categories[c]
		if res == nil {
			continue
		}
		if res.Failed() {
			recs = append(recs, seo.Recommendation{
				Category:    c,
				Priority:    seo.PriorityMedium,
				Title:       "Investigate failed audit category",
				Description: fmt.Sprintf("The %s audit could not complete: %s", label(c), res.Error),
			})
			continue
		}
		recs = append(recs, categoryRecommendations(c, res)...)
	}
	return recs
}

func categoryRecommendations(c seo.Category, res *seo.CategoryResult) []seo.Recommendation {
	switch c {
	case seo.CategoryBrokenLinks:
		if n := countIssues(res, "broken_link"); n > 0 {
			return []seo.Recommendation{{
				Category:    c,
				Priority:    seo.PriorityHigh,
				Title:       fmt.Sprintf("Fix %d broken links", n),
				Description: "Broken links waste crawl budget and frustrate patients looking for appointments.",
			}}
		}
	case seo.CategoryCoreWebVitals:
		if res.Score < PassedThreshold {
			priority := seo.PriorityMedium
			if res.Score < WarningThreshold {
				priority = seo.PriorityHigh
			}
			return []seo.Recommendation{{
				Category:    c,
				Priority:    priority,
				Title:       "Improve Core Web Vitals",
				Description: fmt.Sprintf("Score %d: optimize the largest contentful element, defer blocking scripts and reserve space for late content.", res.Score),
			}}
		}
	case seo.CategoryImages:
		if n := countIssuesExcept(res, "page_error", "no_images"); n > 0 {
			return []seo.Recommendation{{
				Category:    c,
				Priority:    seo.PriorityMedium,
				Title:       "Optimize images",
				Description: fmt.Sprintf("%d image problems found: convert to WebP or AVIF, compress large files and add alt text.", n),
			}}
		}
	case seo.CategoryMobile:
		if res.Score < PassedThreshold {
			return []seo.Recommendation{{
				Category:    c,
				Priority:    seo.PriorityHigh,
				Title:       "Fix mobile layout problems",
				Description: "Remove horizontal scrolling, use at least 12px text and make tap targets 44px or larger.",
			}}
		}
	case seo.CategoryStructure:
		if res.Score < PassedThreshold {
			return []seo.Recommendation{{
				Category:    c,
				Priority:    seo.PriorityLow,
				Title:       "Strengthen internal linking",
				Description: "Link orphan pages from navigation and keep important pages within three clicks of home.",
			}}
		}
	case seo.CategorySecurity:
		var recs []seo.Recommendation
		for _, issue := range res.Issues {
			switch issue.Type {
			case "no_https":
				recs = append(recs, seo.Recommendation{
					Category:    c,
					Priority:    seo.PriorityHigh,
					Title:       "Serve the site over HTTPS",
					Description: "Redirect all HTTP traffic to HTTPS.",
				})
			case "missing_header":
				priority := seo.PriorityMedium
				if issue.Severity == seo.SeverityHigh {
					priority = seo.PriorityHigh
				}
				recs = append(recs, seo.Recommendation{
					Category:    c,
					Priority:    priority,
					Title:       "Add " + issue.Subject + " header",
					Description: issue.Message,
				})
			}
		}
		return recs
	}
	return nil
}

func countIssues(res *seo.CategoryResult, issueType string) int {
	n := 0
	for _, issue := range res.Issues {
		if issue.Type == issueType {
			n++
		}
	}
	return n
}

func countIssuesExcept(res *seo.CategoryResult, skip ...string) int {
	n := 0
outer:
	for _, issue := range res.Issues {
		for _, s := range skip {
			if issue.Type == s {
				continue outer
			}
		}
		n++
	}
	return n
}

func label(c seo.Category) string {
	return strings.ReplaceAll(string(c), "_", " ")
}
