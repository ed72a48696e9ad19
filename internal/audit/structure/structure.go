// Package structure audits crawl depth, orphan pages and internal linking.
package structure

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/seo-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Crawler walks the internal link graph.
type Crawler interface {
	Crawl(ctx context.Context, req collyfetcher.CrawlRequest) (collyfetcher.CrawlResult, error)
}

// SitemapReader lists the URLs a sitemap declares.
type SitemapReader interface {
	Sitemap(ctx context.Context, sitemapURL string) ([]string, error)
}

// Rubric thresholds and penalties.
const (
	MaxHealthyDepth = 3
	DepthPenalty    = 20
	OrphanPenalty   = 5
	OrphanCap       = 30
	MinLinkDensity  = 3.0
	DensityPenalty  = 20

	// StubScore is reported when crawling is switched off.
	StubScore = 85
)

// Config configures the structure audit.
type Config struct {
	BaseURL    string
	SitemapURL string
	Crawl      bool
	MaxDepth   int
	MaxPages   int
}

// Details is the category detail payload.
type Details struct {
	Crawled      bool    `json:"crawled"`
	PagesVisited int     `json:"pages_visited"`
	MaxDepth     int     `json:"max_depth"`
	LinkDensity  float64 `json:"link_density"`

	// Truncated marks a crawl stopped by the page limit. Orphans are not
	// computed then since unvisited pages may hold the missing links.
	Truncated bool     `json:"truncated,omitempty"`
	Orphans   []string `json:"orphans,omitempty"`
}

// Auditor crawls from the base URL and compares the graph with the sitemap.
type Auditor struct {
	cfg     Config
	crawler Crawler
	sitemap SitemapReader
	logger  *zap.Logger
}

// New builds an Auditor. sitemap may be nil when no sitemap is configured.
func New(cfg Config, crawler Crawler, sitemap SitemapReader, logger *zap.Logger) *Auditor {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 5
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{cfg: cfg, crawler: crawler, sitemap: sitemap, logger: logger}
}

// Category implements the audit contract.
func (a *Auditor) Category() seo.Category {
	return seo.CategoryStructure
}

// Audit crawls the site and applies the structure rubric.
func (a *Auditor) Audit(ctx context.Context) (*seo.CategoryResult, error) {
	if !a.cfg.Crawl {
		return &seo.CategoryResult{
			Score: StubScore,
			Issues: []seo.Issue{{
				Type:     "structure_not_crawled",
				Severity: seo.SeverityInfo,
				Message:  "Site crawl is disabled; structure score is an estimate",
			}},
			Details: Details{},
		}, nil
	}

	graph, err := a.crawler.Crawl(ctx, collyfetcher.CrawlRequest{
		Start:    a.cfg.BaseURL,
		MaxDepth: a.cfg.MaxDepth,
		MaxPages: a.cfg.MaxPages,
	})
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", a.cfg.BaseURL, err)
	}

	result := &seo.CategoryResult{Issues: []seo.Issue{}}
	details := Details{
		Crawled:      true,
		PagesVisited: len(graph.Pages),
		MaxDepth:     graph.MaxDepth(),
		LinkDensity:  graph.LinkDensity(),
		Truncated:    len(graph.Pages) >= a.cfg.MaxPages,
	}

	switch {
	case details.Truncated:
		a.logger.Info("crawl hit the page limit; skipping orphan detection", zap.Int("max_pages", a.cfg.MaxPages))
		result.Issues = append(result.Issues, seo.Issue{
			Type:     "crawl_truncated",
			Severity: seo.SeverityInfo,
			Message:  fmt.Sprintf("Crawl stopped at %d pages; orphan pages were not checked", a.cfg.MaxPages),
		})
	case a.sitemap != nil && a.cfg.SitemapURL != "":
		declared, err := a.sitemap.Sitemap(ctx, a.cfg.SitemapURL)
		if err != nil {
			a.logger.Warn("sitemap unavailable for orphan detection", zap.String("sitemap", a.cfg.SitemapURL), zap.Error(err))
			result.Issues = append(result.Issues, seo.Issue{
				Type:     "sitemap_unavailable",
				Severity: seo.SeverityLow,
				Message:  fmt.Sprintf("Could not read sitemap: %v", err),
				URL:      a.cfg.SitemapURL,
			})
		}
		details.Orphans = Orphans(a.cfg.BaseURL, declared, graph.Linked)
	}

	score, issues := Score(details)
	result.Score = score
	result.Issues = append(result.Issues, issues...)
	result.Details = details
	return result, nil
}

// Orphans returns the declared URLs no crawled page links to. The start page is
// never an orphan.
func Orphans(start string, declared []string, linked map[string]bool) []string {
	home := collyfetcher.NormalizeURL(start)
	seen := make(map[string]bool)
	var out []string
	for _, raw := range declared {
		u := collyfetcher.NormalizeURL(raw)
		if u == "" || u == home || linked[u] || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Score applies the rubric to crawl details.
func Score(d Details) (int, []seo.Issue) {
	score := 100
	var issues []seo.Issue
	if d.MaxDepth > MaxHealthyDepth {
		score -= DepthPenalty
		issues = append(issues, seo.Issue{
			Type:     "deep_pages",
			Severity: seo.SeverityMedium,
			Message:  fmt.Sprintf("Some pages are %d clicks from the home page", d.MaxDepth),
		})
	}
	for _, orphan := range d.Orphans {
		issues = append(issues, seo.Issue{
			Type:     "orphan_page",
			Severity: seo.SeverityLow,
			Message:  "Page is in the sitemap but no crawled page links to it",
			URL:      orphan,
		})
	}
	score -= min(OrphanPenalty*len(d.Orphans), OrphanCap)
	if d.PagesVisited > 0 && d.LinkDensity < MinLinkDensity {
		score -= DensityPenalty
		issues = append(issues, seo.Issue{
			Type:     "low_link_density",
			Severity: seo.SeverityLow,
			Message:  fmt.Sprintf("Pages average %.1f internal links", d.LinkDensity),
		})
	}
	return max(score, 0), issues
}
