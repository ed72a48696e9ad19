// Package links audits the site for broken and slow links.
package links

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	collyfetcher "github.com/JakeFAU/seo-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Prober issues a single HTTP probe.
type Prober interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// SitemapReader lists the page URLs of a sitemap.
type SitemapReader interface {
	Sitemap(ctx context.Context, sitemapURL string) ([]string, error)
}

// Limiter paces probes per domain.
type Limiter interface {
	Wait(ctx context.Context, url string) error
	Penalize(url string)
}

// Status classifies a checked link.
type Status string

// Status values.
const (
	StatusOK       Status = "ok"
	StatusRedirect Status = "redirect"
	StatusBroken   Status = "broken"
)

var errTooManyRequests = errors.New("rate limited by server")

// Config tunes the link checker.
type Config struct {
	Links         []string
	SitemapURL    string
	MaxLinks      int
	Timeout       time.Duration
	SlowThreshold time.Duration
	Workers       int
	Retries       int
	RetryInitial  time.Duration
}

// LinkResult is the outcome of one link check.
type LinkResult struct {
	URL        string `json:"url"`
	Status     Status `json:"status"`
	StatusCode int    `json:"status_code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Slow       bool   `json:"slow,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Details is the category detail payload.
type Details struct {
	Total     int          `json:"total"`
	OK        int          `json:"ok"`
	Redirects int          `json:"redirects"`
	Broken    int          `json:"broken"`
	Slow      int          `json:"slow"`
	Links     []LinkResult `json:"links"`
}

// Auditor checks every candidate link.
type Auditor struct {
	cfg     Config
	prober  Prober
	sitemap SitemapReader
	limiter Limiter
	logger  *zap.Logger
}

// New builds an Auditor. sitemap and limiter may be nil.
func New(cfg Config, prober Prober, sitemap SitemapReader, limiter Limiter, logger *zap.Logger) *Auditor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 3 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 250 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{cfg: cfg, prober: prober, sitemap: sitemap, limiter: limiter, logger: logger}
}

// Category implements the audit contract.
func (a *Auditor) Category() seo.Category {
	return seo.CategoryBrokenLinks
}

// Candidates returns the configured links plus the sitemap's pages, deduplicated
// and capped at MaxLinks. A sitemap failure is reported but not fatal.
func (a *Auditor) Candidates(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(raw string) {
		link := collyfetcher.NormalizeURL(raw)
		if link == "" || seen[link] {
			return
		}
		if a.cfg.MaxLinks > 0 && len(out) >= a.cfg.MaxLinks {
			return
		}
		seen[link] = true
		out = append(out, link)
	}
	for _, l := range a.cfg.Links {
		add(l)
	}
	if a.cfg.SitemapURL == "" || a.sitemap == nil {
		return out, nil
	}
	pages, err := a.sitemap.Sitemap(ctx, a.cfg.SitemapURL)
	if err != nil {
		return out, fmt.Errorf("read sitemap: %w", err)
	}
	for _, p := range pages {
		add(p)
	}
	return out, nil
}

// Audit checks all candidates with bounded concurrency and scores the category
// as max(0, 100 - 100*broken/total).
func (a *Auditor) Audit(ctx context.Context) (*seo.CategoryResult, error) {
	result := &seo.CategoryResult{Issues: []seo.Issue{}}
	candidates, err := a.Candidates(ctx)
	if err != nil {
		a.logger.Warn("sitemap unavailable, checking configured links only", zap.Error(err))
		result.Issues = append(result.Issues, seo.Issue{
			Type:     "sitemap_unavailable",
			Severity: seo.SeverityLow,
			Message:  err.Error(),
			URL:      a.cfg.SitemapURL,
		})
	}
	if len(candidates) == 0 {
		result.Score = 100
		result.Issues = append(result.Issues, seo.Issue{
			Type:     "no_links",
			Severity: seo.SeverityInfo,
			Message:  "No links were configured or discovered",
		})
		result.Details = Details{}
		return result, nil
	}

	checked := make([]LinkResult, len(candidates))
	g := new(errgroup.Group)
	g.SetLimit(a.cfg.Workers)
	for i, link := range candidates {
		g.Go(func() error {
			checked[i] = a.check(ctx, link)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("link audit canceled: %w", err)
	}

	details := Details{Total: len(checked), Links: checked}
	for _, r := range checked {
		switch r.Status {
		case StatusOK:
			details.OK++
		case StatusRedirect:
			details.Redirects++
			result.Issues = append(result.Issues, seo.Issue{
				Type:     "redirect",
				Severity: seo.SeverityInfo,
				Message:  fmt.Sprintf("%s redirects (%d)", r.URL, r.StatusCode),
				URL:      r.URL,
			})
		case StatusBroken:
			details.Broken++
			result.Issues = append(result.Issues, seo.Issue{
				Type:     "broken_link",
				Severity: seo.SeverityHigh,
				Message:  brokenMessage(r),
				URL:      r.URL,
			})
		}
		if r.Slow {
			details.Slow++
			result.Issues = append(result.Issues, seo.Issue{
				Type:     "slow_link",
				Severity: seo.SeverityLow,
				Message:  fmt.Sprintf("%s took %dms to respond", r.URL, r.DurationMs),
				URL:      r.URL,
			})
		}
	}
	result.Score = Score(details.Broken, details.Total)
	result.Details = details
	return result, nil
}

// Score computes the broken-link score.
func Score(broken, total int) int {
	if total <= 0 {
		return 100
	}
	return seo.ClampScore(100 - 100*float64(broken)/float64(total))
}

func brokenMessage(r LinkResult) string {
	if r.StatusCode > 0 {
		return fmt.Sprintf("%s returned %d", r.URL, r.StatusCode)
	}
	return fmt.Sprintf("%s is unreachable: %s", r.URL, r.Error)
}

func (a *Auditor) check(ctx context.Context, link string) LinkResult {
	res := LinkResult{URL: link}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, link); err != nil {
			res.Status = StatusBroken
			res.Error = err.Error()
			return res
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = a.cfg.RetryInitial
	policy.MaxInterval = a.cfg.RetryInitial * 8

	var last collyfetcher.Response
	start := time.Now()
	operation := func() (collyfetcher.Response, error) {
		resp, err := a.probe(ctx, link)
		last = resp
		switch {
		case err != nil && (ctx.Err() != nil || collyfetcher.IsTimeout(err)):
			return resp, backoff.Permanent(err)
		case err != nil:
			return resp, err
		case resp.StatusCode == http.StatusTooManyRequests:
			if a.limiter != nil {
				a.limiter.Penalize(link)
			}
			return resp, errTooManyRequests
		}
		return resp, nil
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(a.cfg.Retries)),
	)
	elapsed := time.Since(start)
	res.DurationMs = elapsed.Milliseconds()
	if last.Duration > 0 {
		res.DurationMs = last.Duration.Milliseconds()
		elapsed = last.Duration
	}
	res.StatusCode = last.StatusCode
	res.Slow = elapsed > a.cfg.SlowThreshold

	switch {
	case err != nil && last.StatusCode == 0:
		res.Status = StatusBroken
		res.Error = err.Error()
	default:
		res.Status = Classify(last.StatusCode)
	}
	return res
}

func (a *Auditor) probe(ctx context.Context, link string) (collyfetcher.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	resp, err := a.prober.Fetch(reqCtx, collyfetcher.Request{URL: link, Method: http.MethodHead})
	if err != nil {
		return collyfetcher.Response{}, err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp, err = a.prober.Fetch(reqCtx, collyfetcher.Request{URL: link, Method: http.MethodGet})
		if err != nil {
			return collyfetcher.Response{}, err
		}
	}
	return resp, nil
}

// Classify maps a status code onto ok, redirect or broken.
func Classify(code int) Status {
	switch {
	case code >= 200 && code < 300:
		return StatusOK
	case code >= 300 && code < 400:
		return StatusRedirect
	default:
		return StatusBroken
	}
}
