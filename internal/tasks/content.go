package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	collyfetcher "github.com/JakeFAU/seo-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

const defaultContentWorkers = 4

// ContentConfig names the pages watched for changes.
type ContentConfig struct {
	BaseURL    string
	SitemapURL string
	Pages      []string
	Workers    int
}

// PageError records a page that could not be checked.
type PageError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ContentReport is the content-update payload. Baseline is set on the first
// run, when nothing is available to compare against.
type ContentReport struct {
	Checked   int         `json:"checked"`
	Baseline  bool        `json:"baseline"`
	Changed   []string    `json:"changed"`
	Added     []string    `json:"added"`
	Removed   []string    `json:"removed"`
	Unchanged int         `json:"unchanged"`
	Failed    []PageError `json:"failed"`
}

type fingerprint struct {
	ETag         string
	LastModified string
	Digest       string
}

// ContentUpdate detects pages whose ETag, Last-Modified or body changed since
// the previous run. Fingerprints are kept in memory for the process lifetime.
type ContentUpdate struct {
	fetcher Fetcher
	sitemap SitemapReader
	hasher  seo.Hasher
	cfg     ContentConfig
	logger  *zap.Logger

	mu     sync.Mutex
	seeded bool
	state  map[string]fingerprint
}

// NewContentUpdate constructs the content-update task.
func NewContentUpdate(
	fetcher Fetcher,
	sitemap SitemapReader,
	hasher seo.Hasher,
	cfg ContentConfig,
	logger *zap.Logger,
) *ContentUpdate {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultContentWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentUpdate{
		fetcher: fetcher,
		sitemap: sitemap,
		hasher:  hasher,
		cfg:     cfg,
		logger:  logger,
		state:   make(map[string]fingerprint),
	}
}

// Run checks every watched page. The "urls" option restricts the run to the
// given pages and disables removal detection.
func (c *ContentUpdate) Run(ctx context.Context, opts seo.TaskOptions) (any, error) {
	restricted := opts.Strings("urls")
	targets := restricted
	if len(targets) == 0 {
		var err error
		targets, err = c.targets(ctx)
		if err != nil {
			return nil, err
		}
	}
	if len(targets) == 0 {
		return nil, errors.New("no pages to check")
	}

	prints := make([]fingerprint, len(targets))
	errs := make([]error, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i, target := range targets {
		g.Go(func() error {
			prints[i], errs[i] = c.fingerprint(gctx, target)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("content check interrupted: %w", err)
	}

	report := ContentReport{
		Checked: len(targets),
		Changed: []string{},
		Added:   []string{},
		Removed: []string{},
		Failed:  []PageError{},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	report.Baseline = !c.seeded
	seen := make(map[string]bool, len(targets))
	for i, target := range targets {
		seen[target] = true
		if errs[i] != nil {
			report.Failed = append(report.Failed, PageError{URL: target, Error: errs[i].Error()})
			continue
		}
		prev, known := c.state[target]
		switch {
		case !known:
			if c.seeded {
				report.Added = append(report.Added, target)
			}
		case prev != prints[i]:
			report.Changed = append(report.Changed, target)
		default:
			report.Unchanged++
		}
		c.state[target] = prints[i]
	}
	if len(restricted) == 0 && c.seeded {
		for known := range c.state {
			if !seen[known] {
				report.Removed = append(report.Removed, known)
				delete(c.state, known)
			}
		}
		sort.Strings(report.Removed)
	}
	if len(report.Failed) == len(targets) {
		return report, fmt.Errorf("all %d pages failed", len(targets))
	}
	c.seeded = true

	c.logger.Info("content check finished",
		zap.Int("checked", report.Checked),
		zap.Int("changed", len(report.Changed)),
		zap.Int("added", len(report.Added)),
		zap.Int("removed", len(report.Removed)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (c *ContentUpdate) targets(ctx context.Context) ([]string, error) {
	set := make(map[string]struct{})
	if c.cfg.SitemapURL != "" && c.sitemap != nil {
		pages, err := c.sitemap.Sitemap(ctx, c.cfg.SitemapURL)
		if err != nil {
			return nil, fmt.Errorf("read sitemap: %w", err)
		}
		for _, p := range pages {
			if n := collyfetcher.NormalizeURL(p); n != "" {
				set[n] = struct{}{}
			}
		}
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	for _, p := range c.cfg.Pages {
		ref, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("parse page %q: %w", p, err)
		}
		if n := collyfetcher.NormalizeURL(base.ResolveReference(ref).String()); n != "" {
			set[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (c *ContentUpdate) fingerprint(ctx context.Context, target string) (fingerprint, error) {
	resp, err := c.fetcher.Fetch(ctx, collyfetcher.Request{URL: target, Method: http.MethodHead, FollowRedirects: true})
	if err != nil {
		return fingerprint{}, err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed {
		return c.hashBody(ctx, target)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fingerprint{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	fp := fingerprint{
		ETag:         resp.Headers.Get("ETag"),
		LastModified: resp.Headers.Get("Last-Modified"),
	}
	if fp.ETag == "" && fp.LastModified == "" {
		return c.hashBody(ctx, target)
	}
	return fp, nil
}

func (c *ContentUpdate) hashBody(ctx context.Context, target string) (fingerprint, error) {
	resp, err := c.fetcher.Fetch(ctx, collyfetcher.Request{URL: target, Method: http.MethodGet, FollowRedirects: true})
	if err != nil {
		return fingerprint{}, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fingerprint{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	digest, err := c.hasher.Hash(resp.Body)
	if err != nil {
		return fingerprint{}, fmt.Errorf("hash body: %w", err)
	}
	return fingerprint{Digest: digest}, nil
}
