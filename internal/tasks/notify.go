package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/seo-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// SitemapPlaceholder is replaced by the query-escaped sitemap URL in ping
// endpoints.
const SitemapPlaceholder = "{sitemap}"

// NotificationConfig lists the sitemap and the search engine ping endpoints.
type NotificationConfig struct {
	SitemapURL string
	PingURLs   []string
}

// PingResult is the outcome of one search engine ping.
type PingResult struct {
	Endpoint   string `json:"endpoint"`
	StatusCode int    `json:"status_code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Notification tells search engines the sitemap changed.
type Notification struct {
	fetcher Fetcher
	cfg     NotificationConfig
	logger  *zap.Logger
}

// NewNotification constructs the search-engine-notification task.
func NewNotification(fetcher Fetcher, cfg NotificationConfig, logger *zap.Logger) *Notification {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notification{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Run pings every endpoint. Any failed ping fails the task; the payload still
// lists every attempt. The "sitemap" option overrides the configured sitemap.
func (n *Notification) Run(ctx context.Context, opts seo.TaskOptions) (any, error) {
	sitemap := stringOption(opts, "sitemap", n.cfg.SitemapURL)
	if sitemap == "" {
		return nil, errors.New("no sitemap url configured")
	}
	results := make([]PingResult, 0, len(n.cfg.PingURLs))
	if len(n.cfg.PingURLs) == 0 {
		n.logger.Info("no ping endpoints configured")
		return results, nil
	}

	var errs []error
	for _, endpoint := range n.cfg.PingURLs {
		target := strings.ReplaceAll(endpoint, SitemapPlaceholder, url.QueryEscape(sitemap))
		res := PingResult{Endpoint: target}
		resp, err := n.fetcher.Fetch(ctx, collyfetcher.Request{URL: target, Method: http.MethodGet, FollowRedirects: true})
		switch {
		case err != nil:
			res.Error = err.Error()
		case resp.StatusCode >= http.StatusBadRequest:
			res.StatusCode = resp.StatusCode
			res.Error = fmt.Sprintf("status %d", resp.StatusCode)
		default:
			res.StatusCode = resp.StatusCode
		}
		res.DurationMs = resp.Duration.Milliseconds()
		if res.Error != "" {
			errs = append(errs, fmt.Errorf("ping %s: %s", target, res.Error))
			n.logger.Warn("sitemap ping failed", zap.String("endpoint", target), zap.String("error", res.Error))
		} else {
			n.logger.Info("sitemap ping sent", zap.String("endpoint", target), zap.Int("status", res.StatusCode))
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
