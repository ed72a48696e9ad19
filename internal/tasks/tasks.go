// Package tasks implements the named jobs run by the scheduler: the technical
// audit, vitals monitoring, content change detection, search engine sitemap
// notification and report generation.
package tasks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/seo-orchestrator/internal/audit"
	collyfetcher "github.com/JakeFAU/seo-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/seo-orchestrator/internal/scheduler"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Auditor runs technical audits.
type Auditor interface {
	PerformAudit(ctx context.Context, opts audit.Options) (seo.AuditRun, error)
}

// Fetcher issues single HTTP probes.
type Fetcher interface {
	Fetch(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// SitemapReader lists the pages of a sitemap.
type SitemapReader interface {
	Sitemap(ctx context.Context, sitemapURL string) ([]string, error)
}

// Handlers bundles the task implementations. Nil handlers are not registered.
type Handlers struct {
	ContentUpdate *ContentUpdate
	Notification  *Notification
	Performance   *Performance
	TechnicalSEO  *TechnicalSEO
	Reporting     *Reporting
}

// Registry maps each configured handler to its task name.
func (h Handlers) Registry() scheduler.Registry {
	reg := scheduler.Registry{}
	if h.ContentUpdate != nil {
		reg[seo.TaskContentUpdate] = h.ContentUpdate.Run
	}
	if h.Notification != nil {
		reg[seo.TaskSearchEngineNotification] = h.Notification.Run
	}
	if h.Performance != nil {
		reg[seo.TaskPerformanceMonitoring] = h.Performance.Run
	}
	if h.TechnicalSEO != nil {
		reg[seo.TaskTechnicalSEO] = h.TechnicalSEO.Run
	}
	if h.Reporting != nil {
		reg[seo.TaskReporting] = h.Reporting.Run
	}
	return reg
}

func stringOption(opts seo.TaskOptions, key, def string) string {
	if values := opts.Strings(key); len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return def
}

func categoriesOption(opts seo.TaskOptions) ([]seo.Category, error) {
	raw := opts.Strings("categories")
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]seo.Category, 0, len(raw))
	for _, s := range raw {
		c, err := seo.ParseCategory(s)
		if err != nil {
			return nil, fmt.Errorf("categories option: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}
