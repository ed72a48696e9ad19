package collyfetcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"
)

const maxNestedSitemaps = 20

// Sitemap returns the page URLs listed in the sitemap at sitemapURL. Sitemap
// indexes are followed one level deep.
func (f *Fetcher) Sitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	pages, nested, err := f.readSitemap(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	for i, child := range nested {
		if i >= maxNestedSitemaps {
			break
		}
		childPages, _, err := f.readSitemap(ctx, child)
		if err != nil {
			return nil, fmt.Errorf("nested sitemap %s: %w", child, err)
		}
		pages = append(pages, childPages...)
	}
	return dedupe(pages), nil
}

func (f *Fetcher) readSitemap(ctx context.Context, sitemapURL string) ([]string, []string, error) {
	collector := f.follow.Clone()
	var (
		pages    []string
		nested   []string
		status   int
		fetchErr error
	)
	collector.OnResponseHeaders(func(r *colly.Response) {
		status = r.StatusCode
	})
	collector.OnXML("//urlset/url/loc", func(e *colly.XMLElement) {
		if loc := strings.TrimSpace(e.Text); loc != "" {
			pages = append(pages, loc)
		}
	})
	collector.OnXML("//sitemapindex/sitemap/loc", func(e *colly.XMLElement) {
		if loc := strings.TrimSpace(e.Text); loc != "" {
			nested = append(nested, loc)
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > status {
			status = r.StatusCode
		}
		fetchErr = err
	})
	err := f.runCollector(ctx, func() error { return collector.Visit(sitemapURL) }, &fetchErr)
	if err != nil && ctx.Err() != nil {
		return nil, nil, err
	}
	// An error page is not XML; report the status rather than the parse failure.
	if status >= 400 {
		return nil, nil, &StatusError{URL: sitemapURL, StatusCode: status}
	}
	if err != nil {
		return nil, nil, err
	}
	return pages, nested, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
