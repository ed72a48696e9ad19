package collyfetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"
)

// Image is an <img> element discovered on a page.
type Image struct {
	Page   string `json:"page"`
	Src    string `json:"src"`
	Alt    string `json:"alt,omitempty"`
	HasAlt bool   `json:"has_alt"`
}

// Images loads pageURL and returns every <img src> on it with absolute URLs.
func (f *Fetcher) Images(ctx context.Context, pageURL string) ([]Image, error) {
	var images []Image
	seen := make(map[string]bool)
	err := f.visitHTML(ctx, f.follow, pageURL, "img[src]", func(e *colly.HTMLElement) {
		src := e.Request.AbsoluteURL(strings.TrimSpace(e.Attr("src")))
		if src == "" || strings.HasPrefix(src, "data:") || seen[src] {
			return
		}
		seen[src] = true
		alt, hasAlt := e.DOM.Attr("alt")
		images = append(images, Image{
			Page:   pageURL,
			Src:    src,
			Alt:    strings.TrimSpace(alt),
			HasAlt: hasAlt && strings.TrimSpace(alt) != "",
		})
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// Links loads pageURL and returns the distinct absolute http(s) targets of its
// anchors, fragments removed.
func (f *Fetcher) Links(ctx context.Context, pageURL string) ([]string, error) {
	return f.links(ctx, f.follow, pageURL)
}

func (f *Fetcher) links(ctx context.Context, base *colly.Collector, pageURL string) ([]string, error) {
	var links []string
	seen := make(map[string]bool)
	err := f.visitHTML(ctx, base, pageURL, "a[href]", func(e *colly.HTMLElement) {
		link := NormalizeURL(e.Request.AbsoluteURL(e.Attr("href")))
		if link == "" || seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (f *Fetcher) visitHTML(
	ctx context.Context,
	base *colly.Collector,
	pageURL string,
	selector string,
	onElement colly.HTMLCallback,
) error {
	collector := base.Clone()
	var (
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	collector.OnHTML(selector, func(e *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}
		onElement(e)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})
	if err := f.runCollector(ctx, func() error { return collector.Visit(pageURL) }, &fetchErr); err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return &StatusError{URL: pageURL, StatusCode: status}
	}
	return nil
}

// NormalizeURL strips fragments and gives empty paths a "/" so equivalent links
// compare equal. Non-http(s) links normalize to "".
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// SameSite reports whether link points at the same host as base.
func SameSite(base, link string) bool {
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	l, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(b.Hostname(), l.Hostname())
}
