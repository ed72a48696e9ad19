package collyfetcher

import (
	"context"
	"errors"
	"fmt"
)

// CrawlRequest bounds a same-site breadth-first crawl.
type CrawlRequest struct {
	Start    string
	MaxDepth int
	MaxPages int
}

// CrawlPage is one visited page.
type CrawlPage struct {
	URL           string   `json:"url"`
	Depth         int      `json:"depth"`
	InternalLinks []string `json:"internal_links"`
	Error         string   `json:"error,omitempty"`
}

// CrawlResult is the link graph discovered by Crawl.
type CrawlResult struct {
	Pages []CrawlPage `json:"pages"`
	// Linked holds every internal URL that at least one visited page links to.
	Linked map[string]bool `json:"-"`
}

// MaxDepth returns the deepest level at which a page was reached.
func (r CrawlResult) MaxDepth() int {
	depth := 0
	for _, p := range r.Pages {
		if p.Depth > depth {
			depth = p.Depth
		}
	}
	return depth
}

// LinkDensity returns the average number of internal links per visited page.
func (r CrawlResult) LinkDensity() float64 {
	if len(r.Pages) == 0 {
		return 0
	}
	total := 0
	for _, p := range r.Pages {
		total += len(p.InternalLinks)
	}
	return float64(total) / float64(len(r.Pages))
}

// Crawl walks same-host links breadth first from req.Start so every page is
// recorded at its shortest click depth. robots.txt is honored.
func (f *Fetcher) Crawl(ctx context.Context, req CrawlRequest) (CrawlResult, error) {
	start := NormalizeURL(req.Start)
	if start == "" {
		return CrawlResult{}, fmt.Errorf("invalid crawl start %q", req.Start)
	}
	if req.MaxPages <= 0 {
		req.MaxPages = 100
	}
	if req.MaxDepth < 0 {
		req.MaxDepth = 0
	}

	result := CrawlResult{Linked: make(map[string]bool)}
	depth := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 && len(result.Pages) < req.MaxPages {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("crawl canceled: %w", err)
		}
		current := queue[0]
		queue = queue[1:]

		page := CrawlPage{URL: current, Depth: depth[current]}
		links, err := f.links(ctx, f.crawl, current)
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("crawl canceled: %w", ctx.Err())
			}
			page.Error = err.Error()
			if len(result.Pages) == 0 && !isStatus(err) {
				return result, fmt.Errorf("crawl start: %w", err)
			}
		}
		for _, link := range links {
			if !SameSite(start, link) {
				continue
			}
			page.InternalLinks = append(page.InternalLinks, link)
			result.Linked[link] = true
			if _, seen := depth[link]; seen || page.Depth+1 > req.MaxDepth {
				continue
			}
			depth[link] = page.Depth + 1
			queue = append(queue, link)
		}
		result.Pages = append(result.Pages, page)
	}
	return result, nil
}

func isStatus(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}
