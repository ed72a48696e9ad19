// Package images audits image formats, alt text and weight.
package images

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	collyfetcher "github.com/JakeFAU/seo-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Inspector discovers images on pages and probes image URLs.
type Inspector interface {
	Images(ctx context.Context, pageURL string) ([]collyfetcher.Image, error)
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Config tunes the image audit.
type Config struct {
	Pages    []string
	Images   []string
	MaxBytes int64
	Workers  int
}

// ImageResult is the assessment of one image.
type ImageResult struct {
	URL       string   `json:"url"`
	Page      string   `json:"page,omitempty"`
	Format    string   `json:"format,omitempty"`
	SizeBytes int64    `json:"size_bytes,omitempty"`
	Problems  []string `json:"problems,omitempty"`
}

// Details is the category detail payload.
type Details struct {
	Total      int           `json:"total"`
	WithIssues int           `json:"with_issues"`
	Images     []ImageResult `json:"images"`
}

// Problem identifiers recorded per image.
const (
	ProblemFormat      = "legacy_format"
	ProblemMissingAlt  = "missing_alt"
	ProblemOversized   = "oversized"
	ProblemUnreachable = "unreachable"
)

var nextGen = map[string]bool{"webp": true, "avif": true, "svg": true}

// Auditor inspects the images of the configured pages plus static image URLs.
type Auditor struct {
	cfg       Config
	inspector Inspector
	logger    *zap.Logger
}

// New builds an Auditor.
func New(cfg Config, inspector Inspector, logger *zap.Logger) *Auditor {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 200 * 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{cfg: cfg, inspector: inspector, logger: logger}
}

// Category implements the audit contract.
func (a *Auditor) Category() seo.Category {
	return seo.CategoryImages
}

// Audit scores the category as max(0, 100 - 100*withIssues/total).
func (a *Auditor) Audit(ctx context.Context) (*seo.CategoryResult, error) {
	result := &seo.CategoryResult{Issues: []seo.Issue{}}
	candidates, pageFailures := a.discover(ctx)
	result.Issues = append(result.Issues, pageFailures...)
	if len(candidates) == 0 {
		if len(pageFailures) > 0 && len(pageFailures) == len(a.cfg.Pages) && len(a.cfg.Images) == 0 {
			return nil, errors.New("no page could be loaded for image discovery")
		}
		result.Score = 100
		result.Issues = append(result.Issues, seo.Issue{
			Type:     "no_images",
			Severity: seo.SeverityInfo,
			Message:  "No images were configured or discovered",
		})
		result.Details = Details{}
		return result, nil
	}

	assessed := make([]ImageResult, len(candidates))
	g := new(errgroup.Group)
	g.SetLimit(a.cfg.Workers)
	for i, img := range candidates {
		g.Go(func() error {
			assessed[i] = a.assess(ctx, img)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("image audit canceled: %w", err)
	}

	details := Details{Total: len(assessed), Images: assessed}
	for _, img := range assessed {
		if len(img.Problems) == 0 {
			continue
		}
		details.WithIssues++
		for _, p := range img.Problems {
			result.Issues = append(result.Issues, issueFor(img, p, a.cfg.MaxBytes))
		}
	}
	result.Score = seo.ClampScore(100 - 100*float64(details.WithIssues)/float64(details.Total))
	result.Details = details
	return result, nil
}

type candidate struct {
	image      collyfetcher.Image
	altUnknown bool
}

func (a *Auditor) discover(ctx context.Context) ([]candidate, []seo.Issue) {
	seen := make(map[string]bool)
	var (
		out      []candidate
		failures []seo.Issue
	)
	for _, page := range a.cfg.Pages {
		found, err := a.inspector.Images(ctx, page)
		if err != nil {
			a.logger.Warn("image discovery failed", zap.String("page", page), zap.Error(err))
			failures = append(failures, seo.Issue{
				Type:     "page_error",
				Severity: seo.SeverityMedium,
				Message:  fmt.Sprintf("Could not load %s: %v", page, err),
				URL:      page,
			})
			continue
		}
		for _, img := range found {
			if seen[img.Src] {
				continue
			}
			seen[img.Src] = true
			out = append(out, candidate{image: img})
		}
	}
	for _, src := range a.cfg.Images {
		if seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, candidate{image: collyfetcher.Image{Src: src}, altUnknown: true})
	}
	return out, failures
}

func (a *Auditor) assess(ctx context.Context, c candidate) ImageResult {
	res := ImageResult{URL: c.image.Src, Page: c.image.Page}
	if !c.altUnknown && !c.image.HasAlt {
		res.Problems = append(res.Problems, ProblemMissingAlt)
	}

	resp, err := a.inspector.Fetch(ctx, collyfetcher.Request{
		URL:             c.image.Src,
		Method:          http.MethodHead,
		FollowRedirects: true,
	})
	if err != nil || resp.StatusCode >= http.StatusBadRequest {
		res.Format = formatOf(c.image.Src, "")
		res.Problems = append(res.Problems, ProblemUnreachable)
		return res
	}

	res.Format = formatOf(c.image.Src, resp.Headers.Get("Content-Type"))
	if !nextGen[res.Format] {
		res.Problems = append(res.Problems, ProblemFormat)
	}
	if size, err := strconv.ParseInt(resp.Headers.Get("Content-Length"), 10, 64); err == nil {
		res.SizeBytes = size
		if size > a.cfg.MaxBytes {
			res.Problems = append(res.Problems, ProblemOversized)
		}
	}
	return res
}

// formatOf prefers the response media type and falls back to the file extension.
func formatOf(rawURL, contentType string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "image/") {
			sub := strings.TrimPrefix(mt, "image/")
			sub = strings.TrimSuffix(sub, "+xml")
			if sub == "jpg" {
				sub = "jpeg"
			}
			return sub
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if ext == "jpg" {
		ext = "jpeg"
	}
	return ext
}

func issueFor(img ImageResult, problem string, maxBytes int64) seo.Issue {
	issue := seo.Issue{Type: problem, URL: img.URL}
	switch problem {
	case ProblemMissingAlt:
		issue.Severity = seo.SeverityMedium
		issue.Message = fmt.Sprintf("Image on %s has no alt text", img.Page)
	case ProblemFormat:
		issue.Severity = seo.SeverityLow
		issue.Message = fmt.Sprintf("Image is %s; serve WebP or AVIF instead", displayFormat(img.Format))
	case ProblemOversized:
		issue.Severity = seo.SeverityMedium
		issue.Message = fmt.Sprintf("Image is %d KB, above the %d KB budget", img.SizeBytes/1024, maxBytes/1024)
	default:
		issue.Severity = seo.SeverityHigh
		issue.Message = "Image could not be loaded"
	}
	return issue
}

func displayFormat(format string) string {
	if format == "" {
		return "of unknown format"
	}
	return strings.ToUpper(format)
}
