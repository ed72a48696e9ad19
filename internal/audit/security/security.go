// Package security audits transport security and protective response headers.
package security

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/seo-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Fetcher performs the single probe the audit needs.
type Fetcher interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// HTTPSWeight is awarded when the final URL is served over TLS.
const HTTPSWeight = 40

// Header is a scored response header.
type Header struct {
	Name     string
	Weight   int
	Severity seo.Severity
	Advice   string
}

// Headers lists the checked headers; weights sum to 100 with HTTPSWeight.
var Headers = []Header{
	{"Strict-Transport-Security", 15, seo.SeverityHigh, "Add an HSTS header so browsers always use HTTPS"},
	{"Content-Security-Policy", 15, seo.SeverityHigh, "Define a Content-Security-Policy to limit script sources"},
	{"X-Frame-Options", 10, seo.SeverityMedium, "Set X-Frame-Options to DENY or SAMEORIGIN to prevent clickjacking"},
	{"X-Content-Type-Options", 10, seo.SeverityMedium, "Set X-Content-Type-Options: nosniff"},
	{"Referrer-Policy", 10, seo.SeverityMedium, "Set a Referrer-Policy such as strict-origin-when-cross-origin"},
}

// Details is the category detail payload.
type Details struct {
	URL        string          `json:"url"`
	FinalURL   string          `json:"final_url"`
	StatusCode int             `json:"status_code"`
	HTTPS      bool            `json:"https"`
	Headers    map[string]bool `json:"headers"`
}

// Auditor inspects the base URL response.
type Auditor struct {
	baseURL string
	fetcher Fetcher
	logger  *zap.Logger
}

// New builds an Auditor.
func New(baseURL string, fetcher Fetcher, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{baseURL: baseURL, fetcher: fetcher, logger: logger}
}

// Category implements the audit contract.
func (a *Auditor) Category() seo.Category {
	return seo.CategorySecurity
}

// Audit issues one GET (following redirects) and scores what came back.
func (a *Auditor) Audit(ctx context.Context) (*seo.CategoryResult, error) {
	resp, err := a.fetcher.Fetch(ctx, collyfetcher.Request{
		URL:             a.baseURL,
		Method:          http.MethodGet,
		FollowRedirects: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", a.baseURL, err)
	}
	final := resp.FinalURL
	if final == "" {
		final = a.baseURL
	}
	details := Details{
		URL:        a.baseURL,
		FinalURL:   final,
		StatusCode: resp.StatusCode,
		HTTPS:      isHTTPS(final),
		Headers:    make(map[string]bool, len(Headers)),
	}
	for _, h := range Headers {
		details.Headers[h.Name] = strings.TrimSpace(resp.Headers.Get(h.Name)) != ""
	}
	score, issues := Score(details)
	a.logger.Debug("security headers checked", zap.String("url", final), zap.Int("score", score))
	return &seo.CategoryResult{Score: score, Issues: issues, Details: details}, nil
}

// Score sums the weights of what is present and reports what is missing.
func Score(d Details) (int, []seo.Issue) {
	score := 0
	issues := []seo.Issue{}
	if d.HTTPS {
		score += HTTPSWeight
	} else {
		issues = append(issues, seo.Issue{
			Type:     "no_https",
			Severity: seo.SeverityHigh,
			Message:  "Site is not served over HTTPS",
			URL:      d.FinalURL,
		})
	}
	for _, h := range Headers {
		if d.Headers[h.Name] {
			score += h.Weight
			continue
		}
		issues = append(issues, seo.Issue{
			Type:     "missing_header",
			Severity: h.Severity,
			Message:  fmt.Sprintf("Missing %s header", h.Name),
			URL:      d.FinalURL,
			Subject:  h.Name,
		})
	}
	return seo.ClampScore(float64(score)), issues
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.EqualFold(u.Scheme, "https")
}
