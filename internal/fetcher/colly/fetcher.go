// Package collyfetcher implements the HTTP probes used by the audit pipeline on
// top of gocolly: GET/HEAD fetches, element extraction, sitemap parsing and a
// bounded same-site crawl.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/seo-orchestrator/internal/metrics"
)

const maxRedirects = 10

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
	// Transport overrides the default pooled transport (tests use httptest clients).
	Transport http.RoundTripper
}

// Request describes a single probe.
type Request struct {
	URL             string
	Method          string
	FollowRedirects bool
	Headers         http.Header
}

// Response is the observable outcome of a probe.
type Response struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StatusError reports a page that answered with an error status where content
// was required.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s answered %d", e.URL, e.StatusCode)
}

// Fetcher issues probes through pre-built Colly collectors. Collectors that share
// an HTTP backend are cloned per probe; redirect policy lives on the backend, so
// each policy gets its own base collector.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	follow    *colly.Collector
	noFollow  *colly.Collector
	crawl     *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}

	follow := newBaseCollector(cfg, transport)
	follow.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	})

	noFollow := newBaseCollector(cfg, transport)
	noFollow.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	crawl := newBaseCollector(cfg, &robotsAwareTransport{base: transport})
	crawl.IgnoreRobotsTxt = false

	return &Fetcher{
		cfg:       cfg,
		transport: transport,
		follow:    follow,
		noFollow:  noFollow,
		crawl:     crawl,
	}
}

func newBaseCollector(cfg Config, transport http.RoundTripper) *colly.Collector {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)
	return c
}

// Fetch executes a single GET or HEAD probe. Error statuses are returned as
// responses; only transport failures are errors.
func (f *Fetcher) Fetch(ctx context.Context, request Request) (Response, error) {
	if request.Method == "" {
		request.Method = http.MethodGet
	}
	var (
		result   Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)
	err := f.runCollector(ctx, func() error {
		return collector.Request(request.Method, request.URL, nil, nil, nil)
	}, &fetchErr)
	if err != nil {
		metrics.ObserveProbe(request.URL, request.Method, 0, time.Since(start))
		return Response{}, err
	}
	metrics.ObserveProbe(request.URL, request.Method, result.StatusCode, result.Duration)
	return result, nil
}

func (f *Fetcher) buildCollector(
	request Request,
	start time.Time,
	result *Response,
	fetchErr *error,
) *colly.Collector {
	base := f.noFollow
	if request.FollowRedirects {
		base = f.follow
	}
	collector := base.Clone()
	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request Request,
	start time.Time,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        request.URL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		// Status errors are parsed as responses; anything left is transport level.
		if r != nil && r.StatusCode > 0 && result.StatusCode == 0 {
			*result = Response{
				URL:        request.URL,
				StatusCode: r.StatusCode,
				Duration:   time.Since(start),
			}
			if r.Headers != nil {
				result.Headers = r.Headers.Clone()
			}
			if r.Request != nil && r.Request.URL != nil {
				result.FinalURL = r.Request.URL.String()
			}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, visit func() error, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func copyHeaders(headers http.Header, r *colly.Request) {
	if headers == nil {
		return
	}
	for key, values := range headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// IsTimeout reports whether err came from a request deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
