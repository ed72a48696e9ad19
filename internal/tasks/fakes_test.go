package tasks

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/JakeFAU/seo-orchestrator/internal/audit"
	collyfetcher "github.com/JakeFAU/seo-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

type fakeAuditor struct {
	run  seo.AuditRun
	err  error
	opts []audit.Options
}

func (f *fakeAuditor) PerformAudit(_ context.Context, opts audit.Options) (seo.AuditRun, error) {
	f.opts = append(f.opts, opts)
	return f.run, f.err
}

type page struct {
	status  int
	headers http.Header
	body    string
	err     error
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]page
	calls []collyfetcher.Request
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: make(map[string]page)}
}

func (f *fakeFetcher) set(url string, p page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = p
}

func (f *fakeFetcher) Fetch(_ context.Context, req collyfetcher.Request) (collyfetcher.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	p, ok := f.pages[req.URL]
	if !ok {
		return collyfetcher.Response{}, errors.New("connection refused")
	}
	if p.err != nil {
		return collyfetcher.Response{}, p.err
	}
	resp := collyfetcher.Response{URL: req.URL, FinalURL: req.URL, StatusCode: p.status, Headers: http.Header{}}
	for k, v := range p.headers {
		resp.Headers[k] = v
	}
	if req.Method != http.MethodHead {
		resp.Body = []byte(p.body)
	}
	return resp, nil
}

func (f *fakeFetcher) Calls() []collyfetcher.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]collyfetcher.Request(nil), f.calls...)
}

type fakeSitemap struct {
	pages []string
	err   error
}

func (f *fakeSitemap) Sitemap(context.Context, string) ([]string, error) {
	return f.pages, f.err
}

type recordingEmitter struct {
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.events = append(r.events, evt)
}
