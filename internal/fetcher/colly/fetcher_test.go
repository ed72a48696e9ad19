package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000")
		fmt.Fprint(w, `<html><body>
<a href="/services#top">Services</a>
<a href="/contact">Contact</a>
<a href="https://elsewhere.example/">Partner</a>
<a href="mailto:frontdesk@eyecare.example">Mail</a>
<img src="/img/hero.jpg" alt="Optometrist at work">
<img src="/img/logo.svg">
<img src="data:image/png;base64,AAAA">
</body></html>`)
	})
	mux.HandleFunc("/services", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/">Home</a><a href="/services/lasik">LASIK</a></body></html>`)
	})
	mux.HandleFunc("/services/lasik", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/services">Back</a></body></html>`)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/">Home</a></body></html>`)
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/contact", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/method", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nAllow: /\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchClassifiesStatuses(t *testing.T) {
	t.Parallel()
	srv := newSiteServer(t)
	f := New(Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	ctx := context.Background()

	resp, err := f.Fetch(ctx, Request{URL: srv.URL + "/"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "max-age=63072000", resp.Headers.Get("Strict-Transport-Security"))
	require.Contains(t, string(resp.Body), "Services")

	resp, err = f.Fetch(ctx, Request{URL: srv.URL + "/old", Method: http.MethodHead})
	require.NoError(t, err)
	require.Equal(t, http.StatusMovedPermanently, resp.StatusCode)

	resp, err = f.Fetch(ctx, Request{URL: srv.URL + "/old", FollowRedirects: true})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, srv.URL+"/contact", resp.FinalURL)

	resp, err = f.Fetch(ctx, Request{URL: srv.URL + "/gone"})
	require.NoError(t, err, "error statuses are responses")
	require.Equal(t, http.StatusGone, resp.StatusCode)

	resp, err = f.Fetch(ctx, Request{URL: srv.URL + "/method", Method: http.MethodHead})
	require.NoError(t, err)
	require.Equal(t, http.MethodHead, resp.Headers.Get("X-Method"))
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), Request{URL: addr + "/"})
	require.Error(t, err)
}

func TestFetchHonorsContext(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	f := New(Config{Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, Request{URL: srv.URL})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.True(t, IsTimeout(err))
}

func TestImagesAndLinks(t *testing.T) {
	t.Parallel()
	srv := newSiteServer(t)
	f := New(Config{Timeout: 5 * time.Second})
	ctx := context.Background()

	images, err := f.Images(ctx, srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, images, 2)
	require.Equal(t, srv.URL+"/img/hero.jpg", images[0].Src)
	require.True(t, images[0].HasAlt)
	require.False(t, images[1].HasAlt)

	links, err := f.Links(ctx, srv.URL+"/")
	require.NoError(t, err)
	require.Equal(t, []string{
		srv.URL + "/services",
		srv.URL + "/contact",
		"https://elsewhere.example/",
	}, links)

	_, err = f.Images(ctx, srv.URL+"/gone")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusGone, statusErr.StatusCode)
}

func TestCrawlRecordsShortestDepth(t *testing.T) {
	t.Parallel()
	srv := newSiteServer(t)
	f := New(Config{Timeout: 5 * time.Second})

	res, err := f.Crawl(context.Background(), CrawlRequest{Start: srv.URL, MaxDepth: 5, MaxPages: 10})
	require.NoError(t, err)
	require.Len(t, res.Pages, 4)

	depths := make(map[string]int)
	for _, p := range res.Pages {
		depths[p.URL] = p.Depth
	}
	require.Equal(t, 0, depths[srv.URL+"/"])
	require.Equal(t, 1, depths[srv.URL+"/services"])
	require.Equal(t, 1, depths[srv.URL+"/contact"])
	require.Equal(t, 2, depths[srv.URL+"/services/lasik"])
	require.Equal(t, 2, res.MaxDepth())
	require.True(t, res.Linked[srv.URL+"/services/lasik"])
	require.False(t, res.Linked["https://elsewhere.example/"])
	require.InDelta(t, 6.0/4.0, res.LinkDensity(), 0.001)

	bounded, err := f.Crawl(context.Background(), CrawlRequest{Start: srv.URL, MaxDepth: 1, MaxPages: 10})
	require.NoError(t, err)
	require.Len(t, bounded.Pages, 3)

	capped, err := f.Crawl(context.Background(), CrawlRequest{Start: srv.URL, MaxDepth: 5, MaxPages: 2})
	require.NoError(t, err)
	require.Len(t, capped.Pages, 2)
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://eyecare.example/", NormalizeURL("https://EyeCare.example#hero"))
	require.Equal(t, "https://eyecare.example/a?b=1", NormalizeURL("https://eyecare.example/a?b=1#x"))
	require.Empty(t, NormalizeURL("mailto:frontdesk@eyecare.example"))
	require.Empty(t, NormalizeURL("javascript:void(0)"))
	require.True(t, SameSite("https://eyecare.example", "https://EYECARE.example/x"))
	require.False(t, SameSite("https://eyecare.example", "https://cdn.example/x"))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := Request{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	start := time.Unix(0, 0)
	var result Response
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, start, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com/final"),
		},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "https://example.com/final", result.FinalURL)
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
