package images

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/seo-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

type fakeInspector struct {
	mu      sync.Mutex
	pages   map[string][]collyfetcher.Image
	pageErr map[string]error
	heads   map[string]collyfetcher.Response
}

func (f *fakeInspector) Images(_ context.Context, pageURL string) ([]collyfetcher.Image, error) {
	if err := f.pageErr[pageURL]; err != nil {
		return nil, err
	}
	return f.pages[pageURL], nil
}

func (f *fakeInspector) Fetch(_ context.Context, req collyfetcher.Request) (collyfetcher.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, ok := f.heads[req.URL]
	if !ok {
		return collyfetcher.Response{}, errors.New("connection refused")
	}
	return resp, nil
}

func head(contentType, length string) collyfetcher.Response {
	return collyfetcher.Response{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {contentType}, "Content-Length": {length}},
	}
}

func TestAuditFlagsImageProblems(t *testing.T) {
	t.Parallel()

	home := "https://eyecare.example/"
	inspector := &fakeInspector{
		pages: map[string][]collyfetcher.Image{
			home: {
				{Page: home, Src: "https://eyecare.example/hero.webp", HasAlt: true},
				{Page: home, Src: "https://eyecare.example/team.jpg", HasAlt: true},
				{Page: home, Src: "https://eyecare.example/logo.svg", HasAlt: false},
				{Page: home, Src: "https://eyecare.example/clinic.avif", HasAlt: true},
			},
		},
		heads: map[string]collyfetcher.Response{
			"https://eyecare.example/hero.webp":   head("image/webp", "50000"),
			"https://eyecare.example/team.jpg":    head("image/jpeg", "900000"),
			"https://eyecare.example/logo.svg":    head("image/svg+xml", "2000"),
			"https://eyecare.example/clinic.avif": head("image/avif", "40000"),
			"https://cdn.example/frames.png":      head("", ""),
		},
	}
	a := New(Config{
		Pages:    []string{home},
		Images:   []string{"https://cdn.example/frames.png"},
		MaxBytes: 200 * 1024,
	}, inspector, nil)

	res, err := a.Audit(context.Background())
	require.NoError(t, err)
	require.Equal(t, seo.CategoryImages, a.Category())

	details := res.Details.(Details)
	require.Equal(t, 5, details.Total)
	require.Equal(t, 3, details.WithIssues)
	require.Equal(t, 40, res.Score)

	byURL := make(map[string]ImageResult)
	for _, img := range details.Images {
		byURL[img.URL] = img
	}
	require.ElementsMatch(t, []string{ProblemFormat, ProblemOversized}, byURL["https://eyecare.example/team.jpg"].Problems)
	require.Equal(t, []string{ProblemMissingAlt}, byURL["https://eyecare.example/logo.svg"].Problems)
	require.Equal(t, "svg", byURL["https://eyecare.example/logo.svg"].Format)
	require.Equal(t, []string{ProblemFormat}, byURL["https://cdn.example/frames.png"].Problems, "static images have unknown alt")
	require.Empty(t, byURL["https://eyecare.example/hero.webp"].Problems)
}

func TestAuditRecordsUnreachableImages(t *testing.T) {
	t.Parallel()

	inspector := &fakeInspector{heads: map[string]collyfetcher.Response{}}
	res, err := New(Config{Images: []string{"https://eyecare.example/missing.webp"}}, inspector, nil).Audit(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.Score)
	require.Equal(t, ProblemUnreachable, res.Issues[0].Type)
	require.Equal(t, seo.SeverityHigh, res.Issues[0].Severity)
}

func TestAuditErrorsWhenNoPageLoads(t *testing.T) {
	t.Parallel()

	inspector := &fakeInspector{pageErr: map[string]error{"https://eyecare.example/": errors.New("timeout")}}
	_, err := New(Config{Pages: []string{"https://eyecare.example/"}}, inspector, nil).Audit(context.Background())
	require.Error(t, err)

	res, err := New(Config{}, inspector, nil).Audit(context.Background())
	require.NoError(t, err)
	require.Equal(t, 100, res.Score)
}

func TestFormatOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "webp", formatOf("https://x/a.png", "image/webp"))
	require.Equal(t, "svg", formatOf("https://x/a", "image/svg+xml; charset=utf-8"))
	require.Equal(t, "jpeg", formatOf("https://x/a.JPG?v=2", ""))
	require.Equal(t, "png", formatOf("https://x/a.png", "application/octet-stream"))
	require.Equal(t, "", formatOf("https://x/a", ""))
}
