package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/audit"
	"github.com/JakeFAU/seo-orchestrator/internal/config"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

func testConfig(t *testing.T, siteURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	raw := fmt.Sprintf(`{
		"auth": {"enabled": true, "username": "ops", "password": "secret"},
		"website": {"base_url": %q, "pages": ["/", "/contact"]},
		"headless": {"enabled": false},
		"storage": {
			"backend": "memory",
			"health_path": %q,
			"archive": {"backend": "none"}
		},
		"notification": {"ping_urls": [%q]}
	}`, siteURL, filepath.Join(dir, "health.json"), siteURL+"/ping?sitemap={sitemap}")
	cfg, err := config.Parse([]byte(raw), "json")
	require.NoError(t, err)
	return cfg
}

func buildTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	app, err := Build(context.Background(), cfg, Options{
		Registerer: prometheus.NewRegistry(),
		Logger:     zap.NewNop(),
		Clock:      clockwork.NewFakeClockAt(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestBuildRunsNotificationTask(t *testing.T) {
	t.Parallel()

	var pings atomic.Int32
	var sitemap atomic.Value
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			pings.Add(1)
			sitemap.Store(r.URL.Query().Get("sitemap"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(site.Close)

	app := buildTestApp(t, testConfig(t, site.URL))

	res, err := app.RunTask(context.Background(), seo.TaskSearchEngineNotification, nil)
	require.NoError(t, err)
	require.Equal(t, seo.TaskStatusSuccess, res.Status)
	require.Equal(t, seo.TriggerManual, res.Trigger)
	require.EqualValues(t, 1, pings.Load())
	require.Equal(t, site.URL+"/sitemap.xml", sitemap.Load())

	require.Eventually(t, func() bool {
		summary, err := app.Status(context.Background(), 10)
		return err == nil && len(summary.RecentRuns) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestBuildReportsBrowserUnavailable(t *testing.T) {
	t.Parallel()

	app := buildTestApp(t, testConfig(t, "https://example.com"))

	report, err := app.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, seo.HealthDegraded, report.Overall)
	require.Contains(t, report.Services, audit.ServiceName)
	require.Contains(t, report.Services[audit.ServiceName].Message, "headless browser disabled")
}

func TestStatusWithoutHistory(t *testing.T) {
	t.Parallel()

	app := buildTestApp(t, testConfig(t, "https://example.com"))

	summary, err := app.Status(context.Background(), 5)
	require.NoError(t, err)
	require.Nil(t, summary.LatestAudit)
	require.Empty(t, summary.RecentRuns)
	require.Len(t, summary.Tasks, len(seo.TaskNames()))
}

func TestHandlerRequiresAuth(t *testing.T) {
	t.Parallel()

	app := buildTestApp(t, testConfig(t, "https://example.com"))
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/status", nil)
	require.NoError(t, err)
	req.SetBasicAuth("ops", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body, "tasks")
}

func TestApplyConfigKeepsValidSchedules(t *testing.T) {
	t.Parallel()

	app := buildTestApp(t, testConfig(t, "https://example.com"))
	cfg := app.Config()
	cfg.Automation = map[string]config.TaskConfig{
		string(seo.TaskReporting): {Enabled: true, Schedule: "@hourly"},
	}
	app.applyConfig(cfg)
	require.True(t, app.Config().Automation[string(seo.TaskReporting)].Enabled)

	cfg.Automation = map[string]config.TaskConfig{"bogus": {Enabled: true, Schedule: "@hourly"}}
	app.applyConfig(cfg)
	require.Contains(t, app.Config().Automation, string(seo.TaskReporting))
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	app := buildTestApp(t, testConfig(t, "https://example.com"))
	require.NoError(t, app.Close(context.Background()))
	require.NoError(t, app.Close(context.Background()))
}

func TestAbsoluteURLs(t *testing.T) {
	t.Parallel()

	got := absoluteURLs("https://eyes.example.com/clinic/", []string{
		"/", "services", " ", "https://cdn.example.com/a.png",
	})
	require.Equal(t, []string{
		"https://eyes.example.com/",
		"https://eyes.example.com/clinic/services",
		"https://cdn.example.com/a.png",
	}, got)
}

func TestSitemapURLDefault(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://x.example/sitemap.xml", sitemapURL(config.WebsiteConfig{BaseURL: "https://x.example/"}))
	require.Equal(t, "https://x.example/s.xml", sitemapURL(config.WebsiteConfig{
		BaseURL:    "https://x.example/",
		SitemapURL: "https://x.example/s.xml",
	}))
}
