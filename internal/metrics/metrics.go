// Package metrics exposes Prometheus collectors for the orchestrator and its probes.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	probeRequestsTotal         *prometheus.CounterVec
	probeDurationSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	robotsTLSHandshakeTimeout  prometheus.Counter
	pageMeasurementsTotal      *prometheus.CounterVec
	browserTabsInUse           prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	dashboardClientsConnected  prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		probeRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_probe_requests_total",
				Help: "Total number of HTTP probes issued by auditors, labeled by site, method and status class.",
			},
			[]string{"site", "method", "status"},
		)

		probeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seo_probe_duration_seconds",
				Help:    "Histogram of HTTP probe latencies, labeled by method.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"method"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		robotsTLSHandshakeTimeout = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seo_robots_tls_handshake_timeout_total",
				Help: "Total TLS handshake timeouts encountered while fetching robots.txt.",
			},
		)

		pageMeasurementsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_page_measurements_total",
				Help: "Total headless page measurements, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		browserTabsInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "seo_browser_tabs_in_use",
				Help: "Number of headless browser tabs currently open.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seo_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		dashboardClientsConnected = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "seo_dashboard_clients_connected",
				Help: "Number of dashboard WebSocket clients connected.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// StatusClass buckets an HTTP status code ("2xx", "4xx", ...). Zero means the
// request never produced a response.
func StatusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProbe records one auditor HTTP probe.
func ObserveProbe(site, method string, code int, duration time.Duration) {
	if probeRequestsTotal == nil {
		return
	}
	probeRequestsTotal.WithLabelValues(SanitizeSite(site), method, StatusClass(code)).Inc()
	probeDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsTLSHandshakeTimeout increments the robots.txt handshake timeout counter.
func ObserveRobotsTLSHandshakeTimeout() {
	if robotsTLSHandshakeTimeout == nil {
		return
	}
	robotsTLSHandshakeTimeout.Inc()
}

// ObservePageMeasurement counts one headless measurement of the given kind.
func ObservePageMeasurement(kind string, err error) {
	if pageMeasurementsTotal == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	pageMeasurementsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncBrowserTabs increments the open tab gauge.
func IncBrowserTabs() {
	if browserTabsInUse != nil {
		browserTabsInUse.Inc()
	}
}

// DecBrowserTabs decrements the open tab gauge.
func DecBrowserTabs() {
	if browserTabsInUse != nil {
		browserTabsInUse.Dec()
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// SetDashboardClients records the number of connected dashboard clients.
func SetDashboardClients(n int) {
	if dashboardClientsConnected != nil {
		dashboardClientsConnected.Set(float64(n))
	}
}
