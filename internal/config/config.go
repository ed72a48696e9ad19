// Package config loads, validates and persists orchestrator configuration via Viper.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// EnvPrefix is prepended to every environment override (SEO_SERVER_PORT, ...).
const EnvPrefix = "SEO"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig          `mapstructure:"server"`
	Auth         AuthConfig            `mapstructure:"auth"`
	Website      WebsiteConfig         `mapstructure:"website"`
	Automation   map[string]TaskConfig `mapstructure:"automation"`
	Audit        AuditConfig           `mapstructure:"audit"`
	HTTP         HTTPConfig            `mapstructure:"http"`
	Headless     HeadlessConfig        `mapstructure:"headless"`
	RateLimit    RateLimitConfig       `mapstructure:"ratelimit"`
	Storage      StorageConfig         `mapstructure:"storage"`
	DB           DBConfig              `mapstructure:"db"`
	PubSub       PubSubConfig          `mapstructure:"pubsub"`
	Logging      LoggingConfig         `mapstructure:"logging"`
	Notification NotificationConfig    `mapstructure:"notification"`
	Watch        bool                  `mapstructure:"watch"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines dashboard basic-auth credentials.
type AuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// WebsiteConfig names the site under audit.
type WebsiteConfig struct {
	BaseURL    string   `mapstructure:"base_url"`
	Pages      []string `mapstructure:"pages"`
	Links      []string `mapstructure:"links"`
	Images     []string `mapstructure:"images"`
	SitemapURL string   `mapstructure:"sitemap_url"`
}

// TaskConfig is one automation entry.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// AuditConfig tunes the technical audit pipeline.
type AuditConfig struct {
	Categories    map[string]bool `mapstructure:"categories"`
	Parallelism   int             `mapstructure:"parallelism"`
	MaxDuration   time.Duration   `mapstructure:"max_duration"`
	TaskTimeout   time.Duration   `mapstructure:"task_timeout"`
	HistoryLimit  int             `mapstructure:"history_limit"`
	LinkTimeout   time.Duration   `mapstructure:"link_timeout"`
	SlowThreshold time.Duration   `mapstructure:"slow_threshold"`
	MaxLinks      int             `mapstructure:"max_links"`
	LinkWorkers   int             `mapstructure:"link_workers"`
	LinkRetries   int             `mapstructure:"link_retries"`
	MaxImageBytes int64           `mapstructure:"max_image_bytes"`
	Structure     StructureConfig `mapstructure:"structure"`
}

// StructureConfig bounds the site structure crawl.
type StructureConfig struct {
	Crawl    bool `mapstructure:"crawl"`
	MaxDepth int  `mapstructure:"max_depth"`
	MaxPages int  `mapstructure:"max_pages"`
}

// HTTPConfig configures the colly-backed HTTP client.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the owned chromedp browser.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	ExecPath      string `mapstructure:"exec_path"`
}

// RateLimitConfig sets the per-domain request budget of the link checker.
type RateLimitConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// StorageConfig selects persistence backends.
type StorageConfig struct {
	Backend     string        `mapstructure:"backend"`
	HistoryPath string        `mapstructure:"history_path"`
	HealthPath  string        `mapstructure:"health_path"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
	Archive     ArchiveConfig `mapstructure:"archive"`
}

// ArchiveConfig selects where finished audits and reports are written.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	HistoryTable string `mapstructure:"history_table"`
	RunsTable    string `mapstructure:"runs_table"`
	MaxConns     int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds Pub/Sub topics for alerts and task events.
type PubSubConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	AlertTopic string `mapstructure:"alert_topic"`
	EventTopic string `mapstructure:"event_topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	BufferSize  int    `mapstructure:"buffer_size"`
}

// NotificationConfig lists search engine sitemap ping endpoints. The literal
// "{sitemap}" is replaced by the escaped sitemap URL.
type NotificationConfig struct {
	PingURLs []string `mapstructure:"ping_urls"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// Parse validates a raw configuration document of the given format ("json",
// "yaml") without touching disk. Environment overrides still apply.
func Parse(raw []byte, format string) (Config, error) {
	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

// Update validates raw (JSON) and, when valid, replaces the file at path with it.
// The previous file is left untouched on any validation error.
func Update(path string, raw []byte) (Config, error) {
	if path == "" {
		return Config{}, fmt.Errorf("config path is required")
	}
	cfg, err := Parse(raw, "json")
	if err != nil {
		return Config{}, err
	}
	out := viper.New()
	out.SetConfigType("json")
	if err := out.ReadConfig(bytes.NewReader(raw)); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		ext = "json"
	}
	out.SetConfigType(ext)
	if err := out.WriteConfigAs(path); err != nil {
		return Config{}, fmt.Errorf("write config: %w", err)
	}
	return cfg, nil
}

// Watch re-reads path whenever it changes on disk and hands every valid result to
// onChange. Invalid edits are reported through onError and otherwise ignored.
func Watch(path string, onChange func(Config), onError func(error)) error {
	if path == "" {
		return fmt.Errorf("config path is required")
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Dashboard credentials keep their conventional names.
	_ = v.BindEnv("auth.username", EnvPrefix+"_AUTH_USERNAME", "DASHBOARD_USER")
	_ = v.BindEnv("auth.password", EnvPrefix+"_AUTH_PASSWORD", "DASHBOARD_PASSWORD")
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.metrics_interval", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("website.base_url", "http://localhost:3000")
	v.SetDefault("website.pages", []string{"/"})
	v.SetDefault("automation.technical-seo.enabled", true)
	v.SetDefault("automation.technical-seo.schedule", "0 3 * * 1")
	v.SetDefault("automation.performance-monitoring.enabled", true)
	v.SetDefault("automation.performance-monitoring.schedule", "0 */6 * * *")
	v.SetDefault("automation.content-update.enabled", false)
	v.SetDefault("automation.content-update.schedule", "0 2 * * *")
	v.SetDefault("automation.search-engine-notification.enabled", false)
	v.SetDefault("automation.search-engine-notification.schedule", "0 4 * * *")
	v.SetDefault("automation.reporting.enabled", true)
	v.SetDefault("automation.reporting.schedule", "0 6 * * 1")
	for _, c := range seo.Categories() {
		v.SetDefault("audit.categories."+string(c), true)
	}
	v.SetDefault("audit.parallelism", 1)
	v.SetDefault("audit.max_duration", "15m")
	v.SetDefault("audit.task_timeout", "30m")
	v.SetDefault("audit.history_limit", 50)
	v.SetDefault("audit.link_timeout", "10s")
	v.SetDefault("audit.slow_threshold", "3s")
	v.SetDefault("audit.max_links", 200)
	v.SetDefault("audit.link_workers", 8)
	v.SetDefault("audit.link_retries", 3)
	v.SetDefault("audit.max_image_bytes", 200*1024)
	v.SetDefault("audit.structure.crawl", true)
	v.SetDefault("audit.structure.max_depth", 5)
	v.SetDefault("audit.structure.max_pages", 100)
	v.SetDefault("http.user_agent", "seo-orchestrator/1.0 (+audit)")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.default_rps", 5)
	v.SetDefault("ratelimit.default_burst", 5)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.history_path", "data/seo-audit-history.json")
	v.SetDefault("storage.health_path", "data/seo-health-status.json")
	v.SetDefault("storage.sqlite_path", "data/seo.db")
	v.SetDefault("storage.archive.backend", "local")
	v.SetDefault("storage.archive.base_dir", "data/archive")
	v.SetDefault("db.history_table", "audit_runs")
	v.SetDefault("db.runs_table", "task_runs")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.buffer_size", 200)
}

var (
	storageBackends = map[string]bool{"file": true, "memory": true, "postgres": true, "sqlite": true}
	archiveBackends = map[string]bool{"": true, "none": true, "memory": true, "local": true, "gcs": true}
)

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.Password == "" {
		return fmt.Errorf("auth.password must be set when auth is enabled (DASHBOARD_PASSWORD)")
	}
	base, err := url.Parse(c.Website.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("website.base_url must be an absolute URL, got %q", c.Website.BaseURL)
	}
	if _, err := c.TaskSchedules(); err != nil {
		return err
	}
	for name := range c.Audit.Categories {
		if _, err := seo.ParseCategory(name); err != nil {
			return fmt.Errorf("audit.categories: %w", err)
		}
	}
	if c.Audit.Parallelism <= 0 {
		return fmt.Errorf("audit.parallelism must be > 0")
	}
	if c.Audit.HistoryLimit <= 0 {
		return fmt.Errorf("audit.history_limit must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if !storageBackends[c.Storage.Backend] {
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set for the postgres backend")
	}
	if !archiveBackends[c.Storage.Archive.Backend] {
		return fmt.Errorf("storage.archive.backend %q is not supported", c.Storage.Archive.Backend)
	}
	if c.Storage.Archive.Backend == "gcs" && c.Storage.Archive.Bucket == "" {
		return fmt.Errorf("storage.archive.bucket must be set for the gcs archive")
	}
	return nil
}

// TaskSchedules converts the automation section into validated schedules,
// ordered by task name. Unknown task names and unparsable expressions of enabled
// tasks are errors.
func (c Config) TaskSchedules() ([]seo.TaskSchedule, error) {
	out := make([]seo.TaskSchedule, 0, len(c.Automation))
	for key, entry := range c.Automation {
		name, err := seo.ParseTaskName(key)
		if err != nil {
			return nil, fmt.Errorf("automation: %w", err)
		}
		if entry.Enabled {
			if _, err := ParseSchedule(entry.Schedule); err != nil {
				return nil, fmt.Errorf("automation.%s.schedule: %w", name, err)
			}
		}
		out = append(out, seo.TaskSchedule{Name: name, Expression: entry.Schedule, Enabled: entry.Enabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CategoryEnabled reports whether category c participates in audits.
func (c Config) CategoryEnabled(cat seo.Category) bool {
	enabled, ok := c.Audit.Categories[string(cat)]
	return !ok || enabled
}

// HTTPTimeout converts the HTTP timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ParseSchedule parses a 5-field cron expression or a descriptor such as
// "@daily" or "@every 1h".
func ParseSchedule(expr string) (cron.Schedule, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("schedule is empty")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return sched, nil
}
