package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/seo-orchestrator/internal/alert"
	"github.com/JakeFAU/seo-orchestrator/internal/api"
	"github.com/JakeFAU/seo-orchestrator/internal/audit"
	"github.com/JakeFAU/seo-orchestrator/internal/audit/images"
	"github.com/JakeFAU/seo-orchestrator/internal/audit/links"
	"github.com/JakeFAU/seo-orchestrator/internal/audit/mobile"
	"github.com/JakeFAU/seo-orchestrator/internal/audit/security"
	"github.com/JakeFAU/seo-orchestrator/internal/audit/structure"
	"github.com/JakeFAU/seo-orchestrator/internal/audit/vitals"
	"github.com/JakeFAU/seo-orchestrator/internal/browser"
	"github.com/JakeFAU/seo-orchestrator/internal/config"
	collyfetcher "github.com/JakeFAU/seo-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/seo-orchestrator/internal/hash/sha256"
	"github.com/JakeFAU/seo-orchestrator/internal/id/uuid"
	"github.com/JakeFAU/seo-orchestrator/internal/logging"
	"github.com/JakeFAU/seo-orchestrator/internal/metrics"
	"github.com/JakeFAU/seo-orchestrator/internal/policy/ratelimit"
	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	progresssinks "github.com/JakeFAU/seo-orchestrator/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/seo-orchestrator/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/seo-orchestrator/internal/publisher/pubsub"
	"github.com/JakeFAU/seo-orchestrator/internal/report"
	"github.com/JakeFAU/seo-orchestrator/internal/scheduler"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/storage"
	filehistory "github.com/JakeFAU/seo-orchestrator/internal/storage/history/file"
	memoryhistory "github.com/JakeFAU/seo-orchestrator/internal/storage/history/memory"
	pghistory "github.com/JakeFAU/seo-orchestrator/internal/storage/history/postgres"
	sqlitehistory "github.com/JakeFAU/seo-orchestrator/internal/storage/history/sqlite"
	"github.com/JakeFAU/seo-orchestrator/internal/storage/local"
	memorystorage "github.com/JakeFAU/seo-orchestrator/internal/storage/memory"
	pgstore "github.com/JakeFAU/seo-orchestrator/internal/storage/postgres"
	"github.com/JakeFAU/seo-orchestrator/internal/tasks"
)

// pageBrowser is the owned headless browser or its unavailable stand-in.
type pageBrowser interface {
	MeasureVitals(ctx context.Context, url string) (browser.Vitals, error)
	InspectLayout(ctx context.Context, url string, vp browser.Viewport) (browser.Layout, error)
	Ping(ctx context.Context) error
	Close() error
}

type eventPublisher interface {
	seo.Publisher
	Close() error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	recorder := logging.NewRecorder(cfg.Logging.BufferSize)
	logger, err := buildLogger(cfg, opts, recorder)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	app := &App{
		opts:     opts,
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		clock:    clock,
		started:  clock.Now(),
	}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("base_url", cfg.Website.BaseURL),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	if err := app.setupStores(ctx, cfg); err != nil {
		app.releasePartial()
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx, cfg)
	if err != nil {
		app.releasePartial()
		return nil, err
	}
	if err := app.setupArchive(ctx, cfg); err != nil {
		app.releasePartial()
		return nil, err
	}
	if err := app.setupProgress(ctx, cfg, opts.Registerer, publisher); err != nil {
		app.releasePartial()
		return nil, err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.HTTPTimeout(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})
	logger.Info("using colly fetcher", zap.String("user_agent", cfg.HTTP.UserAgent))

	br := app.setupBrowser(ctx, cfg)
	app.audit = audit.New(
		buildAuditors(cfg, fetcher, br, logger.Named("audit")),
		app.history,
		archiveOrNil(app.archive),
		br,
		uuid.New("audit"),
		clock,
		audit.Config{
			Enabled:     enabledCategories(cfg),
			Parallelism: cfg.Audit.Parallelism,
			MaxDuration: cfg.Audit.MaxDuration,
		},
		logger.Named("audit"),
	)

	statusFile, err := local.NewStatusFile(cfg.Storage.HealthPath)
	if err != nil {
		app.releasePartial()
		return nil, fmt.Errorf("health status file init failed: %w", err)
	}

	hasher := sha256.New()
	builder := report.NewBuilder(app.history, app.runs, clock)
	var reportArchive seo.BlobStore = storage.NewMemoryArchive()
	if app.archive != nil {
		reportArchive = app.archive
	}
	handlers := tasks.Handlers{
		TechnicalSEO: tasks.NewTechnicalSEO(app.audit, logger.Named("tasks")),
		Performance:  tasks.NewPerformance(app.audit, app.hub, clock, logger.Named("tasks")),
		ContentUpdate: tasks.NewContentUpdate(fetcher, fetcher, hasher, tasks.ContentConfig{
			BaseURL:    cfg.Website.BaseURL,
			SitemapURL: cfg.Website.SitemapURL,
			Pages:      cfg.Website.Pages,
			Workers:    cfg.Audit.LinkWorkers,
		}, logger.Named("tasks")),
		Notification: tasks.NewNotification(fetcher, tasks.NotificationConfig{
			SitemapURL: sitemapURL(cfg.Website),
			PingURLs:   cfg.Notification.PingURLs,
		}, logger.Named("tasks")),
		Reporting: tasks.NewReporting(builder, reportArchive, hasher, clock, tasks.ReportingConfig{
			Prefix:       "reports",
			Format:       report.TypePDF,
			HistoryLimit: cfg.Audit.HistoryLimit,
		}, logger.Named("tasks")),
	}

	notifier := alert.Multi{
		alert.NewLog(logger.Named("alert")),
		alert.NewPublisher(publisher, cfg.PubSub.AlertTopic),
		alert.NewEmitter(app.hub),
	}
	app.scheduler = scheduler.New(
		handlers.Registry(),
		[]seo.Service{app.audit},
		clock,
		uuid.New("run"),
		app.hub,
		notifier,
		statusFile,
		scheduler.Config{TaskTimeout: cfg.Audit.TaskTimeout},
		logger.Named("scheduler"),
	)

	app.apiServer = api.NewServer(
		app.scheduler,
		builder,
		app.history,
		app.runs,
		recorder,
		app.stream,
		api.Options{
			Auth:           cfg.Auth,
			RequestTimeout: cfg.Server.RequestTimeout,
			ConfigPath:     opts.ConfigPath,
			OnConfigChange: app.adoptConfig,
		},
		logger.Named("api"),
	)
	return app, nil
}

func buildLogger(cfg config.Config, opts Options, recorder *logging.Recorder) (*zap.Logger, error) {
	if opts.Logger != nil {
		return opts.Logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, recorder)
		})), nil
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Recorder:    recorder,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return logger, nil
}

// releasePartial closes whatever Build opened before failing.
func (a *App) releasePartial() {
	if a.hub != nil {
		_ = a.hub.Close(context.Background())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].close(); err != nil {
			a.logger.Warn("close failed", zap.String("component", a.closers[i].name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) setupStores(ctx context.Context, cfg config.Config) error {
	limit := cfg.Audit.HistoryLimit
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := pgstore.OpenPool(ctx, pgstore.PoolConfig{DSN: cfg.DB.DSN, MaxConns: cfg.DB.MaxConns})
		if err != nil {
			return fmt.Errorf("postgres pool init failed: %w", err)
		}
		a.addCloser("postgres pool", func() error { pool.Close(); return nil })
		history, err := pghistory.New(pool, cfg.DB.HistoryTable, limit)
		if err != nil {
			return fmt.Errorf("postgres history init failed: %w", err)
		}
		if err := history.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres history migrate failed: %w", err)
		}
		runs, err := pgstore.NewRunStore(pool, cfg.DB.RunsTable)
		if err != nil {
			return fmt.Errorf("postgres run store init failed: %w", err)
		}
		if err := runs.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres run store migrate failed: %w", err)
		}
		a.history, a.runs = history, runs
		a.logger.Info("using postgres history", zap.String("table", cfg.DB.HistoryTable))
		return nil
	case "sqlite":
		history, err := sqlitehistory.New(cfg.Storage.SQLitePath, limit)
		if err != nil {
			return fmt.Errorf("sqlite history init failed: %w", err)
		}
		a.addCloser("sqlite history", history.Close)
		a.history = history
		a.logger.Info("using sqlite history", zap.String("path", history.Path()))
	case "memory":
		a.history = memoryhistory.New(limit)
		a.logger.Info("using in-memory history; audits are lost on restart")
	default:
		history, err := filehistory.New(cfg.Storage.HistoryPath, limit)
		if err != nil {
			return fmt.Errorf("file history init failed: %w", err)
		}
		a.history = history
		a.logger.Info("using file history", zap.String("path", history.Path()))
	}
	a.runs = memorystorage.NewRunStore(0)
	return nil
}

func (a *App) setupPublisher(ctx context.Context, cfg config.Config) (seo.Publisher, error) {
	var pub eventPublisher
	if cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub project configured, using in-memory publisher")
		pub = memorypublisher.New()
	} else {
		gcp, err := gcppublisher.Open(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("alert_topic", cfg.PubSub.AlertTopic),
			zap.String("event_topic", cfg.PubSub.EventTopic),
		)
		pub = gcp
	}
	a.addCloser("publisher", pub.Close)
	return pub, nil
}

func (a *App) setupArchive(ctx context.Context, cfg config.Config) error {
	archive, err := storage.OpenArchive(ctx, cfg.Storage.Archive, nil, a.logger)
	if err != nil {
		return err
	}
	if archive != nil {
		a.addCloser("archive", archive.Close)
	}
	a.archive = archive
	return nil
}

func (a *App) setupProgress(
	ctx context.Context,
	cfg config.Config,
	reg prometheus.Registerer,
	publisher seo.Publisher,
) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	a.stream = api.NewBroadcaster(0, a.logger.Named("stream"))
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
		progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")),
		a.stream,
	}
	if cfg.PubSub.EventTopic != "" {
		sinkList = append(sinkList, progresssinks.NewPublisherSink(publisher, cfg.PubSub.EventTopic, a.logger.Named("progress_publisher")))
	}
	a.hub = progress.NewHub(progress.Config{
		MaxBatchWait: 200 * time.Millisecond,
		BaseContext:  context.WithoutCancel(ctx),
		Logger:       a.logger.Named("progress_hub"),
	}, sinkList...)
	a.recorder.Subscribe(func(entry logging.Entry) {
		// Entries from the event pipeline itself are not re-emitted.
		if strings.HasPrefix(entry.Service, "progress") || entry.Service == "stream" {
			return
		}
		a.hub.Emit(progress.Log(entry))
	})
	a.logger.Info("progress hub initialized", zap.Int("sinks", len(sinkList)))
	return nil
}

func (a *App) setupBrowser(ctx context.Context, cfg config.Config) pageBrowser {
	if !cfg.Headless.Enabled {
		a.logger.Info("headless browser disabled")
		return browser.Unavailable{Err: errors.New("headless browser disabled")}
	}
	br, err := browser.Open(ctx, browser.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.HTTP.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		ExecPath:          cfg.Headless.ExecPath,
	}, a.logger.Named("browser"))
	if err != nil {
		a.logger.Warn("headless browser launch failed; vitals and mobile checks will report it", zap.Error(err))
		return browser.Unavailable{Err: err}
	}
	a.logger.Info("headless browser started", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	return br
}

func buildAuditors(cfg config.Config, fetcher *collyfetcher.Fetcher, br pageBrowser, logger *zap.Logger) []audit.Auditor {
	pages := absoluteURLs(cfg.Website.BaseURL, cfg.Website.Pages)
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.DefaultRPS,
		DefaultBurst: cfg.RateLimit.DefaultBurst,
	})
	if !cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{})
	}
	return []audit.Auditor{
		vitals.New(br, pages, logger.Named("vitals")),
		links.New(links.Config{
			Links:         absoluteURLs(cfg.Website.BaseURL, cfg.Website.Links),
			SitemapURL:    cfg.Website.SitemapURL,
			MaxLinks:      cfg.Audit.MaxLinks,
			Timeout:       cfg.Audit.LinkTimeout,
			SlowThreshold: cfg.Audit.SlowThreshold,
			Workers:       cfg.Audit.LinkWorkers,
			Retries:       cfg.Audit.LinkRetries,
		}, fetcher, fetcher, limiter, logger.Named("links")),
		images.New(images.Config{
			Pages:    pages,
			Images:   absoluteURLs(cfg.Website.BaseURL, cfg.Website.Images),
			MaxBytes: cfg.Audit.MaxImageBytes,
			Workers:  cfg.Audit.LinkWorkers,
		}, fetcher, logger.Named("images")),
		mobile.New(br, pages, logger.Named("mobile")),
		structure.New(structure.Config{
			BaseURL:    cfg.Website.BaseURL,
			SitemapURL: cfg.Website.SitemapURL,
			Crawl:      cfg.Audit.Structure.Crawl,
			MaxDepth:   cfg.Audit.Structure.MaxDepth,
			MaxPages:   cfg.Audit.Structure.MaxPages,
		}, fetcher, fetcher, logger.Named("structure")),
		security.New(cfg.Website.BaseURL, fetcher, logger.Named("security")),
	}
}

func enabledCategories(cfg config.Config) map[seo.Category]bool {
	out := make(map[seo.Category]bool, len(seo.Categories()))
	for _, c := range seo.Categories() {
		out[c] = cfg.CategoryEnabled(c)
	}
	return out
}

// archiveOrNil keeps a nil Archive from becoming a non-nil BlobStore holding a
// nil value.
func archiveOrNil(a storage.Archive) seo.BlobStore {
	if a == nil {
		return nil
	}
	return a
}

// absoluteURLs resolves site-relative entries against base. Entries that do not
// parse are dropped.
func absoluteURLs(base string, entries []string) []string {
	root, err := url.Parse(base)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ref, err := url.Parse(entry)
		if err != nil {
			continue
		}
		out = append(out, root.ResolveReference(ref).String())
	}
	return out
}

// sitemapURL falls back to /sitemap.xml under the base URL.
func sitemapURL(site config.WebsiteConfig) string {
	if site.SitemapURL != "" {
		return site.SitemapURL
	}
	if resolved := absoluteURLs(site.BaseURL, []string{"/sitemap.xml"}); len(resolved) == 1 {
		return resolved[0]
	}
	return ""
}
