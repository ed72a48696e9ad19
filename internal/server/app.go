// Package server assembles the orchestrator: stores, audit service, tasks,
// scheduler, event hub and the dashboard HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/api"
	"github.com/JakeFAU/seo-orchestrator/internal/audit"
	"github.com/JakeFAU/seo-orchestrator/internal/config"
	"github.com/JakeFAU/seo-orchestrator/internal/logging"
	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/scheduler"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/storage"
	"github.com/JakeFAU/seo-orchestrator/internal/store"
)

const (
	defaultShutdownTimeout = 15 * time.Second
	defaultMetricsInterval = 30 * time.Second
)

// Options customize Build.
type Options struct {
	// ConfigPath is the file the dashboard rewrites and the watcher follows.
	ConfigPath string
	// Registerer receives the event collectors. Defaults to the global registry.
	Registerer prometheus.Registerer
	// Logger replaces the configured logger. The log recorder is still attached.
	Logger *zap.Logger
	// Clock drives schedules and timestamps. Defaults to the real clock.
	Clock clockwork.Clock
}

// App contains the application's dependencies.
type App struct {
	opts     Options
	logger   *zap.Logger
	recorder *logging.Recorder
	clock    clockwork.Clock
	started  time.Time

	cfgMu sync.RWMutex
	cfg   config.Config

	history   seo.HistoryStore
	runs      store.RunRepository
	archive   storage.Archive
	audit     *audit.Service
	hub       *progress.Hub
	stream    *api.Broadcaster
	scheduler *scheduler.Scheduler
	apiServer *api.Server

	// closers release infrastructure in reverse construction order.
	closers   []namedCloser
	closeOnce sync.Once
}

type namedCloser struct {
	name  string
	close func() error
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Config returns the configuration currently in effect.
func (a *App) Config() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the dashboard HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the scheduler and the dashboard server and blocks until ctx is
// canceled or the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := a.Config()
	schedules, err := cfg.TaskSchedules()
	if err != nil {
		return fmt.Errorf("task schedules: %w", err)
	}
	if err := a.scheduler.Initialize(ctx, schedules); err != nil {
		return fmt.Errorf("initialize scheduler: %w", err)
	}
	a.logger.Info("scheduler initialized", zap.Int("schedules", len(schedules)))

	if cfg.Watch && a.opts.ConfigPath != "" {
		err := config.Watch(a.opts.ConfigPath, a.applyConfig, func(err error) {
			a.logger.Warn("ignoring invalid configuration change", zap.Error(err))
		})
		if err != nil {
			a.logger.Warn("config watch failed", zap.Error(err))
		} else {
			a.logger.Info("watching configuration", zap.String("path", a.opts.ConfigPath))
		}
	}

	go a.monitor(ctx, cfg.Server.MetricsInterval)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// monitor broadcasts a metrics snapshot and refreshes service health every
// interval until ctx ends.
func (a *App) monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultMetricsInterval
	}
	a.checkHealth(ctx)
	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			a.emitMetrics(ctx)
			a.checkHealth(ctx)
		}
	}
}

func (a *App) checkHealth(ctx context.Context) {
	if _, err := a.scheduler.PerformHealthCheck(ctx); err != nil {
		a.logger.Warn("periodic health check failed", zap.Error(err))
	}
}

func (a *App) emitMetrics(ctx context.Context) {
	now := a.clock.Now()
	snapshot := progress.CollectRuntime(a.started, now)
	for _, st := range a.scheduler.Status() {
		if st.Running {
			snapshot.RunningTasks = append(snapshot.RunningTasks, st.Name)
		}
	}
	if run, err := a.history.Latest(ctx); err == nil {
		score := run.OverallScore
		snapshot.LatestScore = &score
		if vitals := run.Categories[seo.CategoryCoreWebVitals]; vitals != nil {
			v := vitals.Score
			snapshot.VitalsScore = &v
		}
	} else if !errors.Is(err, seo.ErrNoHistory) {
		a.logger.Debug("latest audit unavailable for metrics", zap.Error(err))
	}
	stats := a.hub.Stats()
	snapshot.HubEmitted = stats.Emitted
	snapshot.HubDropped = stats.Dropped
	a.hub.Emit(progress.MetricsSnapshot(now, snapshot))
}

// applyConfig reschedules tasks for a configuration picked up by the file
// watch. Only schedules change at runtime; other settings need a restart.
func (a *App) applyConfig(cfg config.Config) {
	schedules, err := cfg.TaskSchedules()
	if err != nil {
		a.logger.Warn("configuration change rejected", zap.Error(err))
		return
	}
	a.adoptConfig(cfg)
	if err := a.scheduler.Reschedule(schedules); err != nil {
		a.logger.Warn("reschedule failed", zap.Error(err))
		return
	}
	a.logger.Info("configuration applied", zap.Int("schedules", len(schedules)))
}

// adoptConfig records cfg as current. The API has already rescheduled by the
// time it calls this.
func (a *App) adoptConfig(cfg config.Config) {
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
}

// RunTask runs a task once outside its schedule.
func (a *App) RunTask(ctx context.Context, name seo.TaskName, opts seo.TaskOptions) (seo.TaskResult, error) {
	return a.scheduler.RunTask(ctx, name, opts)
}

// Health runs a health check across every service.
func (a *App) Health(ctx context.Context) (seo.HealthReport, error) {
	return a.scheduler.PerformHealthCheck(ctx)
}

// Summary is the CLI view of the orchestrator state.
type Summary struct {
	Tasks       []scheduler.TaskStatus `json:"tasks"`
	LatestAudit *seo.AuditRun          `json:"latest_audit,omitempty"`
	RecentRuns  []seo.TaskResult       `json:"recent_runs"`
}

// Status reports the registered tasks, the newest audit and recent task runs.
// Tasks carry schedules only after Run has initialized the scheduler.
func (a *App) Status(ctx context.Context, recent int) (Summary, error) {
	out := Summary{Tasks: a.scheduler.Status()}
	run, err := a.history.Latest(ctx)
	switch {
	case err == nil:
		out.LatestAudit = &run
	case errors.Is(err, seo.ErrNoHistory):
	default:
		return Summary{}, fmt.Errorf("load latest audit: %w", err)
	}
	runs, err := a.runs.List(ctx, "", recent)
	if err != nil {
		return Summary{}, fmt.Errorf("list task runs: %w", err)
	}
	out.RecentRuns = runs
	return out, nil
}

// Close stops the scheduler, drains the event hub and releases every resource.
// It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.scheduler.Shutdown(ctx)
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			c := a.closers[i]
			if err := c.close(); err != nil {
				a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			}
		}
		a.logger.Info("shutdown complete")
		_ = a.logger.Sync()
	})
	return nil
}
