package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// ServiceName identifies the audit service in health reports.
const ServiceName = "technical-seo"

// Browser is the headless browser owned by the service.
type Browser interface {
	Ping(ctx context.Context) error
	Close() error
}

// Config tunes PerformAudit.
type Config struct {
	// Enabled switches categories on or off. Categories absent from the map are
	// enabled.
	Enabled map[seo.Category]bool
	// Parallelism bounds concurrent auditors; 1 runs them in category order.
	Parallelism int
	// MaxDuration bounds a whole run. Zero means no deadline.
	MaxDuration time.Duration
	// ArchivePrefix is the blob path prefix for archived runs.
	ArchivePrefix string
}

// Options customize a single run.
type Options struct {
	// Categories restricts the run to a subset. Empty means every enabled
	// category.
	Categories []seo.Category
	// SkipPersist returns the run without writing history or the archive.
	SkipPersist bool
}

// Service runs audits and records their results.
type Service struct {
	auditors []Auditor
	history  seo.HistoryStore
	archive  seo.BlobStore
	browser  Browser
	ids      seo.IDGenerator
	clock    seo.Clock
	cfg      Config
	logger   *zap.Logger
}

// New builds a Service. archive and browser may be nil.
func New(
	auditors []Auditor,
	history seo.HistoryStore,
	archive seo.BlobStore,
	browser Browser,
	ids seo.IDGenerator,
	clock seo.Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "audits"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ordered := make([]Auditor, 0, len(auditors))
	for _, c := range seo.Categories() {
		for _, a := range auditors {
			if a.Category() == c {
				ordered = append(ordered, a)
				break
			}
		}
	}
	return &Service{
		auditors: ordered,
		history:  history,
		archive:  archive,
		browser:  browser,
		ids:      ids,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Name implements seo.Service.
func (s *Service) Name() string {
	return ServiceName
}

// PerformAudit runs every selected auditor, aggregates and persists the run.
// Auditor failures are recorded in the run; the returned error covers only
// identifier, persistence and cancellation failures. When persistence fails the
// completed run is still returned.
func (s *Service) PerformAudit(ctx context.Context, opts Options) (seo.AuditRun, error) {
	started := s.clock.Now()
	id, err := s.ids.NewID()
	if err != nil {
		return seo.AuditRun{}, fmt.Errorf("generate audit id: %w", err)
	}

	runCtx := ctx
	if s.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.MaxDuration)
		defer cancel()
	}

	selected := s.selected(opts)
	outcomes := make([]Outcome, len(selected))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Parallelism)
	for i, a := range selected {
		g.Go(func() error {
			outcomes[i] = invoke(runCtx, a, s.clock.Now)
			return nil
		})
	}
	_ = g.Wait()

	run := seo.AuditRun{
		ID:         id,
		Timestamp:  started.UTC(),
		Categories: make(map[seo.Category]*seo.CategoryResult, len(seo.Categories())),
	}
	for _, c := range seo.Categories() {
		run.Categories[c] = nil
	}
	for _, out := range outcomes {
		res := out.Resolve()
		run.Categories[out.Category] = res
		fields := []zap.Field{
			zap.String("audit_id", id),
			zap.String("category", string(out.Category)),
			zap.Int("score", res.Score),
			zap.Duration("duration", out.Duration),
		}
		if out.Err != nil {
			s.logger.Warn("audit category failed", append(fields, zap.Error(out.Err))...)
			continue
		}
		s.logger.Info("audit category completed", fields...)
	}

	run.OverallScore, run.Summary = Aggregate(run.Categories)
	run.Recommendations = Recommend(run.Categories)
	run.DurationMs = s.clock.Now().Sub(started).Milliseconds()

	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("audit canceled: %w", err)
	}
	if opts.SkipPersist {
		return run, nil
	}
	if err := s.history.Append(ctx, run); err != nil {
		return run, fmt.Errorf("persist audit %s: %w", id, err)
	}
	s.archiveRun(ctx, run)

	s.logger.Info("audit completed",
		zap.String("audit_id", id),
		zap.Int("overall_score", run.OverallScore),
		zap.Int("passed", run.Summary.Passed),
		zap.Int("warning", run.Summary.Warning),
		zap.Int("critical", run.Summary.Critical),
		zap.Int64("duration_ms", run.DurationMs),
	)
	return run, nil
}

func (s *Service) selected(opts Options) []Auditor {
	var only map[seo.Category]bool
	if len(opts.Categories) > 0 {
		only = make(map[seo.Category]bool, len(opts.Categories))
		for _, c := range opts.Categories {
			only[c] = true
		}
	}
	out := make([]Auditor, 0, len(s.auditors))
	for _, a := range s.auditors {
		c := a.Category()
		if enabled, ok := s.cfg.Enabled[c]; ok && !enabled {
			continue
		}
		if only != nil && !only[c] {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ArchivePath returns the blob path of an archived run.
func ArchivePath(prefix string, run seo.AuditRun) string {
	ts := run.Timestamp.UTC()
	return path.Join(prefix, fmt.Sprintf("%04d", ts.Year()), fmt.Sprintf("%02d", int(ts.Month())), run.ID+".json")
}

func (s *Service) archiveRun(ctx context.Context, run seo.AuditRun) {
	if s.archive == nil {
		return
	}
	body, err := json.Marshal(run)
	if err != nil {
		s.logger.Warn("encode audit for archive failed", zap.String("audit_id", run.ID), zap.Error(err))
		return
	}
	uri, err := s.archive.PutObject(ctx, ArchivePath(s.cfg.ArchivePrefix, run), "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("archive audit failed", zap.String("audit_id", run.ID), zap.Error(err))
		return
	}
	s.logger.Debug("audit archived", zap.String("audit_id", run.ID), zap.String("uri", uri))
}

// HealthCheck reports unhealthy when history is unreachable and degraded when
// the browser is down.
func (s *Service) HealthCheck(ctx context.Context) (seo.ServiceHealth, error) {
	if _, err := s.history.Latest(ctx); err != nil && !errors.Is(err, seo.ErrNoHistory) {
		return seo.ServiceHealth{
			Status:  seo.HealthUnhealthy,
			Message: fmt.Sprintf("history store: %v", err),
		}, nil
	}
	if s.browser != nil {
		if err := s.browser.Ping(ctx); err != nil {
			return seo.ServiceHealth{
				Status:  seo.HealthDegraded,
				Message: fmt.Sprintf("browser: %v", err),
			}, nil
		}
	}
	return seo.ServiceHealth{Status: seo.HealthHealthy}, nil
}

// Close releases the browser.
func (s *Service) Close(context.Context) error {
	if s.browser == nil {
		return nil
	}
	if err := s.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}
