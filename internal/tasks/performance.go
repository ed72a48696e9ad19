package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/audit"
	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Performance measures Core Web Vitals without recording an audit in history
// and pushes the score to dashboards as a metrics snapshot.
type Performance struct {
	auditor Auditor
	events  progress.Emitter
	clock   seo.Clock
	started time.Time
	logger  *zap.Logger
}

// NewPerformance wraps auditor. events may be nil.
func NewPerformance(auditor Auditor, events progress.Emitter, clock seo.Clock, logger *zap.Logger) *Performance {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Performance{auditor: auditor, events: events, clock: clock, started: clock.Now(), logger: logger}
}

// Run returns the vitals CategoryResult. A failed measurement fails the task.
func (p *Performance) Run(ctx context.Context, _ seo.TaskOptions) (any, error) {
	run, err := p.auditor.PerformAudit(ctx, audit.Options{
		Categories:  []seo.Category{seo.CategoryCoreWebVitals},
		SkipPersist: true,
	})
	if err != nil {
		return nil, err
	}
	res := run.Categories[seo.CategoryCoreWebVitals]
	if res == nil {
		return nil, errors.New("core web vitals category is disabled")
	}
	if res.Failed() {
		return res, fmt.Errorf("core web vitals: %s", res.Error)
	}

	if p.events != nil {
		now := p.clock.Now()
		m := progress.CollectRuntime(p.started, now)
		score := res.Score
		m.VitalsScore = &score
		p.events.Emit(progress.MetricsSnapshot(now, m))
	}
	p.logger.Info("vitals measured", zap.Int("score", res.Score), zap.Int("issues", len(res.Issues)))
	return res, nil
}
