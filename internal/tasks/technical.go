package tasks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/audit"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// TechnicalSEO runs the full technical audit. The "categories" option restricts
// a run to a subset of categories.
type TechnicalSEO struct {
	auditor Auditor
	logger  *zap.Logger
}

// NewTechnicalSEO wraps auditor.
func NewTechnicalSEO(auditor Auditor, logger *zap.Logger) *TechnicalSEO {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TechnicalSEO{auditor: auditor, logger: logger}
}

// Run executes one audit and returns the AuditRun as payload.
func (t *TechnicalSEO) Run(ctx context.Context, opts seo.TaskOptions) (any, error) {
	cats, err := categoriesOption(opts)
	if err != nil {
		return nil, err
	}
	run, err := t.auditor.PerformAudit(ctx, audit.Options{Categories: cats})
	if err != nil {
		if run.ID != "" {
			// The audit finished but could not be stored; keep it visible.
			return run, err
		}
		return nil, err
	}
	t.logger.Debug("technical audit finished", zap.String("audit_id", run.ID), zap.Int("score", run.OverallScore))
	return run, nil
}
