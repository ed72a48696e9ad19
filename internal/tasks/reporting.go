package tasks

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/hash/sha256"
	"github.com/JakeFAU/seo-orchestrator/internal/report"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

const defaultReportPrefix = "reports"

// ReportingConfig controls generated reports.
type ReportingConfig struct {
	Prefix       string
	Format       report.Type
	HistoryLimit int
}

// ReportLocation is the reporting payload.
type ReportLocation struct {
	URI         string    `json:"uri"`
	Path        string    `json:"path"`
	Format      string    `json:"format"`
	ContentType string    `json:"content_type"`
	Bytes       int       `json:"bytes"`
	SHA256      string    `json:"sha256"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Reporting renders a report and stores it through the archive.
type Reporting struct {
	builder *report.Builder
	archive seo.BlobStore
	hasher  seo.Hasher
	clock   seo.Clock
	cfg     ReportingConfig
	logger  *zap.Logger
}

// NewReporting constructs the reporting task.
func NewReporting(
	builder *report.Builder,
	archive seo.BlobStore,
	hasher seo.Hasher,
	clock seo.Clock,
	cfg ReportingConfig,
	logger *zap.Logger,
) *Reporting {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultReportPrefix
	}
	if cfg.Format == "" {
		cfg.Format = report.TypePDF
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporting{builder: builder, archive: archive, hasher: hasher, clock: clock, cfg: cfg, logger: logger}
}

// Run builds the report selected by the "format" option (default from config)
// and archives it.
func (r *Reporting) Run(ctx context.Context, opts seo.TaskOptions) (any, error) {
	format, err := report.ParseType(stringOption(opts, "format", string(r.cfg.Format)))
	if err != nil {
		return nil, err
	}
	doc, err := r.builder.Build(ctx, format, r.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("build %s report: %w", format, err)
	}
	digest, err := r.hasher.Hash(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("hash report: %w", err)
	}
	now := r.clock.Now().UTC()
	name := fmt.Sprintf("seo-%s-%s-%s.%s", format, now.Format("20060102T150405Z"), sha256.Short(digest, 12), doc.Extension())
	objectPath := path.Join(r.cfg.Prefix, now.Format("2006"), now.Format("01"), name)

	uri, err := r.archive.PutObject(ctx, objectPath, doc.ContentType, bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	r.logger.Info("report stored", zap.String("uri", uri), zap.Int("bytes", len(doc.Body)))
	return ReportLocation{
		URI:         uri,
		Path:        objectPath,
		Format:      string(format),
		ContentType: doc.ContentType,
		Bytes:       len(doc.Body),
		SHA256:      digest,
		GeneratedAt: now,
	}, nil
}
