// Package storage selects the blob store that archives audits and reports.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/config"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/storage/gcs"
	"github.com/JakeFAU/seo-orchestrator/internal/storage/local"
	"github.com/JakeFAU/seo-orchestrator/internal/storage/memory"
)

// Archive is a blob store released at shutdown.
type Archive interface {
	seo.BlobStore
	Close() error
}

type memoryArchive struct {
	*memory.BlobStore
}

func (memoryArchive) Close() error { return nil }

// NewMemoryArchive returns an Archive that keeps objects in process.
func NewMemoryArchive() Archive {
	return memoryArchive{memory.NewBlobStore()}
}

// OpenArchive builds the configured archive. The "none" backend returns a nil
// Archive; callers that still need somewhere to write use NewMemoryArchive.
func OpenArchive(ctx context.Context, cfg config.ArchiveConfig, factory gcs.ClientFactory, logger *zap.Logger) (Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "none":
		logger.Info("Audit archive disabled")
		return nil, nil
	case "memory":
		logger.Info("Using in-memory archive; artifacts are lost on restart")
		return NewMemoryArchive(), nil
	case "", "local":
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local archive: %w", err)
		}
		logger.Info("Using local archive", zap.String("base_dir", cfg.BaseDir))
		return store, nil
	case "gcs":
		store, err := gcs.Open(ctx, factory, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS archive: %w", err)
		}
		logger.Info("Using GCS archive", zap.String("bucket", cfg.Bucket), zap.String("prefix", cfg.Prefix))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", cfg.Backend)
	}
}
