package seo

import (
	"context"
	"io"
	"time"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// HistoryStore is the bounded, append-only audit history.
type HistoryStore interface {
	// Append stores run and evicts the oldest entries beyond the store capacity.
	Append(ctx context.Context, run AuditRun) error
	// List returns up to limit of the most recent runs, oldest first. limit <= 0
	// returns everything retained.
	List(ctx context.Context, limit int) ([]AuditRun, error)
	// Latest returns the newest run or ErrNoHistory.
	Latest(ctx context.Context) (AuditRun, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Service is a long lived component the scheduler health checks and closes on
// shutdown.
type Service interface {
	Name() string
	HealthCheck(ctx context.Context) (ServiceHealth, error)
	Close(ctx context.Context) error
}
