// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object path.
	Prefix string
}

// ClientFactory creates storage clients; tests substitute one pointed at a
// fake endpoint.
type ClientFactory interface {
	NewClient(ctx context.Context) (*storage.Client, error)
}

// DefaultClientFactory uses Application Default Credentials.
type DefaultClientFactory struct{}

// NewClient implements ClientFactory.
func (DefaultClientFactory) NewClient(ctx context.Context) (*storage.Client, error) {
	return storage.NewClient(ctx)
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// Open creates a client and checks that the bucket is reachable.
func Open(ctx context.Context, factory ClientFactory, cfg Config) (*BlobStore, error) {
	if factory == nil {
		factory = DefaultClientFactory{}
	}
	client, err := factory.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	store, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to get GCS bucket %q attributes: %w", cfg.Bucket, err)
	}
	return store, nil
}

// New wraps an existing client.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ErrInvalidObjectPath is returned for empty paths and paths that climb out of
// the configured prefix.
var ErrInvalidObjectPath = errors.New("invalid object path")

// PutObject uploads r in one request and returns the gs:// URI of the object.
// A failed copy cancels the upload so no partial object is committed.
func (s *BlobStore) PutObject(ctx context.Context, objectPath string, contentType string, r io.Reader) (string, error) {
	name, err := s.objectName(objectPath)
	if err != nil {
		return "", err
	}
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(uploadCtx)
	w.ChunkSize = 0
	w.ContentType = contentType
	w.Metadata = map[string]string{"producer": "seo-orchestrator"}
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return "gs://" + s.bucket + "/" + name, nil
}

func (s *BlobStore) objectName(objectPath string) (string, error) {
	trimmed := strings.TrimSpace(objectPath)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidObjectPath)
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidObjectPath, objectPath)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+trimmed), "/")
	if cleaned == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectPath, objectPath)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return s.prefix + "/" + cleaned, nil
}

// Close releases the client.
func (s *BlobStore) Close() error {
	return s.client.Close()
}
