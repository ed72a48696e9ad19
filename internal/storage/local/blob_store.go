// Package local writes archives, reports and status files to the local
// filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrPathEscapes is returned for object paths that resolve outside the archive root.
var ErrPathEscapes = errors.New("path traversal detected")

// Config captures the parameters for the local archive.
type Config struct {
	// BaseDir is the archive root.
	BaseDir string
	// Prefix is prepended to every object path, e.g. "clinic-site".
	Prefix string
}

// BlobStore writes audit runs and reports below a base directory.
type BlobStore struct {
	root   string
	prefix string
}

// New prepares the archive root and verifies it is writable.
func New(cfg Config) (*BlobStore, error) {
	root := strings.TrimSpace(cfg.BaseDir)
	if root == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := ensureWritableDir(root); err != nil {
		return nil, err
	}
	return &BlobStore{
		root:   filepath.Clean(root),
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func ensureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create base directory: %w", err)
		}
	case err != nil:
		return fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("base directory %s is not a directory", dir)
	}
	probe, err := os.CreateTemp(dir, ".writable_*")
	if err != nil {
		return fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = probe.Close()
	return os.Remove(probe.Name())
}

// Resolve maps an object path to its file below the root.
func (s *BlobStore) Resolve(objectPath string) (string, error) {
	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" {
		return "", fmt.Errorf("path is required")
	}
	full := filepath.Join(s.root, filepath.FromSlash(path.Join(s.prefix, objectPath)))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, objectPath)
	}
	return full, nil
}

// PutObject streams data into place atomically and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, objectPath string, _ string, data io.Reader) (string, error) {
	full, err := s.Resolve(objectPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := writeAtomic(full, data); err != nil {
		return "", err
	}
	return "file://" + full, nil
}

// Close implements the archive contract; there is nothing to release.
func (s *BlobStore) Close() error {
	return nil
}
