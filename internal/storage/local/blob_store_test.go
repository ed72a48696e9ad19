package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-orchestrator/internal/storage/local"
)

func TestNewCreatesMissingRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "data", "archive")
	store, err := local.New(local.Config{BaseDir: root})
	require.NoError(t, err)
	require.NotNil(t, store)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "writability probe must be cleaned up")
}

func TestNewRejectsBadRoots(t *testing.T) {
	t.Parallel()

	_, err := local.New(local.Config{BaseDir: "   "})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(file, []byte("[]"), 0o600))
	_, err = local.New(local.Config{BaseDir: file})
	require.ErrorContains(t, err, "not a directory")
}

func TestPutObjectWritesUnderPrefix(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := local.New(local.Config{BaseDir: root, Prefix: "/clinic/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "audits/2025/05/audit-1.json", "application/json",
		strings.NewReader(`{"id":"audit-1"}`))
	require.NoError(t, err)

	want := filepath.Join(root, "clinic", "audits", "2025", "05", "audit-1.json")
	assert.Equal(t, "file://"+want, uri)
	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"audit-1"}`, string(got))
}

func TestPutObjectReplacesExisting(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := local.New(local.Config{BaseDir: root})
	require.NoError(t, err)

	for _, body := range []string{"%PDF-1.3 first", "%PDF-1.3 second"} {
		_, err := store.PutObject(context.Background(), "reports/weekly.pdf", "application/pdf", strings.NewReader(body))
		require.NoError(t, err)
	}
	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(filepath.Join(root, "reports", "weekly.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 second", string(got))

	entries, err := os.ReadDir(filepath.Join(root, "reports"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestPutObjectRejectsEscapes(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir(), Prefix: "clinic"})
	require.NoError(t, err)

	for _, p := range []string{"", "../../escape.txt", "../"} {
		_, err := store.PutObject(context.Background(), p, "text/plain", strings.NewReader("x"))
		require.Error(t, err, p)
	}
	_, err = store.PutObject(context.Background(), "../../escape.txt", "text/plain", strings.NewReader("x"))
	require.ErrorIs(t, err, local.ErrPathEscapes)
}

func TestResolveStaysUnderRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := local.New(local.Config{BaseDir: root})
	require.NoError(t, err)

	full, err := store.Resolve("a/../b/report.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "b", "report.html"), full)
}
