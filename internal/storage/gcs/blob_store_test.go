package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type stubFactory struct {
	client *storage.Client
	err    error
}

func (f stubFactory) NewClient(context.Context) (*storage.Client, error) {
	return f.client, f.err
}

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return client
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/seo-archive/o")
		assert.Equal(t, "prod/audits/2026/03/run-1.json", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), `{"id":"run-1"}`)
		fmt.Fprintln(w, `{"name":"prod/audits/2026/03/run-1.json","bucket":"seo-archive"}`)
	})
	store, err := New(newTestClient(t, handler), Config{Bucket: "seo-archive", Prefix: "/prod/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "audits/2026/03/run-1.json", "application/json",
		strings.NewReader(`{"id":"run-1"}`))
	require.NoError(t, err)
	require.Equal(t, "gs://seo-archive/prod/audits/2026/03/run-1.json", uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	store, err := New(newTestClient(t, handler), Config{Bucket: "seo-archive"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "reports/weekly.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.Error(t, err)
}

func TestOpenChecksBucket(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/seo-archive")
		fmt.Fprintln(w, `{"name":"seo-archive"}`)
	})
	store, err := Open(context.Background(), stubFactory{client: newTestClient(t, ok)}, Config{Bucket: "seo-archive"})
	require.NoError(t, err)
	require.NotNil(t, store)

	_, err = Open(context.Background(), stubFactory{err: errors.New("no credentials")}, Config{Bucket: "seo-archive"})
	require.ErrorContains(t, err, "failed to create GCS client")

	_, err = New(nil, Config{Bucket: "x"})
	require.Error(t, err)
}

func TestObjectNameValidation(t *testing.T) {
	t.Parallel()

	store := &BlobStore{bucket: "seo-archive", prefix: "prod"}
	name, err := store.objectName("/reports//weekly.pdf")
	require.NoError(t, err)
	assert.Equal(t, "prod/reports/weekly.pdf", name)

	for _, bad := range []string{"", "  ", "/", "../secrets.json", "reports/../../x"} {
		_, err := store.objectName(bad)
		require.ErrorIs(t, err, ErrInvalidObjectPath, bad)
	}
}
