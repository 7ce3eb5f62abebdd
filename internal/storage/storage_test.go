package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/config"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/storage"
)

func put(t *testing.T, s storage.Store, name, body string) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), name, strings.NewReader(body), int64(len(body)), "text/plain"))
}

func TestLocalStore_PutCreatesDirectories(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "contents")
	s, err := storage.NewLocalStore(dir)
	require.NoError(t, err)

	ok, err := s.Exists(context.Background(), "nested/content_1.html")
	require.NoError(t, err)
	assert.False(t, ok)

	put(t, s, "nested/content_1.html", "<p>hi</p>")

	ok, err = s.Exists(context.Background(), "nested/content_1.html")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(filepath.Join(dir, "nested", "content_1.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestLocalStore_FailedPutLeavesNothing(t *testing.T) {
	t.Parallel()

	s, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = s.Put(context.Background(), "content_2.pdf", failingReader{}, -1, "application/pdf")
	require.Error(t, err)

	ok, err := s.Exists(context.Background(), "content_2.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_ListAndOpen(t *testing.T) {
	t.Parallel()

	s, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	put(t, s, "content_2.pdf", "pdf")
	put(t, s, "content_1.html", "html")

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"content_1.html", "content_2.pdf"}, names)

	r, size, err := s.Open(context.Background(), "content_2.pdf")
	require.NoError(t, err)
	defer r.Close()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
	assert.Equal(t, "pdf", string(body))
}

func TestSync_SkipsExisting(t *testing.T) {
	t.Parallel()

	src, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	dst, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	put(t, src, "content_1.html", "one")
	put(t, src, "content_2.html", "two")
	put(t, dst, "content_1.html", "already there")

	result, err := storage.Sync(context.Background(), src, dst, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Failed)

	data, err := os.ReadFile(dst.Path("content_1.html"))
	require.NoError(t, err)
	assert.Equal(t, "already there", string(data))

	result, err = storage.Sync(context.Background(), src, dst, logger.NewNop())
	require.NoError(t, err)
	assert.Zero(t, result.Uploaded)
	assert.Equal(t, 2, result.Skipped)
}

func TestNew_UnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := storage.New(context.Background(), config.StorageConfig{Backend: "gcs"}, logger.NewNop())
	require.ErrorIs(t, err, storage.ErrUnknownBackend)
}

func TestContentTypeFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "application/pdf", storage.ContentTypeFor("content_9.PDF"))
	assert.Equal(t, "video/mp4", storage.ContentTypeFor("content_9.mp4"))
	assert.Equal(t, "application/octet-stream", storage.ContentTypeFor("notes.txt"))
}
