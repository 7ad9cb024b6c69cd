package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocalStorage(t *testing.T) (*LocalStorage, string) {
	tmpDir := t.TempDir()

	storage, err := NewLocalStorage(tmpDir)
	require.NoError(t, err)

	return storage, tmpDir
}

func upload(t *testing.T, s *LocalStorage, bucket, key, content string, opts *UploadOptions) *Object {
	t.Helper()
	obj, err := s.Upload(context.Background(), bucket, key, bytes.NewReader([]byte(content)), int64(len(content)), opts)
	require.NoError(t, err)
	return obj
}

func TestNewLocalStorage(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "store")

	storage, err := NewLocalStorage(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, tmpDir, storage.basePath)

	_, err = os.Stat(tmpDir)
	assert.NoError(t, err)
}

func TestLocalStorage_NameAndHealth(t *testing.T) {
	storage, _ := setupLocalStorage(t)

	assert.Equal(t, "local", storage.Name())
	assert.NoError(t, storage.Health(context.Background()))
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	storage, tmpDir := setupLocalStorage(t)
	ctx := context.Background()

	obj := upload(t, storage, "assets", "build-1/chunk-AB12.js", "export const a = 1;", &UploadOptions{
		ContentType:  "text/javascript; charset=utf-8",
		CacheControl: ImmutableCacheControl,
	})
	assert.Equal(t, int64(19), obj.Size)
	assert.Len(t, obj.ETag, 32)

	_, err := os.Stat(filepath.Join(tmpDir, "assets", "build-1", "chunk-AB12.js"))
	require.NoError(t, err)

	reader, got, err := storage.Download(ctx, "assets", "build-1/chunk-AB12.js")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "export const a = 1;", string(data))
	assert.Equal(t, "text/javascript; charset=utf-8", got.ContentType)
	assert.Equal(t, ImmutableCacheControl, got.CacheControl)
}

func TestLocalStorage_UploadShortWrite(t *testing.T) {
	storage, _ := setupLocalStorage(t)

	_, err := storage.Upload(context.Background(), "assets", "a.js", bytes.NewReader([]byte("abc")), 10, nil)
	require.Error(t, err)

	exists, err := storage.Exists(context.Background(), "assets", "a.js")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorage_KeysStayInsideBucket(t *testing.T) {
	storage, tmpDir := setupLocalStorage(t)

	upload(t, storage, "assets", "../../escape.js", "x", nil)

	_, err := os.Stat(filepath.Join(tmpDir, "assets", "escape.js"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(filepath.Dir(tmpDir), "escape.js"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorage_NotFound(t *testing.T) {
	storage, _ := setupLocalStorage(t)
	ctx := context.Background()

	_, _, err := storage.Download(ctx, "assets", "missing.js")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, storage.Delete(ctx, "assets", "missing.js"), ErrNotFound)

	_, err = storage.List(ctx, "missing-bucket", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_DeleteRemovesMeta(t *testing.T) {
	storage, tmpDir := setupLocalStorage(t)

	upload(t, storage, "assets", "main.js", "x", &UploadOptions{ContentType: "text/javascript"})
	require.NoError(t, storage.Delete(context.Background(), "assets", "main.js"))

	_, err := os.Stat(filepath.Join(tmpDir, "assets", "main.js"+metaSuffix))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorage_List(t *testing.T) {
	storage, _ := setupLocalStorage(t)
	ctx := context.Background()

	upload(t, storage, "assets", "b1/main.js", "1", &UploadOptions{ContentType: "text/javascript"})
	upload(t, storage, "assets", "b1/chunk-A.js", "22", nil)
	upload(t, storage, "assets", "b2/main.js", "333", nil)

	t.Run("prefix filter skips meta files", func(t *testing.T) {
		result, err := storage.List(ctx, "assets", &ListOptions{Prefix: "b1/"})
		require.NoError(t, err)

		var keys []string
		for _, o := range result.Objects {
			keys = append(keys, o.Key)
		}
		assert.Equal(t, []string{"b1/chunk-A.js", "b1/main.js"}, keys)
		assert.False(t, result.IsTruncated)
	})

	t.Run("max keys truncates", func(t *testing.T) {
		result, err := storage.List(ctx, "assets", &ListOptions{MaxKeys: 2})
		require.NoError(t, err)
		assert.Len(t, result.Objects, 2)
		assert.True(t, result.IsTruncated)
	})
}

func TestLocalStorage_EnsureBucket(t *testing.T) {
	storage, tmpDir := setupLocalStorage(t)

	require.NoError(t, storage.EnsureBucket(context.Background(), "assets"))
	require.NoError(t, storage.EnsureBucket(context.Background(), "assets"))

	info, err := os.Stat(filepath.Join(tmpDir, "assets"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
