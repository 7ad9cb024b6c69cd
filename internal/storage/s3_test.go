package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupS3Storage connects to the MinIO instance named by
// BUNDLER_TEST_S3_ENDPOINT, e.g.
//
//	docker run -p 9000:9000 -e MINIO_ROOT_USER=minioadmin -e MINIO_ROOT_PASSWORD=minioadmin minio/minio server /data
func setupS3Storage(t *testing.T) *S3Storage {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping S3 tests in short mode")
	}
	endpoint := os.Getenv("BUNDLER_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping S3 tests: BUNDLER_TEST_S3_ENDPOINT not set")
	}

	s3, err := NewS3Storage(endpoint, "minioadmin", "minioadmin", "us-east-1", false)
	require.NoError(t, err)

	if err := s3.Health(context.Background()); err != nil {
		t.Skipf("Skipping S3 tests: MinIO not available: %v", err)
	}
	return s3
}

func TestS3Storage_Name(t *testing.T) {
	s3, err := NewS3Storage("localhost:9000", "key", "secret", "us-east-1", false)
	require.NoError(t, err)
	assert.Equal(t, "s3", s3.Name())
}

func TestS3Storage_RoundTrip(t *testing.T) {
	s3 := setupS3Storage(t)
	ctx := context.Background()
	bucket := fmt.Sprintf("bundler-test-%d", time.Now().UnixNano())

	require.NoError(t, s3.EnsureBucket(ctx, bucket))
	require.NoError(t, s3.EnsureBucket(ctx, bucket))

	content := []byte("export default 1;")
	_, err := s3.Upload(ctx, bucket, "b1/main.js", bytes.NewReader(content), int64(len(content)), &UploadOptions{
		ContentType:  "text/javascript; charset=utf-8",
		CacheControl: RevalidateCacheControl,
	})
	require.NoError(t, err)

	exists, err := s3.Exists(ctx, bucket, "b1/main.js")
	require.NoError(t, err)
	assert.True(t, exists)

	reader, obj, err := s3.Download(ctx, bucket, "b1/main.js")
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	_ = reader.Close()
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, RevalidateCacheControl, obj.CacheControl)

	list, err := s3.List(ctx, bucket, &ListOptions{Prefix: "b1/"})
	require.NoError(t, err)
	assert.Len(t, list.Objects, 1)

	require.NoError(t, s3.Delete(ctx, bucket, "b1/main.js"))
	_, _, err = s3.Download(ctx, bucket, "b1/main.js")
	assert.ErrorIs(t, err, ErrNotFound)
}
