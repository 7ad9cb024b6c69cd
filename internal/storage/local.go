package storage

import (
	"context"
	"crypto/md5" //nolint:gosec // etag, not a security boundary
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// metaSuffix marks sidecar files holding object attributes
const metaSuffix = ".meta"

// LocalStorage implements Provider on the local filesystem. Buckets are
// directories below basePath.
type LocalStorage struct {
	basePath string
}

type localMeta struct {
	ContentType  string            `json:"content_type,omitempty"`
	CacheControl string            `json:"cache_control,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewLocalStorage creates a new local filesystem storage provider
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Name returns the provider name
func (ls *LocalStorage) Name() string {
	return "local"
}

// Health checks if the storage is healthy
func (ls *LocalStorage) Health(ctx context.Context) error {
	if _, err := os.Stat(ls.basePath); err != nil {
		return fmt.Errorf("storage directory not accessible: %w", err)
	}

	testFile := filepath.Join(ls.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	return nil
}

// getPath returns the full filesystem path for a bucket/key. Keys cannot
// escape the bucket directory.
func (ls *LocalStorage) getPath(bucket, key string) string {
	clean := strings.TrimPrefix(filepath.Clean("/"+filepath.FromSlash(key)), string(filepath.Separator))
	return filepath.Join(ls.basePath, bucket, clean)
}

// Upload uploads a file to local storage
func (ls *LocalStorage) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *UploadOptions) (*Object, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath := ls.getPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath) //nolint:gosec // path is confined by getPath
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = file.Close() }()

	hash := md5.New() //nolint:gosec // etag only
	written, err := io.Copy(io.MultiWriter(file, hash), data)
	if err != nil {
		_ = os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if size >= 0 && written != size {
		_ = os.Remove(filePath)
		return nil, fmt.Errorf("short write: expected %d bytes, got %d", size, written)
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	meta := localMeta{ContentType: opts.ContentType, CacheControl: opts.CacheControl, Metadata: opts.Metadata}
	if metaData, err := json.Marshal(meta); err == nil {
		_ = os.WriteFile(filePath+metaSuffix, metaData, 0600)
	}

	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int64("size", written).
		Msg("File uploaded to local storage")

	return &Object{
		Key:          key,
		Bucket:       bucket,
		Size:         info.Size(),
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		LastModified: info.ModTime(),
		ETag:         hex.EncodeToString(hash.Sum(nil)),
		Metadata:     opts.Metadata,
	}, nil
}

// Download downloads a file from local storage
func (ls *LocalStorage) Download(ctx context.Context, bucket, key string) (io.ReadCloser, *Object, error) {
	filePath := ls.getPath(bucket, key)

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}

	file, err := os.Open(filePath) //nolint:gosec // path is confined by getPath
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	meta := ls.readMeta(filePath)
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return file, &Object{
		Key:          key,
		Bucket:       bucket,
		Size:         info.Size(),
		ContentType:  contentType,
		CacheControl: meta.CacheControl,
		LastModified: info.ModTime(),
		Metadata:     meta.Metadata,
	}, nil
}

func (ls *LocalStorage) readMeta(filePath string) localMeta {
	var meta localMeta
	if data, err := os.ReadFile(filePath + metaSuffix); err == nil { //nolint:gosec // path is confined by getPath
		_ = json.Unmarshal(data, &meta)
	}
	return meta
}

// Delete deletes a file from local storage
func (ls *LocalStorage) Delete(ctx context.Context, bucket, key string) error {
	filePath := ls.getPath(bucket, key)

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	_ = os.Remove(filePath + metaSuffix)

	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Msg("File deleted from local storage")

	return nil
}

// Exists checks if a file exists
func (ls *LocalStorage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := os.Stat(ls.getPath(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List lists objects in a bucket, sorted by key
func (ls *LocalStorage) List(ctx context.Context, bucket string, opts *ListOptions) (*ListResult, error) {
	if opts == nil {
		opts = &ListOptions{}
	}
	if opts.MaxKeys == 0 {
		opts.MaxKeys = 1000
	}

	bucketPath := filepath.Join(ls.basePath, bucket)
	if _, err := os.Stat(bucketPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var objects []Object
	err := filepath.WalkDir(bucketPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, metaSuffix) {
			return nil
		}

		relPath, err := filepath.Rel(bucketPath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)
		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			Key:          key,
			Bucket:       bucket,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	truncated := len(objects) > opts.MaxKeys
	if truncated {
		objects = objects[:opts.MaxKeys]
	}
	return &ListResult{Objects: objects, IsTruncated: truncated}, nil
}

// EnsureBucket creates the bucket directory if needed
func (ls *LocalStorage) EnsureBucket(ctx context.Context, bucket string) error {
	if err := os.MkdirAll(filepath.Join(ls.basePath, bucket), 0750); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}
