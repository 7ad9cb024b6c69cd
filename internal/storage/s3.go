package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// S3Storage implements Provider using S3-compatible storage (AWS S3, MinIO, etc.)
type S3Storage struct {
	client *minio.Client
	region string
}

// NewS3Storage creates a new S3-compatible storage provider
func NewS3Storage(endpoint, accessKey, secretKey, region string, useSSL bool) (*S3Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	log.Debug().
		Str("endpoint", endpoint).
		Str("region", region).
		Bool("ssl", useSSL).
		Msg("S3-compatible storage initialized")

	return &S3Storage{
		client: client,
		region: region,
	}, nil
}

// Name returns the provider name
func (s3 *S3Storage) Name() string {
	return "s3"
}

// Health checks if the storage is healthy
func (s3 *S3Storage) Health(ctx context.Context) error {
	if _, err := s3.client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

// Upload uploads a file to S3
func (s3 *S3Storage) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *UploadOptions) (*Object, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}

	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
		CacheControl: opts.CacheControl,
	}

	info, err := s3.client.PutObject(ctx, bucket, key, data, size, putOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int64("size", info.Size).
		Msg("File uploaded to S3")

	return &Object{
		Key:          key,
		Bucket:       bucket,
		Size:         info.Size,
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		LastModified: time.Now(),
		ETag:         info.ETag,
		Metadata:     opts.Metadata,
	}, nil
}

// Download downloads a file from S3
func (s3 *S3Storage) Download(ctx context.Context, bucket, key string) (io.ReadCloser, *Object, error) {
	stat, err := s3.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to get object info: %w", err)
	}

	reader, err := s3.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	return reader, &Object{
		Key:          key,
		Bucket:       bucket,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		CacheControl: stat.Metadata.Get("Cache-Control"),
		LastModified: stat.LastModified,
		ETag:         stat.ETag,
		Metadata:     stat.UserMetadata,
	}, nil
}

// Delete deletes a file from S3
func (s3 *S3Storage) Delete(ctx context.Context, bucket, key string) error {
	if err := s3.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Msg("File deleted from S3")

	return nil
}

// Exists checks if a file exists
func (s3 *S3Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s3.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List lists objects in a bucket
func (s3 *S3Storage) List(ctx context.Context, bucket string, opts *ListOptions) (*ListResult, error) {
	if opts == nil {
		opts = &ListOptions{}
	}
	if opts.MaxKeys == 0 {
		opts.MaxKeys = 1000
	}

	listOpts := minio.ListObjectsOptions{
		Prefix:    opts.Prefix,
		Recursive: true,
		MaxKeys:   opts.MaxKeys,
	}

	var objects []Object
	truncated := false

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for object := range s3.client.ListObjects(listCtx, bucket, listOpts) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if len(objects) >= opts.MaxKeys {
			truncated = true
			break
		}
		objects = append(objects, Object{
			Key:          object.Key,
			Bucket:       bucket,
			Size:         object.Size,
			ContentType:  object.ContentType,
			LastModified: object.LastModified,
			ETag:         object.ETag,
		})
	}

	return &ListResult{Objects: objects, IsTruncated: truncated}, nil
}

// EnsureBucket creates the bucket unless it already exists
func (s3 *S3Storage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s3.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := s3.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s3.region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Info().Str("bucket", bucket).Msg("Bucket created")
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}
