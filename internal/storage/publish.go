package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/eser/stack-sub001/internal/bundler"
	"github.com/eser/stack-sub001/internal/manifest"
	"github.com/eser/stack-sub001/internal/observability"
)

const (
	// ImmutableCacheControl is used for content-hashed chunks
	ImmutableCacheControl = "public, max-age=31536000, immutable"
	// RevalidateCacheControl is used for files whose names do not change
	// between builds
	RevalidateCacheControl = "public, max-age=0, must-revalidate"
)

// Artifact is one file to publish
type Artifact struct {
	// Key is relative to the publish prefix
	Key         string
	Data        []byte
	ContentType string
	Immutable   bool
}

// OperationRecorder receives one observation per storage operation
type OperationRecorder interface {
	RecordStorageOperation(operation, bucket string, bytes int64, duration time.Duration, err error)
}

// PublishOptions controls Publish
type PublishOptions struct {
	Bucket string
	// Prefix is prepended to every key, typically the build id
	Prefix string
	// Concurrency bounds parallel uploads (default GOMAXPROCS)
	Concurrency int
	// SkipExisting leaves immutable artifacts that are already stored
	// untouched. Their names change with their content.
	SkipExisting bool
	Recorder     OperationRecorder
}

// PublishReport summarizes a publish run
type PublishReport struct {
	Bucket  string   `json:"bucket"`
	Prefix  string   `json:"prefix"`
	Keys    []string `json:"keys"`
	Skipped []string `json:"skipped,omitempty"`
	Bytes   int64    `json:"bytes"`
	Elapsed string   `json:"elapsed"`
}

// Publish uploads artifacts under opts.Prefix. The first failed upload
// cancels the rest.
func Publish(ctx context.Context, p Provider, opts PublishOptions, artifacts []Artifact) (*PublishReport, error) {
	start := time.Now()
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if err := p.Health(ctx); err != nil {
		return nil, fmt.Errorf("%s storage is not available: %w", p.Name(), err)
	}
	if err := p.EnsureBucket(ctx, opts.Bucket); err != nil {
		return nil, err
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	report := &PublishReport{Bucket: opts.Bucket, Prefix: opts.Prefix}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, a := range artifacts {
		g.Go(func() error {
			key := objectKey(opts.Prefix, a.Key)

			if opts.SkipExisting && a.Immutable {
				exists, err := p.Exists(gctx, opts.Bucket, key)
				if err != nil {
					return fmt.Errorf("failed to check %s: %w", a.Key, err)
				}
				if exists {
					mu.Lock()
					report.Skipped = append(report.Skipped, key)
					mu.Unlock()
					return nil
				}
			}

			uploadCtx, span := observability.StartStorageSpan(gctx, "upload", opts.Bucket, key)
			opStart := time.Now()
			_, err := p.Upload(uploadCtx, opts.Bucket, key, bytes.NewReader(a.Data), int64(len(a.Data)), &UploadOptions{
				ContentType:  a.ContentType,
				CacheControl: cacheControl(a.Immutable),
			})
			observability.EndSpan(span, err)
			if opts.Recorder != nil {
				opts.Recorder.RecordStorageOperation("upload", opts.Bucket, int64(len(a.Data)), time.Since(opStart), err)
			}
			if err != nil {
				return fmt.Errorf("failed to publish %s: %w", a.Key, err)
			}

			mu.Lock()
			report.Keys = append(report.Keys, key)
			report.Bytes += int64(len(a.Data))
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(report.Keys)
	sort.Strings(report.Skipped)
	report.Elapsed = time.Since(start).Round(time.Millisecond).String()

	log.Info().
		Str("provider", p.Name()).
		Str("bucket", opts.Bucket).
		Str("prefix", opts.Prefix).
		Int("files", len(report.Keys)).
		Int("skipped", len(report.Skipped)).
		Int64("bytes", report.Bytes).
		Msg("Build published")

	return report, nil
}

// ArtifactsFromResult collects the outputs, sourcemaps and snapshot of a
// finished build. Manifests passed in extra are added as JSON files.
func ArtifactsFromResult(result *bundler.Result, extra map[string]any) ([]Artifact, error) {
	var artifacts []Artifact
	for _, name := range result.OutputNames() {
		o := result.Outputs[name]
		artifacts = append(artifacts, Artifact{
			Key:         o.Path,
			Data:        o.Code,
			ContentType: contentType(o.Path),
			Immutable:   bundler.IsChunk(o.Path),
		})
		if o.Map != nil {
			artifacts = append(artifacts, Artifact{
				Key:         o.Path + ".map",
				Data:        o.Map,
				ContentType: "application/json",
				Immutable:   bundler.IsChunk(o.Path),
			})
		}
	}

	snapshot, err := manifest.SerializeManifest(manifest.NewSnapshot(result))
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, Artifact{Key: manifest.SnapshotFile, Data: snapshot, ContentType: "application/json"})

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := manifest.SerializeManifest(extra[name])
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, Artifact{Key: name, Data: data, ContentType: "application/json"})
	}
	return artifacts, nil
}

// ArtifactsFromSnapshot reads the files of a previously written build back
// from its output directory
func ArtifactsFromSnapshot(snap *manifest.LoadedSnapshot) ([]Artifact, error) {
	var artifacts []Artifact
	for _, name := range snap.FileNames() {
		for _, key := range []string{name, name + ".map"} {
			data, err := os.ReadFile(filepath.Join(snap.Dir, filepath.FromSlash(key)))
			if err != nil {
				if key != name && os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("failed to read %s: %w", key, err)
			}
			artifacts = append(artifacts, Artifact{
				Key:         key,
				Data:        data,
				ContentType: contentType(key),
				Immutable:   bundler.IsChunk(name),
			})
		}
	}

	data, err := os.ReadFile(filepath.Join(snap.Dir, manifest.SnapshotFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	artifacts = append(artifacts, Artifact{Key: manifest.SnapshotFile, Data: data, ContentType: "application/json"})
	return artifacts, nil
}

func objectKey(prefix, key string) string {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if prefix == "" {
		return key
	}
	return strings.Trim(prefix, "/") + "/" + key
}

func cacheControl(immutable bool) string {
	if immutable {
		return ImmutableCacheControl
	}
	return RevalidateCacheControl
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	case ".map", ".json":
		return "application/json"
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
