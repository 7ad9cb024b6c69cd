package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eser/stack-sub001/internal/manifest"
)

// pruneListLimit bounds how many objects a single prune inspects
const pruneListLimit = 100000

// PruneOptions controls Prune
type PruneOptions struct {
	Bucket string
	// Root is the prefix that holds one directory per build
	Root string
	// Keep is how many of the most recently published builds survive
	Keep int
	// Current is never removed, whatever its age
	Current  string
	Recorder OperationRecorder
}

// PruneReport lists the builds a prune kept and removed
type PruneReport struct {
	Kept    []string `json:"kept"`
	Removed []string `json:"removed"`
	Objects int      `json:"objects"`
}

type publishedBuild struct {
	id     string
	latest time.Time
	keys   []string
}

// Prune deletes old builds below opts.Root. A build is the first path
// segment under the root; its age is that of its newest object.
func Prune(ctx context.Context, p Provider, opts PruneOptions) (*PruneReport, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if opts.Keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", opts.Keep)
	}

	prefix := strings.Trim(opts.Root, "/")
	if prefix != "" {
		prefix += "/"
	}

	list, err := p.List(ctx, opts.Bucket, &ListOptions{Prefix: prefix, MaxKeys: pruneListLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list published builds: %w", err)
	}
	if list.IsTruncated {
		return nil, fmt.Errorf("more than %d objects below %q, refusing to prune", pruneListLimit, prefix)
	}

	byID := map[string]*publishedBuild{}
	for _, obj := range list.Objects {
		id, _, ok := strings.Cut(strings.TrimPrefix(obj.Key, prefix), "/")
		if !ok || id == "" {
			continue
		}
		b := byID[id]
		if b == nil {
			b = &publishedBuild{id: id}
			byID[id] = b
		}
		if obj.LastModified.After(b.latest) {
			b.latest = obj.LastModified
		}
		b.keys = append(b.keys, obj.Key)
	}

	builds := make([]*publishedBuild, 0, len(byID))
	for _, b := range byID {
		builds = append(builds, b)
	}
	sort.Slice(builds, func(i, j int) bool {
		if !builds[i].latest.Equal(builds[j].latest) {
			return builds[i].latest.After(builds[j].latest)
		}
		return builds[i].id > builds[j].id
	})

	report := &PruneReport{Kept: []string{}, Removed: []string{}}
	for i, b := range builds {
		if i < opts.Keep || b.id == opts.Current {
			report.Kept = append(report.Kept, b.id)
			continue
		}
		for _, key := range b.keys {
			start := time.Now()
			err := p.Delete(ctx, opts.Bucket, key)
			if opts.Recorder != nil {
				opts.Recorder.RecordStorageOperation("delete", opts.Bucket, 0, time.Since(start), err)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to delete %s: %w", key, err)
			}
			report.Objects++
		}
		report.Removed = append(report.Removed, b.id)
	}

	log.Info().
		Str("bucket", opts.Bucket).
		Str("root", prefix).
		Strs("removed", report.Removed).
		Int("objects", report.Objects).
		Msg("Old builds pruned")

	return report, nil
}

// FetchSnapshot downloads the snapshot published under prefix
func FetchSnapshot(ctx context.Context, p Provider, bucket, prefix string) (*manifest.Snapshot, error) {
	reader, _, err := p.Download(ctx, bucket, objectKey(prefix, manifest.SnapshotFile))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read published snapshot: %w", err)
	}
	snap, err := manifest.ParseManifest[manifest.Snapshot](data)
	if err != nil {
		return nil, err
	}
	if snap.Files == nil {
		snap.Files = map[string][]string{}
	}
	return snap, nil
}
