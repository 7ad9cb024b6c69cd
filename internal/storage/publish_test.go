package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eser/stack-sub001/internal/bundler"
	"github.com/eser/stack-sub001/internal/manifest"
)

type recordedOp struct {
	operation string
	bytes     int64
	err       error
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (r *fakeRecorder) RecordStorageOperation(operation, bucket string, bytes int64, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{operation: operation, bytes: bytes, err: err})
}

// failingProvider fails every upload of one key
type failingProvider struct {
	*LocalStorage
	failKey string
}

func (f *failingProvider) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *UploadOptions) (*Object, error) {
	if key == f.failKey {
		return nil, errors.New("disk full")
	}
	return f.LocalStorage.Upload(ctx, bucket, key, data, size, opts)
}

func sampleResult() *bundler.Result {
	return &bundler.Result{
		Success: true,
		BuildID: "b1",
		Outputs: map[string]*bundler.Output{
			"main.js":     {Path: "main.js", Code: []byte(`import "./chunk-A.js";`), Size: 22, Map: []byte(`{}`)},
			"chunk-A.js":  {Path: "chunk-A.js", Code: []byte("export{}"), Size: 8},
			"build-id.js": {Path: "build-id.js", Code: []byte(`export default "b1"`), Size: 19},
		},
		Metafile: &bundler.Metafile{
			Outputs: map[string]bundler.MetafileOutput{
				"main.js":     {Imports: []bundler.MetafileImport{{Path: "chunk-A.js", Kind: bundler.ImportStatement}}},
				"chunk-A.js":  {},
				"build-id.js": {},
			},
		},
	}
}

func TestArtifactsFromResult(t *testing.T) {
	artifacts, err := ArtifactsFromResult(sampleResult(), map[string]any{
		"manifest.json": map[string]string{"entrypoint": "main.js"},
	})
	require.NoError(t, err)

	byKey := map[string]Artifact{}
	for _, a := range artifacts {
		byKey[a.Key] = a
	}

	assert.Len(t, byKey, 6)
	assert.True(t, byKey["chunk-A.js"].Immutable)
	assert.False(t, byKey["main.js"].Immutable)
	assert.Equal(t, "text/javascript; charset=utf-8", byKey["main.js"].ContentType)
	assert.Equal(t, "application/json", byKey["main.js.map"].ContentType)
	assert.Contains(t, string(byKey[manifest.SnapshotFile].Data), `"build_id": "b1"`)
	assert.Contains(t, byKey, "manifest.json")
}

func TestPublish(t *testing.T) {
	store, tmpDir := setupLocalStorage(t)
	recorder := &fakeRecorder{}

	artifacts, err := ArtifactsFromResult(sampleResult(), nil)
	require.NoError(t, err)

	report, err := Publish(context.Background(), store, PublishOptions{
		Bucket:      "assets",
		Prefix:      "/b1/",
		Concurrency: 2,
		Recorder:    recorder,
	}, artifacts)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"b1/build-id.js",
		"b1/chunk-A.js",
		"b1/main.js",
		"b1/main.js.map",
		"b1/snapshot.json",
	}, report.Keys)
	assert.Len(t, recorder.ops, 5)

	_, err = os.Stat(filepath.Join(tmpDir, "assets", "b1", "chunk-A.js"))
	assert.NoError(t, err)

	_, obj, err := store.Download(context.Background(), "assets", "b1/chunk-A.js")
	require.NoError(t, err)
	assert.Equal(t, ImmutableCacheControl, obj.CacheControl)
}

func TestPublish_FailureIsReported(t *testing.T) {
	store, _ := setupLocalStorage(t)
	provider := &failingProvider{LocalStorage: store, failKey: "b1/main.js"}

	_, err := Publish(context.Background(), provider, PublishOptions{Bucket: "assets", Prefix: "b1"}, []Artifact{
		{Key: "main.js", Data: []byte("x")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPublish_RequiresBucket(t *testing.T) {
	store, _ := setupLocalStorage(t)
	_, err := Publish(context.Background(), store, PublishOptions{}, nil)
	assert.Error(t, err)
}

func TestArtifactsFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	result := sampleResult()
	require.NoError(t, bundler.WriteOutputs(dir, result))
	require.NoError(t, manifest.WriteSnapshot(dir, result))

	snap, ok, err := manifest.LoadSnapshot(dir)
	require.NoError(t, err)
	require.True(t, ok)

	artifacts, err := ArtifactsFromSnapshot(snap)
	require.NoError(t, err)

	var keys []string
	for _, a := range artifacts {
		keys = append(keys, a.Key)
	}
	assert.ElementsMatch(t, []string{"build-id.js", "chunk-A.js", "main.js", "main.js.map", "snapshot.json"}, keys)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "main.js", objectKey("", "main.js"))
	assert.Equal(t, "b1/main.js", objectKey("b1/", "/main.js"))
	assert.Equal(t, "b1/main.js", objectKey("b1", "../main.js"))
}

// unhealthyProvider fails its health check
type unhealthyProvider struct {
	*LocalStorage
}

func (u *unhealthyProvider) Health(context.Context) error {
	return errors.New("connection refused")
}

func TestPublish_HealthCheckFailure(t *testing.T) {
	store, tmpDir := setupLocalStorage(t)

	_, err := Publish(context.Background(), &unhealthyProvider{store}, PublishOptions{Bucket: "assets"}, []Artifact{
		{Key: "main.js", Data: []byte("x")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	_, err = os.Stat(filepath.Join(tmpDir, "assets"))
	assert.True(t, os.IsNotExist(err), "nothing is written when the provider is unhealthy")
}

func TestPublish_SkipsExistingImmutable(t *testing.T) {
	store, _ := setupLocalStorage(t)
	ctx := context.Background()

	artifacts := []Artifact{
		{Key: "chunk-A.js", Data: []byte("export{}"), Immutable: true},
		{Key: "main.js", Data: []byte("v1")},
	}
	opts := PublishOptions{Bucket: "assets", Prefix: "b1", SkipExisting: true}

	first, err := Publish(ctx, store, opts, artifacts)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1/chunk-A.js", "b1/main.js"}, first.Keys)
	assert.Empty(t, first.Skipped)

	artifacts[1].Data = []byte("v2")
	second, err := Publish(ctx, store, opts, artifacts)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1/main.js"}, second.Keys)
	assert.Equal(t, []string{"b1/chunk-A.js"}, second.Skipped)

	reader, _, err := store.Download(ctx, "assets", "b1/main.js")
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data), "mutable artifacts are always uploaded")
}

func TestPrune(t *testing.T) {
	store, tmpDir := setupLocalStorage(t)
	ctx := context.Background()
	recorder := &fakeRecorder{}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"b1", "b2", "b3", "b4"} {
		for _, name := range []string{"main.js", "chunk-A.js"} {
			upload(t, store, "assets", "site/"+id+"/"+name, id, nil)
			mtime := base.Add(time.Duration(i) * time.Hour)
			require.NoError(t, os.Chtimes(filepath.Join(tmpDir, "assets", "site", id, name), mtime, mtime))
		}
	}
	upload(t, store, "assets", "site/index.html", "root file", nil)

	report, err := Prune(ctx, store, PruneOptions{
		Bucket:   "assets",
		Root:     "/site/",
		Keep:     2,
		Current:  "b1",
		Recorder: recorder,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"b4", "b3", "b1"}, report.Kept)
	assert.Equal(t, []string{"b2"}, report.Removed)
	assert.Equal(t, 2, report.Objects)
	assert.Len(t, recorder.ops, 2)

	list, err := store.List(ctx, "assets", &ListOptions{Prefix: "site/"})
	require.NoError(t, err)
	var keys []string
	for _, o := range list.Objects {
		keys = append(keys, o.Key)
	}
	assert.NotContains(t, keys, "site/b2/main.js")
	assert.Contains(t, keys, "site/b1/main.js")
	assert.Contains(t, keys, "site/index.html")
}

func TestPrune_InvalidOptions(t *testing.T) {
	store, _ := setupLocalStorage(t)

	_, err := Prune(context.Background(), store, PruneOptions{Bucket: "assets", Keep: 0})
	assert.Error(t, err)
	_, err = Prune(context.Background(), store, PruneOptions{Keep: 1})
	assert.Error(t, err)
}

func TestFetchSnapshot(t *testing.T) {
	store, _ := setupLocalStorage(t)
	ctx := context.Background()

	artifacts, err := ArtifactsFromResult(sampleResult(), nil)
	require.NoError(t, err)
	_, err = Publish(ctx, store, PublishOptions{Bucket: "assets", Prefix: "site/b1"}, artifacts)
	require.NoError(t, err)

	snap, err := FetchSnapshot(ctx, store, "assets", "site/b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", snap.BuildID)
	assert.Equal(t, []string{"chunk-A.js"}, snap.Files["main.js"])

	_, err = FetchSnapshot(ctx, store, "assets", "site/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
