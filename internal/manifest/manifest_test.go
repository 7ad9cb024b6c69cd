package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/eser/stack-sub001/internal/bundler"
)

func fixedNow(t *testing.T, ts time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
}

func testResult() *bundler.Result {
	meta := bundler.NewMetafile()
	meta.Outputs["main.js"] = bundler.MetafileOutput{Imports: []bundler.MetafileImport{
		{Path: "chunk-AB12.js", Kind: bundler.ImportStatement},
		{Path: "react", Kind: bundler.ImportStatement, External: true},
	}}
	meta.Outputs["chunk-AB12.js"] = bundler.MetafileOutput{Imports: []bundler.MetafileImport{}}
	meta.Outputs["lazy.js"] = bundler.MetafileOutput{Imports: []bundler.MetafileImport{
		{Path: "chunk-AB12.js", Kind: bundler.DynamicImport},
	}}

	return &bundler.Result{
		Success: true,
		Outputs: map[string]*bundler.Output{
			"main.js":       {Path: "main.js", Size: 100, Hash: "h-main", IsEntry: true},
			"chunk-AB12.js": {Path: "chunk-AB12.js", Size: 40, Hash: "h-chunk"},
			"lazy.js":       {Path: "lazy.js", Size: 10, Hash: "h-lazy"},
		},
		Metafile: meta,
		EntrypointManifest: map[string][]string{
			"/app/src/Counter.tsx": {"chunk-AB12.js"},
			"/app/src/Nav.tsx":     {"main.js", "chunk-AB12.js"},
		},
		Entrypoint: "main.js",
		TotalSize:  150,
		BuildID:    "b1",
	}
}

func TestGenerateChunkManifest(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	fixedNow(t, ts)

	m := GenerateChunkManifest(testResult(), "main.js", "b1")

	assert.Equal(t, "main.js", m.Entrypoint)
	assert.Equal(t, "b1", m.BuildID)
	assert.Equal(t, int64(1700000000123), m.Timestamp)
	assert.Equal(t, []string{"chunk-AB12.js", "lazy.js", "main.js"}, m.ChunkNames())
	assert.Equal(t, ChunkInfo{Path: "main.js", Size: 100, Hash: "h-main"}, m.Chunks["main.js"])
}

func TestGenerateChunkManifest_Empty(t *testing.T) {
	m := GenerateChunkManifest(&bundler.Result{Outputs: map[string]*bundler.Output{}}, "main.js", "b1")
	assert.NotNil(t, m.Chunks)
	assert.Empty(t, m.Chunks)

	data, err := SerializeManifest(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chunks": {}`)
}

func TestGenerateChunkManifestWithMeta(t *testing.T) {
	m := GenerateChunkManifestWithMeta(testResult(), "main.js", "b1", Meta{Version: "1.2.3"})

	assert.Equal(t, "1.2.3", m.Version)
	assert.Empty(t, m.Environment)
	assert.Equal(t, int64(150), m.TotalSize)

	main := m.Chunks["main.js"]
	assert.True(t, main.IsEntry)
	assert.False(t, main.IsDynamic)
	assert.Equal(t, []string{"chunk-AB12.js", "react"}, main.Imports)

	chunk := m.Chunks["chunk-AB12.js"]
	assert.False(t, chunk.IsEntry)
	assert.False(t, chunk.IsDynamic)
	assert.NotNil(t, chunk.Imports)
	assert.Empty(t, chunk.Imports)

	lazy := m.Chunks["lazy.js"]
	assert.False(t, lazy.IsEntry)
	assert.True(t, lazy.IsDynamic)

	data, err := SerializeManifest(m)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "environment")
	assert.Contains(t, string(data), `"totalSize": 150`)
}

func TestChunkManifest_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`chunk-[A-Z0-9]{1,8}\.js`), 0, 10, rapid.ID[string]).Draw(t, "names")
		result := &bundler.Result{Outputs: map[string]*bundler.Output{}}
		for _, name := range names {
			result.Outputs[name] = &bundler.Output{
				Path: name,
				Size: rapid.Int64Range(0, 1<<30).Draw(t, "size"),
				Hash: rapid.StringMatching(`[0-9a-f]{16}`).Draw(t, "hash"),
			}
		}
		buildID := rapid.StringMatching(`[a-z0-9-]{1,20}`).Draw(t, "buildID")

		m := GenerateChunkManifest(result, "main.js", buildID)
		data, err := SerializeManifest(m)
		if err != nil {
			t.Fatal(err)
		}
		parsed, err := ParseManifest[ChunkManifest](data)
		if err != nil {
			t.Fatal(err)
		}
		if !assert.ObjectsAreEqual(*m, *parsed) {
			t.Fatalf("round trip mismatch:\n%+v\n%+v", m, parsed)
		}
	})
}

func TestParseManifest_Invalid(t *testing.T) {
	_, err := ParseManifest[ChunkManifest]([]byte("{"))
	assert.Error(t, err)
}

func TestGenerateModuleMap(t *testing.T) {
	components := []ClientComponent{
		{FilePath: "/app/src/Counter.tsx", RelativePath: "src/Counter.tsx"},
		{FilePath: "/app/src/Nav.tsx", RelativePath: "./src/Nav.tsx", ExportNames: []string{"Nav", "NavItem"}},
		{FilePath: "/app/src/Unbuilt.tsx", RelativePath: "src/Unbuilt.tsx"},
	}

	m := GenerateModuleMap(testResult(), components)
	require.Len(t, m, 3)

	assert.Equal(t, ModuleEntry{ID: "chunk-AB12.js", Name: "default", Chunks: []string{"chunk-AB12.js"}}, m["./src/Counter.tsx"])
	assert.Equal(t, ModuleEntry{ID: "main.js", Name: "Nav", Chunks: []string{"main.js", "chunk-AB12.js"}}, m["./src/Nav.tsx"])
	assert.Equal(t, ModuleEntry{ID: "src/Unbuilt.js", Name: "default", Chunks: []string{"src/Unbuilt.js"}}, m["./src/Unbuilt.tsx"])
}

func TestGenerateModuleMap_RelativePathLookup(t *testing.T) {
	result := &bundler.Result{
		Outputs:            map[string]*bundler.Output{},
		EntrypointManifest: map[string][]string{"src/Counter.tsx": {"chunk-1.js"}},
	}
	m := GenerateModuleMap(result, []ClientComponent{{FilePath: "/elsewhere/Counter.tsx", RelativePath: "src/Counter.tsx"}})
	assert.Equal(t, []string{"chunk-1.js"}, m["./src/Counter.tsx"].Chunks)
}

func TestClientComponent(t *testing.T) {
	assert.Equal(t, "default", ClientComponent{}.ExportName())
	assert.Equal(t, "default", ClientComponent{ExportNames: []string{""}}.ExportName())
	assert.Equal(t, "Counter", ClientComponent{ExportNames: []string{"Counter"}}.ExportName())

	assert.Equal(t, "./src/a.tsx", ClientComponent{RelativePath: "src/a.tsx"}.Key())
	assert.Equal(t, "./src/a.tsx", ClientComponent{RelativePath: "./src/a.tsx"}.Key())
	assert.Equal(t, "./src/a.tsx", ClientComponent{RelativePath: `src\a.tsx`}.Key())
}

func TestShortChunkID(t *testing.T) {
	assert.Equal(t, "AB12", ShortChunkID("chunk-AB12.js"))
	assert.Equal(t, "AB12", ShortChunkID("nested/chunk-AB12.js"))
	assert.Equal(t, "main", ShortChunkID("main.js"))
}

func TestGenerateRSCChunkManifest(t *testing.T) {
	fixedNow(t, time.UnixMilli(42))

	components := []ClientComponent{
		{FilePath: "/app/src/Counter.tsx", RelativePath: "src/Counter.tsx"},
		{FilePath: "/app/src/Nav.tsx", RelativePath: "src/Nav.tsx", ExportNames: []string{"Nav"}},
		{FilePath: "/app/src/Unbuilt.tsx", RelativePath: "src/Unbuilt.tsx"},
	}

	m := GenerateRSCChunkManifest(testResult(), components, "b1")

	assert.Equal(t, RSCManifestVersion, m.Version)
	assert.Equal(t, "b1", m.BuildID)
	assert.Equal(t, int64(42), m.Timestamp)
	assert.Equal(t, "main.js", m.Entrypoint)
	assert.Len(t, m.Files, 3)
	assert.Equal(t, RSCFile{Size: 40, Hash: "h-chunk"}, m.Files["chunk-AB12.js"])

	require.Len(t, m.Chunks, 2)
	assert.Equal(t, RSCChunk{Main: "AB12", Deps: []string{}, Size: 40}, m.Chunks["src/Counter.tsx"])
	assert.Equal(t, RSCChunk{Main: "main", Deps: []string{"AB12"}, ExportName: "Nav", Size: 140}, m.Chunks["src/Nav.tsx"])
	assert.NotContains(t, m.Chunks, "src/Unbuilt.tsx")

	data, err := SerializeManifest(m)
	require.NoError(t, err)
	parsed, err := ParseManifest[RSCChunkManifest](data)
	require.NoError(t, err)
	assert.Empty(t, parsed.Chunks["src/Counter.tsx"].ExportName)
	assert.NotContains(t, string(data), `"exportName": "default"`)
}

func TestSnapshot(t *testing.T) {
	t.Run("missing snapshot", func(t *testing.T) {
		snap, found, err := LoadSnapshot(t.TempDir())
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, snap)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, found, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope"))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("round trip", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "dist")
		require.NoError(t, WriteSnapshot(dir, testResult()))

		snap, found, err := LoadSnapshot(dir)
		require.NoError(t, err)
		require.True(t, found)

		assert.Equal(t, "b1", snap.BuildID)
		assert.Equal(t, dir, snap.Dir)
		assert.Equal(t, []string{"chunk-AB12.js", "lazy.js", "main.js"}, snap.FileNames())
		assert.Equal(t, []string{"chunk-AB12.js"}, snap.Files["main.js"])
		assert.Equal(t, []string{"chunk-AB12.js"}, snap.Files["lazy.js"])
		assert.Equal(t, []string{}, snap.Files["chunk-AB12.js"])

		data, err := os.ReadFile(filepath.Join(dir, SnapshotFile))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"build_id": "b1"`)
	})

	t.Run("corrupt snapshot", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, SnapshotFile), []byte("{"), 0600))
		_, found, err := LoadSnapshot(dir)
		assert.Error(t, err)
		assert.False(t, found)
	})

	t.Run("without metafile", func(t *testing.T) {
		snap := NewSnapshot(&bundler.Result{
			BuildID: "b2",
			Outputs: map[string]*bundler.Output{"main.js": {Path: "main.js"}},
		})
		assert.Equal(t, map[string][]string{"main.js": {}}, snap.Files)
	})
}

func TestWriteAndReadManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	m := GenerateModuleMap(testResult(), []ClientComponent{{FilePath: "/app/src/Counter.tsx", RelativePath: "src/Counter.tsx"}})

	require.NoError(t, WriteManifest(dir, ModuleMapFile, m))

	read, err := ReadManifest[ModuleMap](dir, ModuleMapFile)
	require.NoError(t, err)
	assert.Equal(t, m, *read)

	_, err = ReadManifest[ModuleMap](dir, RSCManifestFile)
	assert.Error(t, err)
}

func TestLoadComponents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "components.json")
	content := `[{"filePath":"/app/src/Counter.tsx","relativePath":"src/Counter.tsx","exportNames":["Counter"]}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	components, err := LoadComponents(path)
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, "Counter", components[0].ExportName())
	assert.Equal(t, "./src/Counter.tsx", components[0].Key())

	_, err = LoadComponents(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
