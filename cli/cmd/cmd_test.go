package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eser/stack-sub001/internal/bundler"
	"github.com/eser/stack-sub001/internal/config"
	"github.com/eser/stack-sub001/internal/manifest"
)

func TestParseEntries(t *testing.T) {
	t.Run("named and bare entries", func(t *testing.T) {
		entries, err := parseEntries([]string{"main=./src/main.tsx", "./src/admin/app.ts"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"main": "./src/main.tsx",
			"app":  "./src/admin/app.ts",
		}, entries)
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		_, err := parseEntries([]string{"=./src/main.tsx"})
		assert.Error(t, err)
	})

	t.Run("empty path is rejected", func(t *testing.T) {
		_, err := parseEntries([]string{"main="})
		assert.Error(t, err)
	})
}

func TestWithComponentEntrypoints(t *testing.T) {
	components := []manifest.ClientComponent{
		{FilePath: "/app/src/components/Counter.tsx", RelativePath: "src/components/Counter.tsx"},
		{FilePath: "/app/src/main.tsx", RelativePath: "src/main.tsx"},
		{FilePath: "", RelativePath: "src/Missing.tsx"},
	}
	entries := withComponentEntrypoints(map[string]string{"main": "/app/src/main.tsx"}, components)

	assert.Equal(t, map[string]string{
		"main":                   "/app/src/main.tsx",
		"src/components/Counter": "/app/src/components/Counter.tsx",
	}, entries)
}

func TestGenerateManifests(t *testing.T) {
	c := &config.Config{Manifest: config.ManifestConfig{Entrypoint: "main.js", Version: "1.0.0"}}
	result := &bundler.Result{
		Success: true,
		Outputs: map[string]*bundler.Output{
			"main.js":    {Path: "main.js", Size: 10, Hash: "a", IsEntry: true},
			"chunk-A.js": {Path: "chunk-A.js", Size: 5, Hash: "b"},
		},
		EntrypointManifest: map[string][]string{
			"/app/src/Counter.tsx": {"chunk-A.js"},
		},
		TotalSize: 15,
		BuildID:   "b1",
	}

	t.Run("without components", func(t *testing.T) {
		manifests := generateManifests(c, result, nil)
		require.Len(t, manifests, 1)
		m, ok := manifests[manifest.ChunkManifestFile].(*manifest.ChunkManifestWithMeta)
		require.True(t, ok)
		assert.Equal(t, "main.js", m.Entrypoint)
		assert.Equal(t, "1.0.0", m.Version)
		assert.Equal(t, int64(15), m.TotalSize)
	})

	t.Run("with components", func(t *testing.T) {
		components := []manifest.ClientComponent{
			{FilePath: "/app/src/Counter.tsx", RelativePath: "src/Counter.tsx"},
		}
		manifests := generateManifests(c, result, components)
		require.Len(t, manifests, 3)

		mm, ok := manifests[manifest.ModuleMapFile].(manifest.ModuleMap)
		require.True(t, ok)
		assert.Equal(t, []string{"chunk-A.js"}, mm["./src/Counter.tsx"].Chunks)

		rsc, ok := manifests[manifest.RSCManifestFile].(*manifest.RSCChunkManifest)
		require.True(t, ok)
		assert.Equal(t, "b1", rsc.BuildID)
	})
}

func TestEntryName(t *testing.T) {
	c := &config.Config{Manifest: config.ManifestConfig{Entrypoint: "main.js"}}
	assert.Equal(t, "main.js", entryName(c, &bundler.Result{}))
	assert.Equal(t, "app/main.js", entryName(c, &bundler.Result{Entrypoint: "app/main.js"}))
}
