// Package manifest derives the manifests a server-rendering runtime reads
// from a bundle result. Every generator is a pure function of its inputs
// plus the current time.
package manifest

import (
	"sort"
	"time"

	"github.com/eser/stack-sub001/internal/bundler"
)

// now is replaced in tests
var now = time.Now

// ChunkInfo describes one output in a chunk manifest
type ChunkInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// ChunkManifest is a point-in-time record of one build
type ChunkManifest struct {
	Entrypoint string               `json:"entrypoint"`
	Chunks     map[string]ChunkInfo `json:"chunks"`
	BuildID    string               `json:"buildId"`
	// Timestamp is in unix milliseconds
	Timestamp int64 `json:"timestamp"`
}

// ChunkInfoWithMeta adds graph information to ChunkInfo
type ChunkInfoWithMeta struct {
	ChunkInfo
	IsEntry   bool     `json:"isEntry"`
	IsDynamic bool     `json:"isDynamic"`
	Imports   []string `json:"imports"`
}

// ChunkManifestWithMeta is the extended chunk manifest
type ChunkManifestWithMeta struct {
	Entrypoint  string                       `json:"entrypoint"`
	Chunks      map[string]ChunkInfoWithMeta `json:"chunks"`
	BuildID     string                       `json:"buildId"`
	Timestamp   int64                        `json:"timestamp"`
	Version     string                       `json:"version,omitempty"`
	Environment string                       `json:"environment,omitempty"`
	TotalSize   int64                        `json:"totalSize"`
}

// Meta is caller-supplied information for the extended manifest
type Meta struct {
	Version     string
	Environment string
}

// GenerateChunkManifest lists every output of result with its size and hash
func GenerateChunkManifest(result *bundler.Result, entrypointName, buildID string) *ChunkManifest {
	m := &ChunkManifest{
		Entrypoint: entrypointName,
		Chunks:     make(map[string]ChunkInfo, len(result.Outputs)),
		BuildID:    buildID,
		Timestamp:  now().UnixMilli(),
	}
	for name, o := range result.Outputs {
		m.Chunks[name] = chunkInfo(o)
	}
	return m
}

// GenerateChunkManifestWithMeta is GenerateChunkManifest plus entry and
// dynamic flags, per-chunk imports taken from the metafile, and the
// aggregate size. An output that is neither an entry nor a chunk-prefixed
// file is treated as dynamically loaded.
func GenerateChunkManifestWithMeta(result *bundler.Result, entrypointName, buildID string, meta Meta) *ChunkManifestWithMeta {
	m := &ChunkManifestWithMeta{
		Entrypoint:  entrypointName,
		Chunks:      make(map[string]ChunkInfoWithMeta, len(result.Outputs)),
		BuildID:     buildID,
		Timestamp:   now().UnixMilli(),
		Version:     meta.Version,
		Environment: meta.Environment,
	}

	for name, o := range result.Outputs {
		imports := []string{}
		if result.Metafile != nil {
			if out, ok := result.Metafile.Outputs[name]; ok {
				for _, imp := range out.Imports {
					imports = append(imports, imp.Path)
				}
			}
		}
		m.Chunks[name] = ChunkInfoWithMeta{
			ChunkInfo: chunkInfo(o),
			IsEntry:   o.IsEntry,
			IsDynamic: !o.IsEntry && !bundler.IsChunk(name),
			Imports:   imports,
		}
		m.TotalSize += o.Size
	}
	return m
}

// ChunkNames returns the chunk keys of m in sorted order
func (m *ChunkManifest) ChunkNames() []string {
	names := make([]string, 0, len(m.Chunks))
	for name := range m.Chunks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func chunkInfo(o *bundler.Output) ChunkInfo {
	return ChunkInfo{Path: o.Path, Size: o.Size, Hash: o.Hash}
}
