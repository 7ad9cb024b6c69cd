package manifest

import (
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/eser/stack-sub001/internal/bundler"
)

// RSCManifestVersion is the format version of RSCChunkManifest
const RSCManifestVersion = "1.0"

// RSCChunk locates the chunks of one client component by short chunk id
type RSCChunk struct {
	Main       string   `json:"main"`
	Deps       []string `json:"deps"`
	ExportName string   `json:"exportName,omitempty"`
	Size       int64    `json:"size"`
}

// RSCFile is the size and hash of one generated file
type RSCFile struct {
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// RSCChunkManifest is the compact manifest used for server component chunk
// lookup
type RSCChunkManifest struct {
	Version    string              `json:"version"`
	BuildID    string              `json:"buildId"`
	Timestamp  int64               `json:"timestamp"`
	Entrypoint string              `json:"entrypoint"`
	Chunks     map[string]RSCChunk `json:"chunks"`
	Files      map[string]RSCFile  `json:"files"`
}

// ShortChunkID strips the chunk- prefix and the .js suffix from a chunk
// filename
func ShortChunkID(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(strings.TrimPrefix(base, bundler.ChunkPrefix), ".js")
}

// GenerateRSCChunkManifest builds the RSC chunk manifest. Components
// without resolved chunks are skipped.
func GenerateRSCChunkManifest(result *bundler.Result, components []ClientComponent, buildID string) *RSCChunkManifest {
	m := &RSCChunkManifest{
		Version:    RSCManifestVersion,
		BuildID:    buildID,
		Timestamp:  now().UnixMilli(),
		Entrypoint: result.Entrypoint,
		Chunks:     make(map[string]RSCChunk, len(components)),
		Files:      make(map[string]RSCFile, len(result.Outputs)),
	}

	for name, o := range result.Outputs {
		m.Files[name] = RSCFile{Size: o.Size, Hash: o.Hash}
	}

	for _, c := range components {
		chunks := resolvedChunks(result, c)
		if len(chunks) == 0 {
			log.Debug().Str("component", c.RelativePath).Msg("No chunks resolved for client component, skipping")
			continue
		}

		entry := RSCChunk{
			Main: ShortChunkID(chunks[0]),
			Deps: make([]string, 0, len(chunks)-1),
		}
		for _, dep := range chunks[1:] {
			entry.Deps = append(entry.Deps, ShortChunkID(dep))
		}
		if name := c.ExportName(); name != DefaultExportName {
			entry.ExportName = name
		}
		for _, chunk := range chunks {
			f, ok := m.Files[chunk]
			if !ok {
				log.Debug().Str("chunk", chunk).Str("component", c.RelativePath).Msg("Chunk size unknown")
				continue
			}
			entry.Size += f.Size
		}
		m.Chunks[c.RelativePath] = entry
	}
	return m
}
