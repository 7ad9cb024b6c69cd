package manifest

import (
	"path"
	"strings"

	"github.com/eser/stack-sub001/internal/bundler"
)

// DefaultExportName is used when a component declares no export names
const DefaultExportName = "default"

// ClientComponent is one entry of the rendering runtime's client component
// registry
type ClientComponent struct {
	// FilePath is the absolute source path, as used for entrypoints
	FilePath string `json:"filePath"`
	// RelativePath is relative to the project root
	RelativePath string   `json:"relativePath"`
	ExportNames  []string `json:"exportNames,omitempty"`
}

// ExportName returns the first declared export or "default"
func (c ClientComponent) ExportName() string {
	if len(c.ExportNames) == 0 || c.ExportNames[0] == "" {
		return DefaultExportName
	}
	return c.ExportNames[0]
}

// Key returns the client reference id the server runtime uses for c
func (c ClientComponent) Key() string {
	return "./" + strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(c.RelativePath, "\\", "/")), "/")
}

// ModuleEntry locates the chunks needed to load one client component
type ModuleEntry struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Chunks []string `json:"chunks"`
}

// ModuleMap maps client reference ids to their chunks
type ModuleMap map[string]ModuleEntry

// GenerateModuleMap builds the module map for components. A component
// without a resolved entrypoint falls back to its relative path with a .js
// extension.
func GenerateModuleMap(result *bundler.Result, components []ClientComponent) ModuleMap {
	m := make(ModuleMap, len(components))
	for _, c := range components {
		chunks := resolvedChunks(result, c)
		if len(chunks) == 0 {
			chunks = []string{fallbackChunk(c.RelativePath)}
		}
		m[c.Key()] = ModuleEntry{
			ID:     chunks[0],
			Name:   c.ExportName(),
			Chunks: chunks,
		}
	}
	return m
}

func resolvedChunks(result *bundler.Result, c ClientComponent) []string {
	if result == nil || result.EntrypointManifest == nil {
		return nil
	}
	chunks, ok := result.EntrypointManifest[c.FilePath]
	if !ok {
		chunks = result.EntrypointManifest[c.RelativePath]
	}
	return append([]string(nil), chunks...)
}

func fallbackChunk(relativePath string) string {
	p := strings.ReplaceAll(relativePath, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return strings.TrimSuffix(p, path.Ext(p)) + ".js"
}
