package bundler

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/eser/stack-sub001/internal/bundler/proxyimports"
)

// ChunkInfo is the per-output metadata backends with a native module graph
// report.
type ChunkInfo struct {
	FileName       string   `json:"fileName"`
	IsEntry        bool     `json:"isEntry"`
	FacadeModuleID string   `json:"facadeModuleId,omitempty"`
	Imports        []string `json:"imports,omitempty"`
	DynamicImports []string `json:"dynamicImports,omitempty"`
}

// DirectEntrypointManifest builds the entrypoint manifest from a native
// output graph: every entry output with a facade module id maps to itself
// followed by its direct static imports.
func DirectEntrypointManifest(chunks []ChunkInfo) map[string][]string {
	manifest := map[string][]string{}
	for _, c := range chunks {
		if !c.IsEntry || c.FacadeModuleID == "" {
			continue
		}
		own := NormalizeName(c.FileName)
		list := []string{own}
		seen := map[string]bool{own: true}
		for _, imp := range c.Imports {
			imp = NormalizeName(imp)
			if seen[imp] {
				continue
			}
			seen[imp] = true
			list = append(list, imp)
		}
		manifest[c.FacadeModuleID] = list
	}
	return manifest
}

// ProxyPath is where a backend writes the proxy module for entry, relative
// to its output directory.
func ProxyPath(root, entry string) string {
	rel := entry
	if root != "" && filepath.IsAbs(entry) {
		if r, err := filepath.Rel(root, entry); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	rel = strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(rel)), "/")
	return strings.TrimSuffix(rel, path.Ext(rel)) + ".js"
}

// InferEntrypointManifest recovers the entrypoint manifest from the proxy
// modules a backend left in layout. Entrypoints without a proxy file get no
// entry.
func InferEntrypointManifest(entrypoints map[string]string, root string, layout OutputLayout) map[string][]string {
	manifest := map[string][]string{}
	for name, entry := range entrypoints {
		proxy := ProxyPath(root, entry)
		src, ok := readProxy(layout, proxy)
		if !ok {
			log.Debug().
				Str("entrypoint", name).
				Str("proxy", proxy).
				Msg("No proxy module found, skipping entrypoint manifest entry")
			continue
		}

		res := proxyimports.Extract(src)
		if len(res.Chunks) == 0 {
			continue
		}
		if res.MainIndex == proxyimports.NoMain {
			log.Debug().
				Str("entrypoint", name).
				Msg("Could not tie an export to a chunk, keeping discovery order")
		}
		manifest[entry] = res.Ordered()
	}
	return manifest
}

func readProxy(layout OutputLayout, proxy string) (string, bool) {
	dirs := []string{layout.Root}
	if layout.Nested != "" {
		dirs = append(dirs, layout.Nested)
	}
	for _, dir := range dirs {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(proxy)))
		if err == nil {
			return string(data), true
		}
	}
	return "", false
}
