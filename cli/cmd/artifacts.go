package cmd

import (
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/eser/stack-sub001/internal/bundler"
	"github.com/eser/stack-sub001/internal/config"
	"github.com/eser/stack-sub001/internal/manifest"
)

// loadComponents returns the configured client components, or nil when no
// components file is set
func loadComponents(c *config.Config) ([]manifest.ClientComponent, error) {
	if c.Manifest.Components == "" {
		return nil, nil
	}
	return manifest.LoadComponents(c.Manifest.Components)
}

// withComponentEntrypoints adds every client component as an entrypoint so
// the build produces a chunk for it
func withComponentEntrypoints(entrypoints map[string]string, components []manifest.ClientComponent) map[string]string {
	out := make(map[string]string, len(entrypoints)+len(components))
	taken := map[string]bool{}
	for name, entry := range entrypoints {
		out[name] = entry
		taken[entry] = true
	}
	for _, comp := range components {
		if comp.FilePath == "" || taken[comp.FilePath] {
			continue
		}
		name := strings.TrimPrefix(comp.Key(), "./")
		name = strings.TrimSuffix(name, path.Ext(name))
		if _, exists := out[name]; exists {
			log.Warn().Str("component", comp.RelativePath).Msg("Component entry name collides with an entrypoint, skipping")
			continue
		}
		out[name] = comp.FilePath
		taken[comp.FilePath] = true
	}
	return out
}

// generateManifests derives every manifest of a successful build, keyed by
// file name
func generateManifests(c *config.Config, result *bundler.Result, components []manifest.ClientComponent) map[string]any {
	manifests := map[string]any{
		manifest.ChunkManifestFile: manifest.GenerateChunkManifestWithMeta(result, entryName(c, result), result.BuildID, manifest.Meta{
			Version:     c.Manifest.Version,
			Environment: c.Manifest.Environment,
		}),
	}
	if components != nil {
		manifests[manifest.ModuleMapFile] = manifest.GenerateModuleMap(result, components)
		manifests[manifest.RSCManifestFile] = manifest.GenerateRSCChunkManifest(result, components, result.BuildID)
	}
	return manifests
}

// entryName prefers the canonical entry the build produced
func entryName(c *config.Config, result *bundler.Result) string {
	if result.Entrypoint != "" {
		return result.Entrypoint
	}
	return c.Manifest.Entrypoint
}

// writeManifests writes the manifests and, when enabled, the snapshot into
// the output directory
func writeManifests(c *config.Config, dir string, result *bundler.Result, manifests map[string]any) error {
	for name, m := range manifests {
		if err := manifest.WriteManifest(dir, name, m); err != nil {
			return err
		}
	}
	if c.Manifest.Snapshot {
		if err := manifest.WriteSnapshot(dir, result); err != nil {
			return err
		}
	}
	log.Debug().Str("dir", dir).Int("manifests", len(manifests)).Msg("Manifests written")
	return nil
}
