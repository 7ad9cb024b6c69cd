package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File names used when manifests are written next to the build output
const (
	ChunkManifestFile = "chunk-manifest.json"
	ModuleMapFile     = "module-map.json"
	RSCManifestFile   = "rsc-manifest.json"
)

// SerializeManifest encodes a manifest as indented JSON
func SerializeManifest(m any) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	return data, nil
}

// ParseManifest decodes a manifest produced by SerializeManifest
func ParseManifest[T any](data []byte) (*T, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest serializes m into dir/name
func WriteManifest(dir, name string, m any) error {
	data, err := SerializeManifest(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil { //nolint:gosec // manifests are published with the build
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// ReadManifest reads and parses dir/name
func ReadManifest[T any](dir, name string) (*T, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return ParseManifest[T](data)
}

// LoadComponents reads a JSON array of client components
func LoadComponents(path string) ([]ClientComponent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read components file: %w", err)
	}
	components, err := ParseManifest[[]ClientComponent](data)
	if err != nil {
		return nil, err
	}
	return *components, nil
}
