package bundler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownBackend is returned when a backend name is not registered
var ErrUnknownBackend = errors.New("unknown bundler backend")

// Backend names
const (
	BackendEsbuild  = "esbuild"
	BackendDeno     = "deno"
	BackendRolldown = "rolldown"
)

// Backend is one bundling engine. Build writes into outDir or returns the
// files in memory, and reports failures through BackendOutput.Errors. A
// returned error means the engine could not be driven at all.
type Backend interface {
	Name() string
	Build(ctx context.Context, cfg Config, outDir string) (*BackendOutput, error)
}

// BackendOutput is the raw outcome of running a backend
type BackendOutput struct {
	// Files holds in-memory outputs. When nil the output directory is read.
	Files []File
	// Chunks is the backend's native output graph. When nil the entrypoint
	// manifest is inferred from proxy modules.
	Chunks []ChunkInfo
	// Inputs carries backend-reported inputs, if any
	Inputs   *Metafile
	Errors   []Message
	Warnings []Message
}

// NewBackend returns the backend registered under name
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case BackendEsbuild, "":
		return NewEsbuildBackend(), nil
	case BackendDeno:
		return NewDenoBackend(""), nil
	case BackendRolldown:
		return NewRolldownBackend(""), nil
	default:
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownBackend, name, strings.Join(BackendNames(), ", "))
	}
}

// BackendNames lists the registered backends
func BackendNames() []string {
	names := []string{BackendEsbuild, BackendDeno, BackendRolldown}
	sort.Strings(names)
	return names
}

// findDeno locates the deno executable the same way for every backend
// that shells out to it
func findDeno(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if denoPath, err := exec.LookPath("deno"); err == nil {
		return denoPath, nil
	}

	commonPaths := []string{
		"/usr/local/bin/deno",
		"/usr/bin/deno",
		"/opt/homebrew/bin/deno",
		"/home/linuxbrew/.linuxbrew/bin/deno",
	}
	if home, err := os.UserHomeDir(); err == nil {
		commonPaths = append(commonPaths, filepath.Join(home, ".deno", "bin", "deno"))
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("deno executable not found in PATH or common locations. Install from https://deno.land")
}

// denoEnv builds the environment for deno subprocesses, making sure DENO_DIR
// and HOME are set
func denoEnv() []string {
	env := filterEnvVars(os.Environ(), "DENO_DIR", "HOME")
	denoDir := os.Getenv("DENO_DIR")
	if denoDir == "" {
		denoDir = filepath.Join(os.TempDir(), "deno")
	}
	home := os.Getenv("HOME")
	if home == "" {
		home = os.TempDir()
	}
	return append(env, "DENO_DIR="+denoDir, "HOME="+home)
}

// filterEnvVars returns a copy of env with the specified variable names removed
func filterEnvVars(env []string, names ...string) []string {
	result := make([]string, 0, len(env))
	for _, e := range env {
		skip := false
		for _, name := range names {
			if strings.HasPrefix(e, name+"=") {
				skip = true
				break
			}
		}
		if !skip {
			result = append(result, e)
		}
	}
	return result
}

// entryLookup maps absolute source paths back to the entrypoint paths the
// caller configured, so manifests are keyed by what the caller passed in
func entryLookup(cfg Config) map[string]string {
	lookup := make(map[string]string, len(cfg.Entrypoints))
	for _, p := range cfg.Entrypoints {
		lookup[absPath(cfg.Root, p)] = p
	}
	return lookup
}

func absPath(root, p string) string {
	p = strings.TrimPrefix(p, "file://")
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	return filepath.Clean(p)
}

// sortedEntryNames returns entrypoint names in a stable order
func sortedEntryNames(cfg Config) []string {
	names := make([]string, 0, len(cfg.Entrypoints))
	for name := range cfg.Entrypoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
