package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eser/stack-sub001/cli/output"
	"github.com/eser/stack-sub001/internal/buildid"
	"github.com/eser/stack-sub001/internal/bundler"
	"github.com/eser/stack-sub001/internal/config"
)

var (
	bundleBackend   string
	bundleEntries   []string
	bundleOutDir    string
	bundleMinify    bool
	bundleSourcemap string
	bundleBasePath  string
	bundleBuildID   string
	bundleDetails   bool
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Build once and write outputs and manifests",
	Long: `Run a single build with the configured backend, write the normalized
outputs into the output directory and generate the chunk manifest, the module
map and RSC manifest (when a components file is configured) and snapshot.json.

Examples:
  bundler bundle --entry main=./src/main.tsx
  bundler bundle --backend rolldown --minify --sourcemap external
  bundler bundle -o json`,
	RunE: runBundle,
}

func init() {
	addBuildFlags(bundleCmd)
	bundleCmd.Flags().BoolVar(&bundleDetails, "details", false, "list every output file")
}

// addBuildFlags registers the flags shared by bundle and watch
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&bundleBackend, "backend", "b", "", "bundler backend: "+strings.Join(bundler.BackendNames(), ", "))
	cmd.Flags().StringArrayVarP(&bundleEntries, "entry", "e", nil, "entrypoint as name=path (repeatable)")
	cmd.Flags().StringVar(&bundleOutDir, "outdir", "", "output directory")
	cmd.Flags().BoolVar(&bundleMinify, "minify", false, "minify output")
	cmd.Flags().StringVar(&bundleSourcemap, "sourcemap", "", "sourcemap mode: off, inline, external")
	cmd.Flags().StringVar(&bundleBasePath, "base-path", "", "base path prefixed to runtime endpoints")
	cmd.Flags().StringVar(&bundleBuildID, "build-id", "", "build id (default: $"+buildid.EnvVar+" or a random id)")
}

// bundleConfig merges command line flags over the loaded configuration
func bundleConfig(cmd *cobra.Command, c *config.Config) (bundler.Config, error) {
	bc := c.Bundle
	if cmd.Flags().Changed("backend") {
		bc.Backend = bundleBackend
	}
	if cmd.Flags().Changed("outdir") {
		bc.OutputDir = bundleOutDir
	}
	if cmd.Flags().Changed("minify") {
		bc.Minify = bundleMinify
	}
	if cmd.Flags().Changed("sourcemap") {
		bc.Sourcemap = bundleSourcemap
	}
	if cmd.Flags().Changed("base-path") {
		bc.BasePath = bundleBasePath
	}
	if len(bundleEntries) > 0 {
		entries, err := parseEntries(bundleEntries)
		if err != nil {
			return bundler.Config{}, err
		}
		bc.Entrypoints = entries
	}
	if err := bc.Validate(); err != nil {
		return bundler.Config{}, err
	}

	id := bundleBuildID
	if id == "" {
		id = buildid.Resolve()
	}
	if !buildid.Valid(id) {
		return bundler.Config{}, fmt.Errorf("invalid build id: %q", id)
	}
	return bc.ToBundlerConfig(id), nil
}

func parseEntries(values []string) (map[string]string, error) {
	entries := make(map[string]string, len(values))
	for _, v := range values {
		name, entry, ok := strings.Cut(v, "=")
		if !ok {
			entry = v
			base := filepath.Base(filepath.FromSlash(entry))
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		if name == "" || entry == "" {
			return nil, fmt.Errorf("invalid entrypoint %q (expected name=path)", v)
		}
		entries[name] = entry
	}
	return entries, nil
}

func runBundle(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	bcfg, err := bundleConfig(cmd, c)
	if err != nil {
		return err
	}
	components, err := loadComponents(c)
	if err != nil {
		return err
	}
	bcfg.Entrypoints = withComponentEntrypoints(bcfg.Entrypoints, components)

	ctx := cmd.Context()
	tracer, stopTracing := startTracing(ctx, c)
	defer stopTracing()
	ctx, span := startCommandSpan(ctx, tracer, "bundle")
	defer span.End()

	b, err := bundler.New(bcfg)
	if err != nil {
		return err
	}

	result := b.Bundle(ctx)
	if result.Success {
		manifests := generateManifests(c, result, components)
		if err := writeManifests(c, b.Config().OutputDir, result, manifests); err != nil {
			return err
		}
	}

	printResult(result, bundleDetails)
	if !result.Success {
		return fmt.Errorf("build failed with %d error(s)", len(result.Errors))
	}
	return nil
}

// printResult shows a build result in the selected output format
func printResult(result *bundler.Result, details bool) {
	if formatter.Quiet {
		return
	}
	if formatter.Format == output.FormatTable {
		bundler.DisplayResult(formatter.Writer, result, details)
		return
	}
	_ = formatter.Print(result)
}
