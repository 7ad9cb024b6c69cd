package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/eser/stack-sub001/cli/output"
	"github.com/eser/stack-sub001/internal/manifest"
)

var manifestDir string

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect manifests written by the last build",
}

var manifestChunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "Show the chunk manifest",
	Example: `  bundler manifest chunks
  bundler manifest chunks -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := outputDir()
		if err != nil {
			return err
		}
		m, err := manifest.ReadManifest[manifest.ChunkManifestWithMeta](dir, manifest.ChunkManifestFile)
		if err != nil {
			return err
		}
		if formatter.Format != output.FormatTable {
			return formatter.Print(m)
		}

		formatter.PrintKeyValue("Build ID", m.BuildID)
		formatter.PrintKeyValue("Entrypoint", m.Entrypoint)
		formatter.PrintKeyValue("Total size", humanize.IBytes(uint64(m.TotalSize))) //nolint:gosec // sizes are never negative
		formatter.PrintInfo("")

		names := make([]string, 0, len(m.Chunks))
		for name := range m.Chunks {
			names = append(names, name)
		}
		sort.Strings(names)

		data := output.TableData{Headers: []string{"PATH", "SIZE", "HASH", "ENTRY", "DYNAMIC", "IMPORTS"}}
		for _, name := range names {
			ch := m.Chunks[name]
			data.Rows = append(data.Rows, []string{
				ch.Path,
				humanize.IBytes(uint64(ch.Size)), //nolint:gosec // sizes are never negative
				ch.Hash,
				strconv.FormatBool(ch.IsEntry),
				strconv.FormatBool(ch.IsDynamic),
				strings.Join(ch.Imports, ", "),
			})
		}
		formatter.PrintTable(data)
		return nil
	},
}

var manifestModulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Show the client component module map",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := outputDir()
		if err != nil {
			return err
		}
		m, err := manifest.ReadManifest[manifest.ModuleMap](dir, manifest.ModuleMapFile)
		if err != nil {
			return err
		}
		if formatter.Format != output.FormatTable {
			return formatter.Print(m)
		}

		keys := make([]string, 0, len(*m))
		for key := range *m {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		data := output.TableData{Headers: []string{"COMPONENT", "EXPORT", "ID", "CHUNKS"}}
		for _, key := range keys {
			entry := (*m)[key]
			data.Rows = append(data.Rows, []string{key, entry.Name, entry.ID, strings.Join(entry.Chunks, ", ")})
		}
		formatter.PrintTable(data)
		return nil
	},
}

var manifestRSCCmd = &cobra.Command{
	Use:   "rsc",
	Short: "Show the RSC chunk manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := outputDir()
		if err != nil {
			return err
		}
		m, err := manifest.ReadManifest[manifest.RSCChunkManifest](dir, manifest.RSCManifestFile)
		if err != nil {
			return err
		}
		if formatter.Format != output.FormatTable {
			return formatter.Print(m)
		}

		formatter.PrintKeyValue("Version", m.Version)
		formatter.PrintKeyValue("Build ID", m.BuildID)
		formatter.PrintInfo("")

		keys := make([]string, 0, len(m.Chunks))
		for key := range m.Chunks {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		data := output.TableData{Headers: []string{"COMPONENT", "MAIN", "DEPS", "EXPORT", "SIZE"}}
		for _, key := range keys {
			ch := m.Chunks[key]
			data.Rows = append(data.Rows, []string{
				key,
				ch.Main,
				strings.Join(ch.Deps, ", "),
				ch.ExportName,
				humanize.IBytes(uint64(ch.Size)), //nolint:gosec // sizes are never negative
			})
		}
		formatter.PrintTable(data)
		return nil
	},
}

func init() {
	manifestCmd.PersistentFlags().StringVar(&manifestDir, "dir", "", "build output directory (default from config)")
	manifestCmd.AddCommand(manifestChunksCmd)
	manifestCmd.AddCommand(manifestModulesCmd)
	manifestCmd.AddCommand(manifestRSCCmd)
}

// outputDir returns --dir or the configured output directory
func outputDir() (string, error) {
	if manifestDir != "" {
		return manifestDir, nil
	}
	c, err := loadConfig()
	if err != nil {
		return "", err
	}
	if c.Bundle.OutputDir == "" {
		return "", fmt.Errorf("no output directory configured")
	}
	if filepath.IsAbs(c.Bundle.OutputDir) || c.Bundle.Root == "" {
		return c.Bundle.OutputDir, nil
	}
	return filepath.Join(c.Bundle.Root, c.Bundle.OutputDir), nil
}
