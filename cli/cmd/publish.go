package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eser/stack-sub001/cli/output"
	"github.com/eser/stack-sub001/internal/manifest"
	"github.com/eser/stack-sub001/internal/observability"
	"github.com/eser/stack-sub001/internal/storage"
)

var (
	publishConcurrency int
	publishNoPrefix    bool
	publishForce       bool
	publishPruneKeep   int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the last build to artifact storage",
	Long: `Upload every file recorded in snapshot.json, together with sourcemaps and
manifests, to the configured storage provider. Files are stored under
<storage.prefix>/<build id>/ so that builds never overwrite each other.
Content-hashed chunks are uploaded with an immutable cache policy and are
not uploaded again when they already exist, unless --force is given.

With --prune N, only the N most recently published builds are kept below
<storage.prefix>/. The build just published is always kept.

Examples:
  bundler publish
  bundler publish --prune 5
  BUNDLER_STORAGE_PROVIDER=s3 bundler publish --concurrency 16`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&manifestDir, "dir", "", "build output directory (default from config)")
	publishCmd.Flags().IntVar(&publishConcurrency, "concurrency", 0, "parallel uploads (default GOMAXPROCS)")
	publishCmd.Flags().BoolVar(&publishNoPrefix, "no-build-prefix", false, "do not nest keys under the build id")
	publishCmd.Flags().BoolVar(&publishForce, "force", false, "upload immutable chunks even if they already exist")
	publishCmd.Flags().IntVar(&publishPruneKeep, "prune", 0, "keep only this many published builds (0 keeps all)")
}

func runPublish(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	if publishPruneKeep < 0 {
		return fmt.Errorf("--prune must not be negative")
	}
	if publishPruneKeep > 0 && publishNoPrefix {
		return fmt.Errorf("--prune needs build prefixes, it cannot be combined with --no-build-prefix")
	}
	dir, err := outputDir()
	if err != nil {
		return err
	}

	snap, found, err := manifest.LoadSnapshot(dir)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no %s in %s, run bundle first", manifest.SnapshotFile, dir)
	}

	artifacts, err := storage.ArtifactsFromSnapshot(snap)
	if err != nil {
		return err
	}
	for _, name := range []string{manifest.ChunkManifestFile, manifest.ModuleMapFile, manifest.RSCManifestFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		artifacts = append(artifacts, storage.Artifact{Key: name, Data: data, ContentType: "application/json"})
	}

	ctx := cmd.Context()
	tracer, stopTracing := startTracing(ctx, c)
	defer stopTracing()
	ctx, span := startCommandSpan(ctx, tracer, "publish")
	defer span.End()

	provider, err := storage.NewProvider(&c.Storage)
	if err != nil {
		return err
	}

	root := strings.Trim(c.Storage.Prefix, "/")
	prefix := root
	if !publishNoPrefix {
		prefix = path.Join(root, snap.BuildID)
	}

	bucket := storage.Bucket(&c.Storage)
	metrics := observability.NewMetrics()
	report, err := storage.Publish(ctx, provider, storage.PublishOptions{
		Bucket:       bucket,
		Prefix:       prefix,
		Concurrency:  publishConcurrency,
		SkipExisting: !publishForce,
		Recorder:     metrics,
	}, artifacts)
	if err != nil {
		return err
	}

	var pruned *storage.PruneReport
	if publishPruneKeep > 0 {
		pruned, err = storage.Prune(ctx, provider, storage.PruneOptions{
			Bucket:   bucket,
			Root:     root,
			Keep:     publishPruneKeep,
			Current:  snap.BuildID,
			Recorder: metrics,
		})
		if err != nil {
			return err
		}
	}

	if formatter.Format == output.FormatTable {
		formatter.PrintKeyValue("Provider", provider.Name())
		formatter.PrintKeyValue("Bucket", report.Bucket)
		formatter.PrintKeyValue("Prefix", report.Prefix)
		formatter.PrintKeyValue("Files", fmt.Sprint(len(report.Keys)))
		formatter.PrintKeyValue("Unchanged", fmt.Sprint(len(report.Skipped)))
		if pruned != nil {
			formatter.PrintKeyValue("Pruned", strings.Join(pruned.Removed, ", "))
		}
		formatter.PrintKeyValue("Elapsed", report.Elapsed)
		return nil
	}
	return formatter.Print(publishOutput{PublishReport: *report, Prune: pruned})
}

// publishOutput is the json/yaml form of a publish run
type publishOutput struct {
	storage.PublishReport `yaml:",inline"`
	Prune                 *storage.PruneReport `json:"prune,omitempty" yaml:"prune,omitempty"`
}
