package cmd

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eser/stack-sub001/cli/output"
	"github.com/eser/stack-sub001/internal/manifest"
	"github.com/eser/stack-sub001/internal/storage"
)

var snapshotRemote string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Show the snapshot of the last build",
	Long: `Load snapshot.json from the output directory and list every output with
the local files it imports. A missing snapshot is reported, not treated as an
error.

With --remote <build id> the snapshot is read from artifact storage instead,
from <storage.prefix>/<build id>/snapshot.json.`,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringVar(&manifestDir, "dir", "", "build output directory (default from config)")
	snapshotCmd.Flags().StringVar(&snapshotRemote, "remote", "", "read the snapshot of this published build id")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	if snapshotRemote != "" {
		return runRemoteSnapshot(cmd)
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
		formatter.PrintWarning(fmt.Sprintf("no %s in %s", manifest.SnapshotFile, dir))
		return nil
	}
	return printSnapshot(&snap.Snapshot)
}

func runRemoteSnapshot(cmd *cobra.Command) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	provider, err := storage.NewProvider(&c.Storage)
	if err != nil {
		return err
	}

	prefix := path.Join(strings.Trim(c.Storage.Prefix, "/"), snapshotRemote)
	snap, err := storage.FetchSnapshot(cmd.Context(), provider, storage.Bucket(&c.Storage), prefix)
	if errors.Is(err, storage.ErrNotFound) {
		formatter.PrintWarning(fmt.Sprintf("build %s has no published %s", snapshotRemote, manifest.SnapshotFile))
		return nil
	}
	if err != nil {
		return err
	}
	return printSnapshot(snap)
}

func printSnapshot(snap *manifest.Snapshot) error {
	if formatter.Format != output.FormatTable {
		return formatter.Print(snap)
	}

	formatter.PrintKeyValue("Build ID", snap.BuildID)
	formatter.PrintInfo("")

	data := output.TableData{Headers: []string{"FILE", "IMPORTS"}}
	for _, name := range snap.FileNames() {
		data.Rows = append(data.Rows, []string{name, strings.Join(snap.Files[name], ", ")})
	}
	formatter.PrintTable(data)
	return nil
}
