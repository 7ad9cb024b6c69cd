package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/eser/stack-sub001/internal/bundler"
)

// SnapshotFile is the name of the persisted build snapshot
const SnapshotFile = "snapshot.json"

// Snapshot records which outputs a build produced and what each of them
// imports
type Snapshot struct {
	BuildID string              `json:"build_id"`
	Files   map[string][]string `json:"files"`
}

// LoadedSnapshot is a snapshot read back from disk
type LoadedSnapshot struct {
	Snapshot
	Dir string `json:"-"`
}

// NewSnapshot derives the snapshot of result
func NewSnapshot(result *bundler.Result) *Snapshot {
	s := &Snapshot{
		BuildID: result.BuildID,
		Files:   make(map[string][]string, len(result.Outputs)),
	}
	for _, name := range result.OutputNames() {
		deps := result.Metafile.LocalImports(name)
		if deps == nil {
			deps = []string{}
		}
		s.Files[name] = deps
	}
	return s
}

// WriteSnapshot writes snapshot.json for result into dir
func WriteSnapshot(dir string, result *bundler.Result) error {
	data, err := json.MarshalIndent(NewSnapshot(result), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SnapshotFile), data, 0644); err != nil { //nolint:gosec // snapshot is published with the build
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a previously written snapshot. It reports false, with
// no error, when dir or the snapshot file does not exist. The caller is
// expected to adopt the returned build id for anything derived from the
// loaded build.
func LoadSnapshot(dir string) (*LoadedSnapshot, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, SnapshotFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("dir", dir).Msg("No snapshot found")
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if s.Files == nil {
		s.Files = map[string][]string{}
	}
	return &LoadedSnapshot{Snapshot: s, Dir: dir}, true, nil
}

// FileNames returns the snapshot's output names in sorted order
func (s *Snapshot) FileNames() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
