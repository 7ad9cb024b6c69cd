package bundler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// RawFile is a candidate output file found on disk
type RawFile struct {
	// Name is relative to the scanned directory, slash separated
	Name    string
	AbsPath string
}

// File is an output file after quirk normalization
type File struct {
	Name string
	Code []byte
	// IsEntry is set when the backend reported the file as an entry
	IsEntry bool
	// EntryReported means IsEntry comes from the backend's own output graph
	// and is not inferred from the file name
	EntryReported bool
}

// OutputLayout describes where a backend left its files
type OutputLayout struct {
	// Root is the directory the backend was told to write into
	Root string
	// Nested is Root/<nested dir> when that directory exists
	Nested string
}

// PrimaryDir is the directory outputs are read from first
func (l OutputLayout) PrimaryDir() string {
	if l.Nested != "" {
		return l.Nested
	}
	return l.Root
}

// DetectLayout checks dir for a nested output directory
func DetectLayout(dir, nestedName string) OutputLayout {
	if nestedName == "" {
		nestedName = DefaultNestedDir
	}
	layout := OutputLayout{Root: dir}
	nested := filepath.Join(dir, nestedName)
	if info, err := os.Stat(nested); err == nil && info.IsDir() {
		layout.Nested = nested
	}
	return layout
}

// ReadOutputDir lists the output files a backend produced. When a nested
// directory exists it is scanned first, then orphaned chunk files left in the
// top-level directory are added unless the nested scan already has them.
func ReadOutputDir(layout OutputLayout) ([]RawFile, error) {
	files, err := walkFiles(layout.PrimaryDir())
	if err != nil {
		return nil, err
	}
	if layout.Nested == "" {
		return files, nil
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[filepath.Base(f.Name)] = true
	}

	entries, err := os.ReadDir(layout.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), ChunkPrefix) || seen[e.Name()] {
			continue
		}
		log.Debug().Str("file", e.Name()).Msg("Picked up orphaned chunk from output root")
		files = append(files, RawFile{Name: e.Name(), AbsPath: filepath.Join(layout.Root, e.Name())})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// ReadFiles loads and normalizes raw files. Names are canonicalized and code
// is rewritten before anything downstream hashes it.
func ReadFiles(raw []RawFile, basePath string) ([]File, error) {
	files := make([]File, 0, len(raw))
	for _, rf := range raw {
		code, err := os.ReadFile(rf.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read output %s: %w", rf.Name, err)
		}
		files = append(files, NormalizeFile(File{Name: rf.Name, Code: code}, basePath))
	}
	return files, nil
}

// NormalizeFile applies name and content normalization to one file
func NormalizeFile(f File, basePath string) File {
	f.Name = NormalizeName(f.Name)
	if !isSourcemap(f.Name) {
		f.Code = NormalizeCodeAt(f.Name, f.Code, basePath)
	}
	return f
}

func walkFiles(dir string) ([]RawFile, error) {
	var files []RawFile
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, RawFile{Name: filepath.ToSlash(rel), AbsPath: p})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan output directory %s: %w", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
