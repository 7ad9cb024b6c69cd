// Package bundler normalizes the output of interchangeable bundling engines
// into a single backend-agnostic build result.
package bundler

import (
	"sort"
	"strconv"
	"time"
)

// Format is the module format of emitted code
type Format string

const (
	FormatESM  Format = "esm"
	FormatCJS  Format = "cjs"
	FormatIIFE Format = "iife"
)

// Platform is the runtime the bundle targets
type Platform string

const (
	PlatformBrowser Platform = "browser"
	PlatformNode    Platform = "node"
	PlatformNeutral Platform = "neutral"
)

// SourcemapMode controls sourcemap emission
type SourcemapMode string

const (
	SourcemapOff      SourcemapMode = "off"
	SourcemapInline   SourcemapMode = "inline"
	SourcemapExternal SourcemapMode = "external"
)

// Severity classifies a build diagnostic
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// Config describes a single build invocation. It is not modified by the
// bundler once a build starts.
type Config struct {
	// Backend selects the engine ("esbuild", "deno", "rolldown")
	Backend string `json:"backend"`
	// Entrypoints maps entry names to source paths
	Entrypoints map[string]string `json:"entrypoints"`
	// Root is the project root entrypoints are relative to (defaults to the working directory)
	Root string `json:"root,omitempty"`
	// OutputDir receives the normalized outputs
	OutputDir string        `json:"output_dir"`
	Format    Format        `json:"format"`
	Platform  Platform      `json:"platform"`
	Sourcemap SourcemapMode `json:"sourcemap"`

	CodeSplitting bool `json:"code_splitting"`
	Minify        bool `json:"minify"`

	// Target lists language / engine targets, e.g. ["es2022", "chrome120"]
	Target   []string          `json:"target,omitempty"`
	Define   map[string]string `json:"define,omitempty"`
	External []string          `json:"external,omitempty"`
	// Plugins are backend-specific plugin specifiers
	Plugins []string `json:"plugins,omitempty"`

	// BasePath is prefixed to runtime endpoint URLs embedded in the output
	BasePath string `json:"base_path,omitempty"`
	// BuildID identifies this build; see the buildid package
	BuildID string `json:"build_id,omitempty"`
	// NestedDir is the subdirectory some backends write into (default "dist")
	NestedDir string `json:"nested_dir,omitempty"`
}

// Output is one physical output file
type Output struct {
	// Path is relative to the output directory and unique within a Result
	Path    string `json:"path"`
	Code    []byte `json:"-"`
	Map     []byte `json:"-"`
	Size    int64  `json:"size"`
	Hash    string `json:"hash"`
	IsEntry bool   `json:"is_entry"`
}

// Message is a build diagnostic reported by a backend or by orchestration
type Message struct {
	Text     string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Severity Severity `json:"severity"`
}

func (m Message) Error() string {
	if m.File == "" {
		return m.Text
	}
	if m.Line == 0 {
		return m.File + ": " + m.Text
	}
	return m.File + ":" + strconv.Itoa(m.Line) + ":" + strconv.Itoa(m.Column) + ": " + m.Text
}

// Result is the backend-agnostic outcome of one build
type Result struct {
	Success  bool               `json:"success"`
	Outputs  map[string]*Output `json:"outputs"`
	Errors   []Message          `json:"errors,omitempty"`
	Warnings []Message          `json:"warnings,omitempty"`
	Metafile *Metafile          `json:"metafile,omitempty"`

	// EntrypointManifest maps an original entrypoint path to
	// [mainChunk, ...dependencyChunks]
	EntrypointManifest map[string][]string `json:"entrypoint_manifest,omitempty"`
	// Entrypoint is the canonical entry filename when one was produced
	Entrypoint string `json:"entrypoint,omitempty"`
	TotalSize  int64  `json:"total_size"`

	BuildID  string        `json:"build_id,omitempty"`
	Backend  string        `json:"backend,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OutputNames returns output paths in sorted order
func (r *Result) OutputNames() []string {
	names := make([]string, 0, len(r.Outputs))
	for name := range r.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrorResult builds a failed result carrying the given diagnostics
func ErrorResult(msgs ...Message) *Result {
	return &Result{
		Success: false,
		Outputs: map[string]*Output{},
		Errors:  msgs,
	}
}

// FatalResult wraps an unexpected orchestration error
func FatalResult(err error) *Result {
	return ErrorResult(Message{Text: err.Error(), Severity: SeverityFatal})
}
