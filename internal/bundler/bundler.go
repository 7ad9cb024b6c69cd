package bundler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "stack-bundler"

// BuildRecorder receives one observation per finished build
type BuildRecorder interface {
	ObserveBuild(backend string, success bool, duration time.Duration, outputs int, bytes int64)
}

// Bundler drives one backend for a fixed configuration. It keeps no state
// between builds.
type Bundler struct {
	cfg      Config
	backend  Backend
	recorder BuildRecorder
	tempRoot string
}

// Option configures a Bundler
type Option func(*Bundler)

// WithBackend overrides the backend selected by Config.Backend
func WithBackend(b Backend) Option {
	return func(bu *Bundler) {
		bu.backend = b
	}
}

// WithRecorder reports build observations, e.g. to metrics
func WithRecorder(r BuildRecorder) Option {
	return func(bu *Bundler) {
		bu.recorder = r
	}
}

// WithTempRoot sets where per-build temporary directories are created
func WithTempRoot(dir string) Option {
	return func(bu *Bundler) {
		bu.tempRoot = dir
	}
}

// New validates cfg and selects its backend. An unknown backend name is a
// programming error and is reported here rather than from Bundle.
func New(cfg Config, opts ...Option) (*Bundler, error) {
	b := &Bundler{}
	for _, opt := range opts {
		opt(b)
	}

	if b.backend == nil {
		backend, err := NewBackend(cfg.Backend)
		if err != nil {
			return nil, err
		}
		b.backend = backend
	}

	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}
	cfg.Backend = b.backend.Name()
	b.cfg = cfg
	return b, nil
}

// Config returns the effective configuration
func (b *Bundler) Config() Config {
	return b.cfg
}

func withDefaults(cfg Config) (Config, error) {
	if len(cfg.Entrypoints) == 0 {
		return cfg, errors.New("at least one entrypoint is required")
	}
	if cfg.OutputDir == "" {
		return cfg, errors.New("output directory is required")
	}
	if cfg.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return cfg, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cfg.Root = wd
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return cfg, fmt.Errorf("failed to resolve root: %w", err)
	}
	cfg.Root = root
	if !filepath.IsAbs(cfg.OutputDir) {
		cfg.OutputDir = filepath.Join(cfg.Root, cfg.OutputDir)
	}

	switch cfg.Format {
	case "":
		cfg.Format = FormatESM
	case FormatESM, FormatCJS, FormatIIFE:
	default:
		return cfg, fmt.Errorf("invalid format %q (valid: esm, cjs, iife)", cfg.Format)
	}
	switch cfg.Platform {
	case "":
		cfg.Platform = PlatformBrowser
	case PlatformBrowser, PlatformNode, PlatformNeutral:
	default:
		return cfg, fmt.Errorf("invalid platform %q (valid: browser, node, neutral)", cfg.Platform)
	}
	switch cfg.Sourcemap {
	case "":
		cfg.Sourcemap = SourcemapOff
	case SourcemapOff, SourcemapInline, SourcemapExternal:
	default:
		return cfg, fmt.Errorf("invalid sourcemap mode %q (valid: off, inline, external)", cfg.Sourcemap)
	}
	if cfg.NestedDir == "" {
		cfg.NestedDir = DefaultNestedDir
	}
	return cfg, nil
}

// Bundle runs one build. It does not return an error: backend failures and
// unexpected orchestration errors are both reported through the result.
func (b *Bundler) Bundle(ctx context.Context) *Result {
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "bundler.bundle",
		trace.WithAttributes(
			attribute.String("bundler.backend", b.backend.Name()),
			attribute.String("bundler.build_id", b.cfg.BuildID),
			attribute.Int("bundler.entrypoints", len(b.cfg.Entrypoints)),
		),
	)
	defer span.End()

	result := b.build(ctx)
	result.BuildID = b.cfg.BuildID
	result.Backend = b.backend.Name()
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Bool("bundler.success", result.Success),
		attribute.Int("bundler.outputs", len(result.Outputs)),
		attribute.Int64("bundler.total_size", result.TotalSize),
	)
	if !result.Success && len(result.Errors) > 0 {
		span.SetStatus(codes.Error, result.Errors[0].Text)
	}

	if b.recorder != nil {
		b.recorder.ObserveBuild(result.Backend, result.Success, result.Duration, len(result.Outputs), result.TotalSize)
	}

	event := log.Info()
	if !result.Success {
		event = log.Warn().Int("errors", len(result.Errors))
	}
	event.
		Str("backend", result.Backend).
		Str("build_id", result.BuildID).
		Int("outputs", len(result.Outputs)).
		Int64("total_size", result.TotalSize).
		Dur("duration", result.Duration).
		Msg("Bundle finished")

	return result
}

func (b *Bundler) build(ctx context.Context) *Result {
	tmpDir, err := os.MkdirTemp(b.tempRoot, "stack-bundle-*")
	if err != nil {
		return FatalResult(fmt.Errorf("failed to create temp directory: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.Debug().Err(err).Str("dir", tmpDir).Msg("Failed to remove temp directory")
		}
	}()

	outDir := filepath.Join(tmpDir, "out")
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return FatalResult(fmt.Errorf("failed to create backend output directory: %w", err))
	}

	raw, err := b.runBackend(ctx, outDir)
	if err != nil {
		return FatalResult(err)
	}
	if len(raw.Errors) > 0 {
		for i := range raw.Errors {
			if raw.Errors[i].Severity == "" {
				raw.Errors[i].Severity = SeverityError
			}
		}
		result := ErrorResult(raw.Errors...)
		result.Warnings = raw.Warnings
		return result
	}

	result, err := b.process(ctx, raw, outDir)
	if err != nil {
		return FatalResult(err)
	}
	result.Warnings = raw.Warnings

	if err := WriteOutputs(b.cfg.OutputDir, result); err != nil {
		return FatalResult(err)
	}
	return result
}

// runBackend converts a backend panic into an error so a crashing engine
// still goes through temp directory cleanup and yields a result
func (b *Bundler) runBackend(ctx context.Context, outDir string) (out *BackendOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s backend crashed: %v", b.backend.Name(), r)
		}
	}()
	out, err = b.backend.Build(ctx, b.cfg, outDir)
	if err == nil && out == nil {
		err = fmt.Errorf("%s backend returned no output", b.backend.Name())
	}
	return out, err
}

// process runs the normalization pipeline over raw backend output
func (b *Bundler) process(ctx context.Context, raw *BackendOutput, outDir string) (*Result, error) {
	layout := DetectLayout(outDir, b.cfg.NestedDir)

	var files []File
	if raw.Files != nil {
		files = make([]File, 0, len(raw.Files))
		for _, f := range raw.Files {
			files = append(files, NormalizeFile(f, b.cfg.BasePath))
		}
	} else {
		rawFiles, err := ReadOutputDir(layout)
		if err != nil {
			return nil, err
		}
		if files, err = ReadFiles(rawFiles, b.cfg.BasePath); err != nil {
			return nil, err
		}
	}

	var manifest map[string][]string
	if raw.Chunks != nil {
		manifest = DirectEntrypointManifest(raw.Chunks)
		entries := map[string]bool{}
		for _, c := range raw.Chunks {
			if c.IsEntry {
				entries[NormalizeName(c.FileName)] = true
			}
		}
		for i := range files {
			files[i].IsEntry = files[i].IsEntry || entries[files[i].Name]
			files[i].EntryReported = true
		}
	} else {
		manifest = InferEntrypointManifest(b.cfg.Entrypoints, b.cfg.Root, layout)
	}

	result, err := Assemble(ctx, files, manifest)
	if err != nil {
		return nil, err
	}
	mergeMetafileInputs(result.Metafile, raw.Inputs)
	return result, nil
}

// WriteOutputs writes every output (and its sourcemap) below dir
func WriteOutputs(dir string, result *Result) error {
	for _, name := range result.OutputNames() {
		o := result.Outputs[name]
		target := filepath.Join(dir, filepath.FromSlash(o.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", o.Path, err)
		}
		if err := os.WriteFile(target, o.Code, 0644); err != nil { //nolint:gosec // build outputs are served publicly
			return fmt.Errorf("failed to write output %s: %w", o.Path, err)
		}
		if o.Map != nil {
			if err := os.WriteFile(target+".map", o.Map, 0644); err != nil { //nolint:gosec // build outputs are served publicly
				return fmt.Errorf("failed to write sourcemap for %s: %w", o.Path, err)
			}
		}
	}
	return nil
}
