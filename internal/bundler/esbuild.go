package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// esbuildTargets maps language targets onto esbuild's enum
var esbuildTargets = map[string]api.Target{
	"esnext": api.ESNext,
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
}

var esbuildEngines = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"deno":    api.EngineDeno,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// EsbuildBackend runs esbuild in-process and reads its metafile for the
// output graph
type EsbuildBackend struct{}

// NewEsbuildBackend creates the esbuild backend
func NewEsbuildBackend() *EsbuildBackend {
	return &EsbuildBackend{}
}

// Name returns the backend name
func (e *EsbuildBackend) Name() string {
	return BackendEsbuild
}

// esbuildMetafile is the subset of esbuild's metafile JSON we read
type esbuildMetafile struct {
	Inputs map[string]struct {
		Bytes   int `json:"bytes"`
		Imports []struct {
			Path     string `json:"path"`
			Kind     string `json:"kind"`
			External bool   `json:"external"`
		} `json:"imports"`
	} `json:"inputs"`
	Outputs map[string]struct {
		Imports []struct {
			Path     string `json:"path"`
			Kind     string `json:"kind"`
			External bool   `json:"external"`
		} `json:"imports"`
		Exports    []string `json:"exports"`
		EntryPoint string   `json:"entryPoint"`
	} `json:"outputs"`
}

// Build bundles cfg with esbuild. Outputs are kept in memory.
func (e *EsbuildBackend) Build(ctx context.Context, cfg Config, outDir string) (*BackendOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, warnings := e.buildOptions(cfg, outDir)

	log.Debug().
		Str("outdir", outDir).
		Int("entrypoints", len(opts.EntryPointsAdvanced)).
		Bool("splitting", opts.Splitting).
		Msg("Running esbuild")

	result := api.Build(opts)

	out := &BackendOutput{Warnings: warnings}
	for _, m := range result.Warnings {
		out.Warnings = append(out.Warnings, esbuildMessage(m, SeverityWarning))
	}
	if len(result.Errors) > 0 {
		for _, m := range result.Errors {
			out.Errors = append(out.Errors, esbuildMessage(m, SeverityError))
		}
		return out, nil
	}

	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(outDir, f.Path)
		if err != nil {
			return nil, fmt.Errorf("esbuild output %s outside of output directory: %w", f.Path, err)
		}
		out.Files = append(out.Files, File{Name: filepath.ToSlash(rel), Code: f.Contents})
	}

	chunks, inputs, err := e.parseMetafile(cfg, outDir, result.Metafile)
	if err != nil {
		return nil, err
	}
	out.Chunks = chunks
	out.Inputs = inputs

	entries := map[string]bool{}
	for _, c := range chunks {
		if c.IsEntry {
			entries[c.FileName] = true
		}
	}
	for i := range out.Files {
		out.Files[i].IsEntry = entries[out.Files[i].Name]
	}
	return out, nil
}

func (e *EsbuildBackend) buildOptions(cfg Config, outDir string) (api.BuildOptions, []Message) {
	var warnings []Message

	opts := api.BuildOptions{
		Bundle:            true,
		Write:             false,
		Metafile:          true,
		Outdir:            outDir,
		AbsWorkingDir:     cfg.Root,
		ChunkNames:        ChunkPrefix + "[hash]",
		Splitting:         cfg.CodeSplitting && cfg.Format == FormatESM,
		MinifyWhitespace:  cfg.Minify,
		MinifyIdentifiers: cfg.Minify,
		MinifySyntax:      cfg.Minify,
		Define:            cfg.Define,
		External:          cfg.External,
		Target:            api.ESNext,
		LogLevel:          api.LogLevelSilent,
	}

	for _, name := range sortedEntryNames(cfg) {
		p := cfg.Entrypoints[name]
		opts.EntryPointsAdvanced = append(opts.EntryPointsAdvanced, api.EntryPoint{
			InputPath:  absPath(cfg.Root, p),
			OutputPath: strings.TrimSuffix(ProxyPath(cfg.Root, absPath(cfg.Root, p)), ".js"),
		})
	}

	switch cfg.Format {
	case FormatCJS:
		opts.Format = api.FormatCommonJS
	case FormatIIFE:
		opts.Format = api.FormatIIFE
	default:
		opts.Format = api.FormatESModule
	}

	switch cfg.Platform {
	case PlatformNode:
		opts.Platform = api.PlatformNode
	case PlatformNeutral:
		opts.Platform = api.PlatformNeutral
	default:
		opts.Platform = api.PlatformBrowser
	}

	switch cfg.Sourcemap {
	case SourcemapInline:
		opts.Sourcemap = api.SourceMapInline
	case SourcemapExternal:
		opts.Sourcemap = api.SourceMapLinked
	default:
		opts.Sourcemap = api.SourceMapNone
	}

	for _, t := range cfg.Target {
		t = strings.ToLower(strings.TrimSpace(t))
		if target, ok := esbuildTargets[t]; ok {
			opts.Target = target
			continue
		}
		name := strings.TrimRight(t, "0123456789.")
		engine, ok := esbuildEngines[name]
		if !ok || name == t {
			warnings = append(warnings, Message{Text: fmt.Sprintf("unsupported target %q ignored", t), Severity: SeverityWarning})
			continue
		}
		opts.Engines = append(opts.Engines, api.Engine{Name: engine, Version: t[len(name):]})
	}

	for _, p := range cfg.Plugins {
		switch p {
		case "deno-external":
			opts.Plugins = append(opts.Plugins, denoExternalPlugin())
		default:
			warnings = append(warnings, Message{Text: fmt.Sprintf("esbuild backend does not know plugin %q", p), Severity: SeverityWarning})
		}
	}

	return opts, warnings
}

// parseMetafile converts esbuild's metafile into the native output graph.
// esbuild keys everything relative to the working directory.
func (e *EsbuildBackend) parseMetafile(cfg Config, outDir, raw string) ([]ChunkInfo, *Metafile, error) {
	var meta esbuildMetafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, nil, fmt.Errorf("failed to parse esbuild metafile: %w", err)
	}

	lookup := entryLookup(cfg)
	rel := func(p string) string {
		r, err := filepath.Rel(outDir, absPath(cfg.Root, p))
		if err != nil {
			return p
		}
		return filepath.ToSlash(r)
	}

	inputs := NewMetafile()
	for name, in := range meta.Inputs {
		mi := MetafileInput{Bytes: in.Bytes}
		for _, imp := range in.Imports {
			mi.Imports = append(mi.Imports, MetafileImport{Path: imp.Path, Kind: normalizeImportKind(imp.Kind), External: imp.External})
		}
		inputs.Inputs[name] = mi
	}

	var chunks []ChunkInfo
	for name, o := range meta.Outputs {
		if strings.HasSuffix(name, ".map") {
			continue
		}
		c := ChunkInfo{FileName: rel(name)}
		if o.EntryPoint != "" {
			c.IsEntry = true
			abs := absPath(cfg.Root, o.EntryPoint)
			c.FacadeModuleID = abs
			if original, ok := lookup[abs]; ok {
				c.FacadeModuleID = original
			}
		}
		for _, imp := range o.Imports {
			if imp.External {
				continue
			}
			switch normalizeImportKind(imp.Kind) {
			case ImportStatement:
				c.Imports = append(c.Imports, rel(imp.Path))
			case DynamicImport:
				c.DynamicImports = append(c.DynamicImports, rel(imp.Path))
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, inputs, nil
}

func esbuildMessage(m api.Message, severity Severity) Message {
	msg := Message{Text: m.Text, Severity: severity}
	if m.Location != nil {
		msg.File = m.Location.File
		msg.Line = m.Location.Line
		msg.Column = m.Location.Column
	}
	return msg
}

// denoExternalPlugin marks Deno-specific imports as external
func denoExternalPlugin() api.Plugin {
	external := func(args api.OnResolveArgs) (api.OnResolveResult, error) {
		return api.OnResolveResult{Path: args.Path, External: true}, nil
	}
	return api.Plugin{
		Name: "deno-external",
		Setup: func(build api.PluginBuild) {
			for _, filter := range []string{`^npm:`, `^jsr:`, `^node:`, `^https?://`} {
				build.OnResolve(api.OnResolveOptions{Filter: filter}, external)
			}
		},
	}
}
