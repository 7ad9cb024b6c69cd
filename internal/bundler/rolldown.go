package bundler

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed scripts/rolldown_build.mjs
var rolldownScript []byte

// RolldownBackend runs rolldown through deno. Rolldown reports a facade
// module and imports per chunk, so no proxy parsing is needed.
type RolldownBackend struct {
	denoPath string
	timeout  time.Duration
}

// NewRolldownBackend creates the rolldown backend
func NewRolldownBackend(denoPath string) *RolldownBackend {
	return &RolldownBackend{denoPath: denoPath, timeout: DefaultBackendTimeout}
}

// Name returns the backend name
func (r *RolldownBackend) Name() string {
	return BackendRolldown
}

type rolldownOptions struct {
	Input         map[string]string `json:"input"`
	Cwd           string            `json:"cwd"`
	Dir           string            `json:"dir"`
	Format        string            `json:"format"`
	Platform      string            `json:"platform"`
	Sourcemap     any               `json:"sourcemap"`
	Minify        bool              `json:"minify"`
	CodeSplitting bool              `json:"codeSplitting"`
	External      []string          `json:"external,omitempty"`
	Define        map[string]string `json:"define,omitempty"`
	Target        string            `json:"target,omitempty"`
}

type rolldownMessage struct {
	Message string `json:"message"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

type rolldownReport struct {
	Chunks   []ChunkInfo       `json:"chunks"`
	Errors   []rolldownMessage `json:"errors"`
	Warnings []rolldownMessage `json:"warnings"`
}

// Build writes the driver script next to outDir, runs it and decodes its report
func (r *RolldownBackend) Build(ctx context.Context, cfg Config, outDir string) (*BackendOutput, error) {
	denoPath, err := findDeno(r.denoPath)
	if err != nil {
		return nil, err
	}

	workDir := filepath.Dir(outDir)
	scriptPath := filepath.Join(workDir, "rolldown_build.mjs")
	if err := os.WriteFile(scriptPath, rolldownScript, 0600); err != nil {
		return nil, fmt.Errorf("failed to write rolldown driver: %w", err)
	}

	optsData, err := json.Marshal(r.options(cfg, outDir))
	if err != nil {
		return nil, fmt.Errorf("failed to encode rolldown options: %w", err)
	}
	optsPath := filepath.Join(workDir, "rolldown_options.json")
	if err := os.WriteFile(optsPath, optsData, 0600); err != nil {
		return nil, fmt.Errorf("failed to write rolldown options: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{"run", "--allow-all", "--quiet", scriptPath, optsPath}
	log.Debug().Str("command", denoPath).Strs("args", args).Msg("Running rolldown")

	cmd := exec.CommandContext(runCtx, denoPath, args...) //nolint:gosec // denoPath is resolved by findDeno
	cmd.Dir = cfg.Root
	cmd.Env = denoEnv()

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("rolldown timed out after %s", r.timeout)
	}

	report, decodeErr := decodeRolldownReport(stdout.String())
	if decodeErr != nil {
		if runErr != nil {
			if _, ok := runErr.(*exec.ExitError); !ok {
				return nil, fmt.Errorf("failed to run rolldown: %w", runErr)
			}
			return &BackendOutput{Errors: parseDenoDiagnostics(stderr.String())}, nil
		}
		return nil, decodeErr
	}

	return r.toOutput(cfg, report), nil
}

func (r *RolldownBackend) options(cfg Config, outDir string) rolldownOptions {
	opts := rolldownOptions{
		Input:         map[string]string{},
		Cwd:           cfg.Root,
		Dir:           outDir,
		Format:        string(cfg.Format),
		Platform:      string(cfg.Platform),
		Minify:        cfg.Minify,
		CodeSplitting: cfg.CodeSplitting,
		External:      cfg.External,
		Define:        cfg.Define,
	}
	if opts.Format == "" {
		opts.Format = string(FormatESM)
	}
	if opts.Platform == "" {
		opts.Platform = string(PlatformBrowser)
	}
	switch cfg.Sourcemap {
	case SourcemapInline:
		opts.Sourcemap = "inline"
	case SourcemapExternal:
		opts.Sourcemap = true
	default:
		opts.Sourcemap = false
	}
	if len(cfg.Target) > 0 {
		opts.Target = strings.Join(cfg.Target, ",")
	}
	for name, p := range cfg.Entrypoints {
		opts.Input[name] = absPath(cfg.Root, p)
	}
	return opts
}

// decodeRolldownReport reads the last JSON line of the driver's stdout, so
// stray logging from plugins does not break decoding
func decodeRolldownReport(stdout string) (*rolldownReport, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var report rolldownReport
		if err := json.Unmarshal([]byte(line), &report); err != nil {
			return nil, fmt.Errorf("failed to decode rolldown report: %w", err)
		}
		return &report, nil
	}
	return nil, fmt.Errorf("rolldown produced no report")
}

func (r *RolldownBackend) toOutput(cfg Config, report *rolldownReport) *BackendOutput {
	out := &BackendOutput{}
	for _, w := range report.Warnings {
		out.Warnings = append(out.Warnings, w.toMessage(SeverityWarning))
	}
	if len(report.Errors) > 0 {
		for _, e := range report.Errors {
			out.Errors = append(out.Errors, e.toMessage(SeverityError))
		}
		return out
	}

	out.Chunks = make([]ChunkInfo, 0, len(report.Chunks))
	lookup := entryLookup(cfg)
	for _, c := range report.Chunks {
		if c.FacadeModuleID != "" {
			if original, ok := lookup[absPath(cfg.Root, c.FacadeModuleID)]; ok {
				c.FacadeModuleID = original
			}
		}
		out.Chunks = append(out.Chunks, c)
	}
	return out
}

func (m rolldownMessage) toMessage(severity Severity) Message {
	return Message{Text: m.Message, File: m.File, Line: m.Line, Column: m.Column, Severity: severity}
}
