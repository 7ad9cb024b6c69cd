package bundler

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultBackendTimeout bounds one subprocess backend run
const DefaultBackendTimeout = 2 * time.Minute

var (
	denoErrorLineRegex = regexp.MustCompile(`(?m)^\s*(?:error|Error)(?:\[[^\]]*\])?:\s*(.+)$`)
	denoLocationRegex  = regexp.MustCompile(`(?m)^\s*at\s+(?:file://)?(\S+?):(\d+):(\d+)\s*$`)
)

// DenoBackend shells out to `deno bundle`. Deno does not report which
// output belongs to which entrypoint, so the manifest is inferred from the
// proxy modules it writes.
type DenoBackend struct {
	denoPath string
	timeout  time.Duration
}

// NewDenoBackend creates the deno backend. An empty denoPath is resolved
// lazily from PATH and common install locations.
func NewDenoBackend(denoPath string) *DenoBackend {
	return &DenoBackend{denoPath: denoPath, timeout: DefaultBackendTimeout}
}

// Name returns the backend name
func (d *DenoBackend) Name() string {
	return BackendDeno
}

// Build runs deno bundle writing into outDir
func (d *DenoBackend) Build(ctx context.Context, cfg Config, outDir string) (*BackendOutput, error) {
	denoPath, err := findDeno(d.denoPath)
	if err != nil {
		return nil, err
	}

	args, warnings := d.args(cfg, outDir)

	bundleCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	log.Debug().
		Str("command", denoPath).
		Strs("args", args).
		Str("dir", cfg.Root).
		Msg("Running deno bundle")

	cmd := exec.CommandContext(bundleCtx, denoPath, args...) //nolint:gosec // denoPath is resolved by findDeno
	cmd.Dir = cfg.Root
	cmd.Env = denoEnv()

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if bundleCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("deno bundle timed out after %s", d.timeout)
	}

	out := &BackendOutput{Warnings: warnings}
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("failed to run deno bundle: %w", runErr)
		}
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		if errMsg == "" {
			errMsg = runErr.Error()
		}
		out.Errors = parseDenoDiagnostics(errMsg)
	}
	return out, nil
}

func (d *DenoBackend) args(cfg Config, outDir string) ([]string, []Message) {
	var warnings []Message

	platform := "browser"
	if cfg.Platform == PlatformNode || cfg.Platform == PlatformNeutral {
		platform = "deno"
	}
	format := string(cfg.Format)
	if format == "" {
		format = string(FormatESM)
	}

	args := []string{
		"bundle",
		"--quiet",
		"--outdir", outDir,
		"--format", format,
		"--platform", platform,
	}
	if cfg.CodeSplitting {
		args = append(args, "--code-splitting")
	}
	if cfg.Minify {
		args = append(args, "--minify")
	}
	switch cfg.Sourcemap {
	case SourcemapInline:
		args = append(args, "--sourcemap=inline")
	case SourcemapExternal:
		args = append(args, "--sourcemap=external")
	}
	for _, ext := range cfg.External {
		args = append(args, "--external", ext)
	}
	if len(cfg.Define) > 0 {
		warnings = append(warnings, Message{Text: "deno backend ignores define", Severity: SeverityWarning})
	}
	if len(cfg.Target) > 0 {
		warnings = append(warnings, Message{Text: "deno backend ignores target", Severity: SeverityWarning})
	}

	for _, name := range sortedEntryNames(cfg) {
		args = append(args, cfg.Entrypoints[name])
	}
	return args, warnings
}

// parseDenoDiagnostics turns deno's stderr into messages. Output that does
// not look like a diagnostic is reported as a single error.
func parseDenoDiagnostics(stderr string) []Message {
	stderr = stripANSI(stderr)

	var msgs []Message
	errLines := denoErrorLineRegex.FindAllStringSubmatchIndex(stderr, -1)
	for i, loc := range errLines {
		msg := Message{Text: strings.TrimSpace(stderr[loc[2]:loc[3]]), Severity: SeverityError}

		end := len(stderr)
		if i+1 < len(errLines) {
			end = errLines[i+1][0]
		}
		if m := denoLocationRegex.FindStringSubmatch(stderr[loc[1]:end]); m != nil {
			msg.File = m[1]
			msg.Line, _ = strconv.Atoi(m[2])
			msg.Column, _ = strconv.Atoi(m[3])
		}
		msgs = append(msgs, msg)
	}

	if len(msgs) == 0 {
		msgs = append(msgs, Message{Text: strings.TrimSpace(stderr), Severity: SeverityError})
	}
	return msgs
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
