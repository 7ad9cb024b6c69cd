package bundler

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DisplayResult prints a build result in a formatted way
func DisplayResult(w io.Writer, result *Result, showDetails bool) {
	status := "ok"
	if !result.Success {
		status = "failed"
	}
	_, _ = fmt.Fprintf(w, "\n=== Bundle (%s): %s ===\n", result.Backend, status)
	if result.BuildID != "" {
		_, _ = fmt.Fprintf(w, "Build ID: %s\n", result.BuildID)
	}
	_, _ = fmt.Fprintf(w, "Duration: %s\n", result.Duration.Round(time.Millisecond))

	if !result.Success {
		_, _ = fmt.Fprintln(w, "\nErrors:")
		for _, e := range result.Errors {
			_, _ = fmt.Fprintf(w, "  - %s\n", e.Error())
		}
		displayWarnings(w, result.Warnings)
		_, _ = fmt.Fprintln(w)
		return
	}

	_, _ = fmt.Fprintf(w, "Total size: %s\n", humanize.IBytes(uint64(result.TotalSize))) //nolint:gosec // sizes are never negative

	outputs := make([]*Output, 0, len(result.Outputs))
	for _, o := range result.Outputs {
		outputs = append(outputs, o)
	}
	// Largest first
	sort.Slice(outputs, func(i, j int) bool {
		if outputs[i].Size != outputs[j].Size {
			return outputs[i].Size > outputs[j].Size
		}
		return outputs[i].Path < outputs[j].Path
	})

	maxFiles := 10
	if showDetails {
		maxFiles = len(outputs)
	}

	maxPathLen := 0
	for i, o := range outputs {
		if i >= maxFiles {
			break
		}
		if l := len(truncatePath(o.Path, 50)); l > maxPathLen {
			maxPathLen = l
		}
	}

	_, _ = fmt.Fprintln(w, "\nOutputs:")
	for i, o := range outputs {
		if i >= maxFiles {
			_, _ = fmt.Fprintf(w, "  ... and %d more files\n", len(outputs)-maxFiles)
			break
		}
		displayPath := truncatePath(o.Path, 50)
		marker := " "
		if o.IsEntry {
			marker = "*"
		}
		share := 0.0
		if result.TotalSize > 0 {
			share = float64(o.Size) / float64(result.TotalSize) * 100
		}
		_, _ = fmt.Fprintf(w, "%s %s%s  %10s  %5.1f%%  %s\n",
			marker,
			displayPath,
			strings.Repeat(" ", maxPathLen-len(displayPath)),
			humanize.IBytes(uint64(o.Size)), //nolint:gosec // sizes are never negative
			share,
			o.Hash,
		)
	}

	if len(result.EntrypointManifest) > 0 {
		_, _ = fmt.Fprintln(w, "\nEntrypoints:")
		entries := make([]string, 0, len(result.EntrypointManifest))
		for e := range result.EntrypointManifest {
			entries = append(entries, e)
		}
		sort.Strings(entries)
		for _, e := range entries {
			_, _ = fmt.Fprintf(w, "  %s -> %s\n", e, strings.Join(result.EntrypointManifest[e], ", "))
		}
	}

	displayWarnings(w, result.Warnings)
	_, _ = fmt.Fprintln(w)
}

// DisplaySummary prints one line per build, as used by watch mode
func DisplaySummary(w io.Writer, result *Result) {
	if !result.Success {
		_, _ = fmt.Fprintf(w, "[%s] build failed in %s (%d errors)\n", result.Backend, result.Duration.Round(time.Millisecond), len(result.Errors))
		for _, e := range result.Errors {
			_, _ = fmt.Fprintf(w, "  - %s\n", e.Error())
		}
		return
	}
	_, _ = fmt.Fprintf(w, "[%s] built %d files (%s) in %s\n",
		result.Backend,
		len(result.Outputs),
		humanize.IBytes(uint64(result.TotalSize)), //nolint:gosec // sizes are never negative
		result.Duration.Round(time.Millisecond),
	)
}

func displayWarnings(w io.Writer, warnings []Message) {
	if len(warnings) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "\nWarnings:")
	for _, warn := range warnings {
		_, _ = fmt.Fprintf(w, "  - %s\n", warn.Error())
	}
}

// truncatePath shortens a path if it's too long
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
