// Package cmd provides the Cobra commands for the bundler CLI.
package cmd

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/eser/stack-sub001/cli/output"
	"github.com/eser/stack-sub001/internal/config"
	"github.com/eser/stack-sub001/internal/observability"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// Shared across commands
	cfg       *config.Config
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bundler",
	Short: "Bundle client code and generate runtime manifests",
	Long: `bundler drives esbuild, deno or rolldown and normalizes their output
into one build result, then writes the manifests a server-rendering runtime
reads at startup.

Get started:
  bundler bundle --entry main=./src/main.tsx   Build once
  bundler watch --serve                        Rebuild on change and serve output
  bundler --help                               Show available commands`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet
		initLogging()

		format, err := output.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		formatter = output.NewFormatter(format, noHeaders, quiet)
		return nil
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./bundler.yaml or ./config/bundler.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(publishCmd)
}

func initLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	switch {
	case debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case quiet:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadConfig reads the configuration once per process
func loadConfig() (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if loaded.Debug && !debug {
		debug = true
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	cfg = loaded
	return cfg, nil
}

// startTracing installs the global tracer provider when tracing is enabled.
// The returned function flushes pending spans.
func startTracing(ctx context.Context, c *config.Config) (*observability.Tracer, func()) {
	tcfg := observability.DefaultTracerConfig()
	tcfg.Enabled = c.Tracing.Enabled
	tcfg.Endpoint = c.Tracing.Endpoint
	tcfg.SampleRate = c.Tracing.SampleRate
	tcfg.Insecure = c.Tracing.Insecure
	tcfg.Version = Version
	tcfg.Environment = c.Manifest.Environment
	if c.Tracing.ServiceName != "" {
		tcfg.ServiceName = c.Tracing.ServiceName
	}

	tracer, err := observability.NewTracer(ctx, tcfg)
	if err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
		tracer, _ = observability.NewTracer(ctx, observability.TracerConfig{})
		return tracer, func() {}
	}
	return tracer, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Debug().Err(err).Msg("Failed to flush traces")
		}
	}
}

// startCommandSpan opens the root span of a CLI command
func startCommandSpan(ctx context.Context, tracer *observability.Tracer, name string) (context.Context, trace.Span) {
	ctx, span := tracer.StartSpan(ctx, "cli."+name)
	if tracer.IsEnabled() {
		log.Debug().Str("trace_id", observability.ExtractTraceID(ctx)).Msgf("Tracing %s", name)
	}
	return ctx, span
}
