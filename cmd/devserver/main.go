package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eser/stack-sub001/internal/buildid"
	"github.com/eser/stack-sub001/internal/bundler"
	"github.com/eser/stack-sub001/internal/config"
	"github.com/eser/stack-sub001/internal/devserver"
	"github.com/eser/stack-sub001/internal/manifest"
	"github.com/eser/stack-sub001/internal/observability"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
	configFile  = flag.String("config", "", "Path to the configuration file")
)

func main() {
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("stack-bundler dev server %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	// Initialize logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting dev server")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcfg := observability.DefaultTracerConfig()
	tcfg.Enabled = cfg.Tracing.Enabled
	tcfg.Endpoint = cfg.Tracing.Endpoint
	tcfg.SampleRate = cfg.Tracing.SampleRate
	tcfg.Insecure = cfg.Tracing.Insecure
	tcfg.Version = Version
	tcfg.Environment = cfg.Manifest.Environment
	tracer, err := observability.NewTracer(ctx, tcfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	metrics := observability.NewMetrics()
	b, err := bundler.New(cfg.Bundle.ToBundlerConfig(buildid.Resolve()), bundler.WithRecorder(metrics))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bundler")
	}
	outDir := b.Config().OutputDir

	server := devserver.New(cfg.Server, outDir, cfg.Bundle.BasePath, metrics, cfg.Debug)

	onBuild := func(result *bundler.Result) {
		var m *manifest.ChunkManifest
		if result.Success {
			entry := cfg.Manifest.Entrypoint
			if result.Entrypoint != "" {
				entry = result.Entrypoint
			}
			m = manifest.GenerateChunkManifest(result, entry, result.BuildID)
			if err := manifest.WriteManifest(outDir, manifest.ChunkManifestFile, m); err != nil {
				log.Error().Err(err).Msg("Failed to write chunk manifest")
			}
			if cfg.Manifest.Snapshot {
				if err := manifest.WriteSnapshot(outDir, result); err != nil {
					log.Error().Err(err).Msg("Failed to write snapshot")
				}
			}
		}
		server.Update(result, m)
	}

	onBuild(b.Bundle(ctx))

	handle, err := b.Watch(ctx, onBuild)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start watcher")
	}

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down dev server...")

	if err := handle.Stop(); err != nil {
		log.Warn().Err(err).Msg("Failed to close watcher")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Dev server exited")
}
