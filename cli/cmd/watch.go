package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/eser/stack-sub001/internal/bundler"
	"github.com/eser/stack-sub001/internal/devserver"
	"github.com/eser/stack-sub001/internal/manifest"
	"github.com/eser/stack-sub001/internal/observability"
)

var (
	watchServe   bool
	watchAddress string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild on every file change",
	Long: `Build once, then rebuild whenever a file under the project root changes.
Each rebuild rewrites outputs and manifests. With --serve the output directory
is served together with the current chunk manifest, a build status endpoint,
the live reload endpoint and Prometheus metrics.

Examples:
  bundler watch --entry main=./src/main.tsx
  bundler watch --serve --address :3000`,
	RunE: runWatch,
}

func init() {
	addBuildFlags(watchCmd)
	watchCmd.Flags().BoolVar(&watchServe, "serve", false, "serve the output directory")
	watchCmd.Flags().StringVar(&watchAddress, "address", "", "dev server address (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	bcfg, err := bundleConfig(cmd, c)
	if err != nil {
		return err
	}
	components, err := loadComponents(c)
	if err != nil {
		return err
	}
	bcfg.Entrypoints = withComponentEntrypoints(bcfg.Entrypoints, components)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, stopTracing := startTracing(ctx, c)
	defer stopTracing()

	metrics := observability.NewMetrics()
	b, err := bundler.New(bcfg, bundler.WithRecorder(metrics))
	if err != nil {
		return err
	}
	outDir := b.Config().OutputDir

	var server *devserver.Server
	if watchServe {
		serverCfg := c.Server
		if watchAddress != "" {
			serverCfg.Address = watchAddress
		}
		server = devserver.New(serverCfg, outDir, bcfg.BasePath, metrics, debug)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("Dev server stopped")
				stop()
			}
		}()
	}

	onBuild := func(result *bundler.Result) {
		var chunkManifest *manifest.ChunkManifest
		if result.Success {
			manifests := generateManifests(c, result, components)
			if err := writeManifests(c, outDir, result, manifests); err != nil {
				log.Error().Err(err).Msg("Failed to write manifests")
			}
			chunkManifest = manifest.GenerateChunkManifest(result, entryName(c, result), result.BuildID)
		}
		if server != nil {
			server.Update(result, chunkManifest)
		}
		if !formatter.Quiet {
			bundler.DisplaySummary(formatter.Writer, result)
		}
	}

	onBuild(b.Bundle(ctx))

	handle, err := b.Watch(ctx, onBuild)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-handle.Done():
	}
	log.Info().Msg("Stopping watch")

	if err := handle.Stop(); err != nil {
		log.Debug().Err(err).Msg("Failed to close watcher")
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Dev server forced to shutdown")
		}
	}
	return nil
}
