// Package devserver serves the output directory of a watched build together
// with the current chunk manifest and build metrics.
package devserver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/eser/stack-sub001/internal/bundler"
	"github.com/eser/stack-sub001/internal/config"
	"github.com/eser/stack-sub001/internal/manifest"
	"github.com/eser/stack-sub001/internal/observability"
)

// ManifestPath is where the current chunk manifest is served
const ManifestPath = "/_bundler/manifest.json"

// StatusPath reports the outcome of the latest build
const StatusPath = "/_bundler/status"

// Status is the body served at StatusPath
type Status struct {
	Success   bool              `json:"success"`
	BuildID   string            `json:"buildId"`
	Backend   string            `json:"backend"`
	Outputs   int               `json:"outputs"`
	TotalSize int64             `json:"totalSize"`
	Errors    []bundler.Message `json:"errors,omitempty"`
	Warnings  []bundler.Message `json:"warnings,omitempty"`
	BuiltAt   time.Time         `json:"builtAt"`
}

// Server is the development HTTP server
type Server struct {
	app      *fiber.App
	cfg      config.ServerConfig
	metrics  *observability.Metrics
	basePath string

	mu       sync.RWMutex
	status   *Status
	manifest *manifest.ChunkManifest
}

// New creates the server. Files are served from outputDir below basePath.
func New(cfg config.ServerConfig, outputDir, basePath string, metrics *observability.Metrics, debug bool) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "stack-bundler dev server",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		DisableStartupMessage: !debug,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:      app,
		cfg:      cfg,
		metrics:  metrics,
		basePath: strings.TrimSuffix(basePath, "/"),
	}
	s.setupMiddlewares(debug)
	s.setupRoutes(outputDir)
	return s
}

func (s *Server) setupMiddlewares(debug bool) {
	s.app.Use(requestid.New())
	s.app.Use(tracingMiddleware(s.basePath+bundler.ReloadEndpoint, StatusPath, "/metrics"))
	if debug {
		s.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
		}))
	}
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: debug,
	}))
	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,HEAD,OPTIONS",
	}))
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))
}

func (s *Server) setupRoutes(outputDir string) {
	s.app.Get(ManifestPath, s.handleManifest)
	s.app.Get(StatusPath, s.handleStatus)
	s.app.Get(s.basePath+bundler.ReloadEndpoint, s.handleAlive)
	if s.metrics != nil {
		s.app.Get("/metrics", s.metrics.Handler())
	}

	prefix := s.basePath
	if prefix == "" {
		prefix = "/"
	}
	s.app.Static(prefix, outputDir, fiber.Static{
		Compress:      false,
		CacheDuration: -1,
		MaxAge:        0,
	})
}

// Update publishes a finished build. Failed builds keep the previous
// manifest so clients continue to load the last good output.
func (s *Server) Update(result *bundler.Result, m *manifest.ChunkManifest) {
	status := &Status{
		Success:   result.Success,
		BuildID:   result.BuildID,
		Backend:   result.Backend,
		Outputs:   len(result.Outputs),
		TotalSize: result.TotalSize,
		Errors:    result.Errors,
		Warnings:  result.Warnings,
		BuiltAt:   time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if result.Success && m != nil {
		s.manifest = m
	}
}

func (s *Server) handleManifest(c *fiber.Ctx) error {
	s.mu.RLock()
	m := s.manifest
	s.mu.RUnlock()

	if m == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no successful build yet")
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(m)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	if status == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no build yet")
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(status)
}

// handleAlive answers the reload endpoint emitted into client bundles.
// Clients poll it and reload when the build id changes.
func (s *Server) handleAlive(c *fiber.Ctx) error {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	buildID := ""
	if status != nil {
		buildID = status.BuildID
		if status.Success {
			buildID += ":" + status.BuiltAt.Format(time.RFC3339Nano)
		}
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(fiber.Map{"buildId": buildID})
}

// Handler exposes the fiber app, mainly for tests
func (s *Server) Handler() *fiber.App {
	return s.app
}

// Start listens on the configured address until Shutdown is called
func (s *Server) Start() error {
	log.Info().Str("address", s.cfg.Address).Msg("Dev server listening")
	return s.app.Listen(s.cfg.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 && code != fiber.StatusServiceUnavailable {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
