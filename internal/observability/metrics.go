package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bundler
type Metrics struct {
	registry *prometheus.Registry

	// Build metrics
	buildsTotal    *prometheus.CounterVec
	buildDuration  *prometheus.HistogramVec
	buildOutputs   *prometheus.GaugeVec
	buildSizeBytes *prometheus.GaugeVec
	lastBuildTime  prometheus.Gauge

	// HTTP metrics (dev server)
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Storage metrics
	storageBytesTotal        *prometheus.CounterVec
	storageOperationsTotal   *prometheus.CounterVec
	storageOperationDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics on a dedicated registry, so several
// instances can coexist (e.g. in tests)
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Build metrics
		buildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_builds_total",
				Help: "Total number of builds",
			},
			[]string{"backend", "status"},
		),
		buildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bundler_build_duration_seconds",
				Help:    "Build duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"backend", "status"},
		),
		buildOutputs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bundler_build_outputs",
				Help: "Number of output files of the last successful build",
			},
			[]string{"backend"},
		),
		buildSizeBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bundler_build_size_bytes",
				Help: "Total output size of the last successful build",
			},
			[]string{"backend"},
		),
		lastBuildTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bundler_last_build_timestamp_seconds",
				Help: "Unix time of the last finished build",
			},
		),

		// HTTP metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_http_requests_total",
				Help: "Total number of dev server HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bundler_http_request_duration_seconds",
				Help:    "Dev server HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bundler_http_requests_in_flight",
				Help: "Current number of dev server HTTP requests being processed",
			},
		),

		// Storage metrics
		storageBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_storage_bytes_total",
				Help: "Total bytes published to artifact storage",
			},
			[]string{"operation", "bucket"},
		),
		storageOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_storage_operations_total",
				Help: "Total number of artifact storage operations",
			},
			[]string{"operation", "bucket", "status"},
		),
		storageOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bundler_storage_operation_duration_seconds",
				Help:    "Artifact storage operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation", "bucket"},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBuild records one finished build
func (m *Metrics) ObserveBuild(backend string, success bool, duration time.Duration, outputs int, bytes int64) {
	status := "success"
	if !success {
		status = "failure"
	}

	m.buildsTotal.WithLabelValues(backend, status).Inc()
	m.buildDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
	m.lastBuildTime.SetToCurrentTime()

	if success {
		m.buildOutputs.WithLabelValues(backend).Set(float64(outputs))
		m.buildSizeBytes.WithLabelValues(backend).Set(float64(bytes))
	}
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, bucket string, bytes int64, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.storageOperationsTotal.WithLabelValues(operation, bucket, status).Inc()
	m.storageBytesTotal.WithLabelValues(operation, bucket).Add(float64(bytes))
	m.storageOperationDuration.WithLabelValues(operation, bucket).Observe(duration.Seconds())
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// normalizePath groups request paths for metrics. Static assets carry
// content hashes in their names, so every file below the root is reported
// by its extension only.
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	if path == "" || path == "/" || path == "/metrics" {
		return path
	}
	for i := len(path) - 1; i > 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return "*" + path[i:]
		}
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
