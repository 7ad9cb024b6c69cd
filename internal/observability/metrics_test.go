package observability

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	testCases := []struct {
		status   int
		expected string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{304, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{100, "unknown"},
		{0, "unknown"},
		{600, "5xx"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expected, statusClass(tc.status))
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{"/", "/"},
		{"/metrics", "/metrics"},
		{"/chunk-AB12CD.js", "*.js"},
		{"/assets/main.js.map", "*.map"},
		{"/_bundler/manifest.json", "*.json"},
		{"/_bundler", "/_bundler"},
		{"/very/long/path/that/exceeds/fifty/characters/limit/here.js", "long_path"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestMetrics_ObserveBuild(t *testing.T) {
	m := NewMetrics()

	m.ObserveBuild("esbuild", true, 120*time.Millisecond, 3, 4096)
	m.ObserveBuild("esbuild", false, 10*time.Millisecond, 0, 0)
	m.ObserveBuild("esbuild", true, 90*time.Millisecond, 4, 2048)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.buildsTotal.WithLabelValues("esbuild", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildsTotal.WithLabelValues("esbuild", "failure")))
	// Gauges track the last successful build
	assert.Equal(t, 4.0, testutil.ToFloat64(m.buildOutputs.WithLabelValues("esbuild")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.buildSizeBytes.WithLabelValues("esbuild")))
}

func TestMetrics_RecordStorageOperation(t *testing.T) {
	m := NewMetrics()

	m.RecordStorageOperation("upload", "assets", 1024, 50*time.Millisecond, nil)
	m.RecordStorageOperation("upload", "assets", 0, 10*time.Millisecond, assert.AnError)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOperationsTotal.WithLabelValues("upload", "assets", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOperationsTotal.WithLabelValues("upload", "assets", "error")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.storageBytesTotal.WithLabelValues("upload", "assets")))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = NewMetrics()
		_ = NewMetrics()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveBuild("deno", true, time.Second, 2, 100)

	app := fiber.New()
	app.Use(m.MetricsMiddleware())
	app.Get("/metrics", m.Handler())
	app.Get("/main.js", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/main.js", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `bundler_builds_total{backend="deno",status="success"} 1`)
	assert.Contains(t, string(body), `bundler_http_requests_total{method="GET",path="*.js",status="2xx"} 1`)
}
