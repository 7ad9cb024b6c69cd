package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/eser/stack-sub001/internal/bundler"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "BUNDLER"

// Config represents the application configuration
type Config struct {
	Bundle   BundleConfig   `mapstructure:"bundle"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Debug    bool           `mapstructure:"debug"`
}

// BundleConfig contains the build settings
type BundleConfig struct {
	Backend       string            `mapstructure:"backend"`
	Root          string            `mapstructure:"root"`
	OutputDir     string            `mapstructure:"output_dir"`
	Entrypoints   map[string]string `mapstructure:"entrypoints"`
	Format        string            `mapstructure:"format"`
	Platform      string            `mapstructure:"platform"`
	Sourcemap     string            `mapstructure:"sourcemap"`
	CodeSplitting bool              `mapstructure:"code_splitting"`
	Minify        bool              `mapstructure:"minify"`
	Target        []string          `mapstructure:"target"`
	Define        map[string]string `mapstructure:"define"`
	External      []string          `mapstructure:"external"`
	Plugins       []string          `mapstructure:"plugins"`
	BasePath      string            `mapstructure:"base_path"`
	NestedDir     string            `mapstructure:"nested_dir"`
}

// ManifestConfig contains settings for generated manifests
type ManifestConfig struct {
	Entrypoint  string `mapstructure:"entrypoint"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	// Components is a JSON file listing client components
	Components string `mapstructure:"components"`
	Snapshot   bool   `mapstructure:"snapshot"`
}

// ServerConfig contains dev server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StorageConfig contains artifact storage settings
type StorageConfig struct {
	Provider    string `mapstructure:"provider"` // local or s3
	LocalPath   string `mapstructure:"local_path"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	Prefix      string `mapstructure:"prefix"`
}

// TracingConfig contains OpenTelemetry export settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Load loads configuration from file and environment variables. An empty
// configFile searches the default locations.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("bundler")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()

	// Enable environment variable support with underscore replacer
	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults() {
	// Bundle defaults
	viper.SetDefault("bundle.backend", bundler.BackendEsbuild)
	viper.SetDefault("bundle.root", ".")
	viper.SetDefault("bundle.output_dir", "./dist")
	viper.SetDefault("bundle.format", string(bundler.FormatESM))
	viper.SetDefault("bundle.platform", string(bundler.PlatformBrowser))
	viper.SetDefault("bundle.sourcemap", string(bundler.SourcemapOff))
	viper.SetDefault("bundle.code_splitting", true)
	viper.SetDefault("bundle.minify", false)
	viper.SetDefault("bundle.nested_dir", bundler.DefaultNestedDir)

	// Manifest defaults
	viper.SetDefault("manifest.entrypoint", bundler.CanonicalEntryName)
	viper.SetDefault("manifest.environment", "development")
	viper.SetDefault("manifest.snapshot", true)

	// Server defaults
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")

	// Storage defaults
	viper.SetDefault("storage.provider", "local")
	viper.SetDefault("storage.local_path", "./artifacts")
	viper.SetDefault("storage.s3_bucket", "assets")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4317")
	viper.SetDefault("tracing.service_name", "stack-bundler")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)

	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Bundle.Validate(); err != nil {
		return fmt.Errorf("bundle configuration error: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage configuration error: %w", err)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing configuration error: sample_rate must be between 0 and 1")
	}
	return nil
}

// Validate validates bundle configuration. Entrypoints are checked when a
// build is requested, so commands that only read existing output work
// without them.
func (bc *BundleConfig) Validate() error {
	if bc.Backend != "" && !slices.Contains(bundler.BackendNames(), bc.Backend) {
		return fmt.Errorf("invalid backend: %s (must be one of: %v)", bc.Backend, bundler.BackendNames())
	}
	if bc.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	validFormats := []string{"", "esm", "cjs", "iife"}
	if !slices.Contains(validFormats, bc.Format) {
		return fmt.Errorf("invalid format: %s (must be one of: esm, cjs, iife)", bc.Format)
	}
	validPlatforms := []string{"", "browser", "node", "neutral"}
	if !slices.Contains(validPlatforms, bc.Platform) {
		return fmt.Errorf("invalid platform: %s (must be one of: browser, node, neutral)", bc.Platform)
	}
	validSourcemaps := []string{"", "off", "inline", "external"}
	if !slices.Contains(validSourcemaps, bc.Sourcemap) {
		return fmt.Errorf("invalid sourcemap: %s (must be one of: off, inline, external)", bc.Sourcemap)
	}
	if bc.BasePath != "" && !strings.HasPrefix(bc.BasePath, "/") {
		return fmt.Errorf("base_path must start with /")
	}
	return nil
}

// Validate validates dev server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive")
	}
	return nil
}

// Validate validates storage configuration
func (sc *StorageConfig) Validate() error {
	if sc.Provider != "local" && sc.Provider != "s3" {
		return fmt.Errorf("storage provider must be 'local' or 's3'")
	}
	if sc.Provider == "local" && sc.LocalPath == "" {
		return fmt.Errorf("local_path is required for the local provider")
	}
	if sc.Provider == "s3" {
		if sc.S3Endpoint == "" || sc.S3AccessKey == "" ||
			sc.S3SecretKey == "" || sc.S3Bucket == "" {
			return fmt.Errorf("S3 configuration is incomplete")
		}
	}
	return nil
}

// ToBundlerConfig converts the bundle section into a bundler configuration
func (bc *BundleConfig) ToBundlerConfig(buildID string) bundler.Config {
	return bundler.Config{
		Backend:       bc.Backend,
		Entrypoints:   bc.Entrypoints,
		Root:          bc.Root,
		OutputDir:     bc.OutputDir,
		Format:        bundler.Format(bc.Format),
		Platform:      bundler.Platform(bc.Platform),
		Sourcemap:     bundler.SourcemapMode(bc.Sourcemap),
		CodeSplitting: bc.CodeSplitting,
		Minify:        bc.Minify,
		Target:        bc.Target,
		Define:        bc.Define,
		External:      bc.External,
		Plugins:       bc.Plugins,
		BasePath:      bc.BasePath,
		BuildID:       buildID,
		NestedDir:     bc.NestedDir,
	}
}
