package storage

import (
	"fmt"
	"strings"

	"github.com/eser/stack-sub001/internal/config"
)

// NewProvider creates the storage provider selected by configuration
func NewProvider(cfg *config.StorageConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "local":
		provider, err := NewLocalStorage(cfg.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		return provider, nil

	case "s3":
		// Determine if using SSL based on endpoint
		useSSL := !strings.HasPrefix(cfg.S3Endpoint, "http://")

		endpoint := cfg.S3Endpoint
		endpoint = strings.TrimPrefix(endpoint, "https://")
		endpoint = strings.TrimPrefix(endpoint, "http://")
		if endpoint == "" {
			endpoint = "s3.amazonaws.com"
			useSSL = true
		}

		provider, err := NewS3Storage(endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Region, useSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		return provider, nil

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}

// Bucket returns the bucket artifacts are published to. The local
// provider uses it as a directory name.
func Bucket(cfg *config.StorageConfig) string {
	if cfg.S3Bucket == "" {
		return "assets"
	}
	return cfg.S3Bucket
}
