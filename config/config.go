// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"echosync/retry"
)

// Config holds all application configuration for lecture resolution and
// download operations.
type Config struct {
	// Origin is the base URL of the lecture-capture platform.
	Origin string `json:"origin"`
	// Destination is the directory downloads are saved under. A subdirectory
	// is created per course.
	Destination string `json:"destination"`
	// VaultPath is the path of the encrypted session vault. Empty disables
	// session persistence.
	VaultPath string `json:"vault_path"`
	// HistoryPath is the path of the download history store. Empty disables
	// history tracking.
	HistoryPath string `json:"history_path"`

	// ResolverConcurrency bounds concurrent media manifest fetches.
	ResolverConcurrency int `json:"resolver_concurrency"`
	// DownloadConcurrency bounds concurrent video transfers.
	DownloadConcurrency int `json:"download_concurrency"`

	// RequestTimeout is the timeout for individual metadata requests.
	// Downloads are not subject to it.
	RequestTimeout time.Duration `json:"request_timeout"`
	// RequestsPerSecond caps the request rate against the platform host.
	RequestsPerSecond float64 `json:"requests_per_second"`

	// MaxRetries is the maximum number of retries for failed operations.
	MaxRetries int `json:"max_retries"`
	// InitialBackoff is the initial backoff duration for retries.
	InitialBackoff time.Duration `json:"initial_backoff"`
	// MaxBackoff is the maximum backoff duration for retries.
	MaxBackoff time.Duration `json:"max_backoff"`
	// BackoffMultiplier is the multiplier for exponential backoff (must be > 1).
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		Origin:              "https://echo360.org.uk",
		Destination:         "Lecture Recordings",
		VaultPath:           "echosync.vault",
		ResolverConcurrency: 4,
		DownloadConcurrency: 3,
		RequestTimeout:      30 * time.Second,
		RequestsPerSecond:   5.0,
		MaxRetries:          3,
		InitialBackoff:      1 * time.Second,
		MaxBackoff:          30 * time.Second,
		BackoffMultiplier:   2.0,
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults. A .env file in the current
// directory is read into the environment first, if present.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// .env is optional and never overrides real environment variables
	_ = godotenv.Load()

	// Try to load from config file
	if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.loadFromEnv()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load config from echosync.json in current directory or home directory.
func (c *Config) loadFromFile() error {
	paths := []string{
		"echosync.json",
		filepath.Join(os.Getenv("HOME"), ".config", "echosync", "echosync.json"),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("ECHOSYNC_ORIGIN"); v != "" {
		c.Origin = v
	}
	if v := os.Getenv("ECHOSYNC_DESTINATION"); v != "" {
		c.Destination = v
	}
	if v := os.Getenv("ECHOSYNC_VAULT_PATH"); v != "" {
		c.VaultPath = v
	}
	if v := os.Getenv("ECHOSYNC_HISTORY_PATH"); v != "" {
		c.HistoryPath = v
	}
	if v := os.Getenv("ECHOSYNC_RESOLVER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ResolverConcurrency = n
		}
	}
	if v := os.Getenv("ECHOSYNC_DOWNLOAD_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DownloadConcurrency = n
		}
	}
	if v := os.Getenv("ECHOSYNC_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := os.Getenv("ECHOSYNC_REQUESTS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("ECHOSYNC_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("ECHOSYNC_INITIAL_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.InitialBackoff = d
		}
	}
	if v := os.Getenv("ECHOSYNC_MAX_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MaxBackoff = d
		}
	}
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("origin must not be empty")
	}
	if c.Destination == "" {
		return fmt.Errorf("destination must not be empty")
	}
	if c.ResolverConcurrency <= 0 {
		return fmt.Errorf("resolver_concurrency must be positive")
	}
	if c.DownloadConcurrency <= 0 {
		return fmt.Errorf("download_concurrency must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	return nil
}

// RetryConfig returns the retry schedule derived from the configuration.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		Multiplier:     c.BackoffMultiplier,
		JitterFraction: 0.2,
	}
}
