// Package config loads slangload settings from file, environment, and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Sentinel validation errors.
var (
	ErrInvalidJobs      = errors.New("build jobs must be positive")
	ErrInvalidMaxDepth  = errors.New("max depth must not be negative")
	ErrInvalidCacheSize = errors.New("invalid cache size")
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidTimeout   = errors.New("compiler timeout must not be negative")
	ErrEmptyTarget      = errors.New("default target must not be empty")
)

// Config holds all slangload settings.
type Config struct {
	DefaultTarget string          `mapstructure:"default_target"`
	Root          string          `mapstructure:"root"`
	MaxDepth      int             `mapstructure:"max_depth"`
	Compiler      CompilerConfig  `mapstructure:"compiler"`
	Cache         CacheConfig     `mapstructure:"cache"`
	Build         BuildConfig     `mapstructure:"build"`
	Watch         WatchConfig     `mapstructure:"watch"`
	Logging       LoggingConfig   `mapstructure:"logging"`
	Telemetry     TelemetryConfig `mapstructure:"telemetry"`
}

// CompilerConfig selects and tunes the slangc backend.
type CompilerConfig struct {
	SlangcPath string        `mapstructure:"slangc_path"`
	ExtraArgs  []string      `mapstructure:"extra_args"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CacheConfig controls the in-process artifact cache.
type CacheConfig struct {
	// MaxSize is a human-readable byte size such as "32MB".
	MaxSize string `mapstructure:"max_size"`
	Enabled bool   `mapstructure:"enabled"`
}

// BuildConfig holds compile and bundle settings.
type BuildConfig struct {
	OutDir string `mapstructure:"out_dir"`
	Jobs   int    `mapstructure:"jobs"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	MetricsAddr string        `mapstructure:"metrics_addr"`
	Debounce    time.Duration `mapstructure:"debounce"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds OTLP export settings.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string `mapstructure:"otlp_headers"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DefaultTarget) == "" {
		return ErrEmptyTarget
	}

	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxDepth, c.MaxDepth)
	}

	if c.Build.Jobs <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidJobs, c.Build.Jobs)
	}

	if c.Compiler.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Compiler.Timeout)
	}

	_, sizeErr := c.CacheBytes()
	if sizeErr != nil {
		return sizeErr
	}

	_, levelErr := c.LogLevel()
	if levelErr != nil {
		return levelErr
	}

	return nil
}

// CacheBytes returns the artifact cache limit in bytes.
func (c *Config) CacheBytes() (int64, error) {
	size, err := humanize.ParseBytes(c.Cache.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidCacheSize, c.Cache.MaxSize, err)
	}

	return int64(size), nil //nolint:gosec // humanize sizes fit in int64.
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Logging.Level))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return level, nil
}
