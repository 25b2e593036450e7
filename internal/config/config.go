// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Storage backends.
const (
	BackendNone = "none"
	BackendS3   = "s3"
	BackendGCS  = "gcs"
)

// Static errors for configuration validation.
var (
	// ErrInvalidConfig is returned when a value is out of range or a backend is
	// selected without its settings.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port            int           `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=30s" json:"shutdown_timeout"`

	// Media locations
	PublicDir string `env:"PUBLIC_DIR, default=./public" json:"public_dir" validate:"required"`
	CacheDir  string `env:"CACHE_DIR, default=/tmp/transform-api/cache" json:"cache_dir" validate:"required"`
	TempDir   string `env:"TEMP_DIR, default=/tmp/transform-api/scratch" json:"temp_dir"`

	// Video engine
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Proxy mode fetch settings
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT, default=30s" json:"fetch_timeout"`
	FetchMaxRetries int           `env:"FETCH_MAX_RETRIES, default=3" json:"fetch_max_retries" validate:"min=0,max=10"`
	FetchUserAgent  string        `env:"FETCH_USER_AGENT, default=transform-api/1.0" json:"fetch_user_agent" validate:"required"`
	FetchMaxBytes   int64         `env:"FETCH_MAX_BYTES, default=67108864" json:"fetch_max_bytes" validate:"min=1"`
	ProxyScheme     string        `env:"PROXY_SCHEME, default=http" json:"proxy_scheme" validate:"oneof=http https"`

	// Engine limits
	VideoTimeout    time.Duration `env:"VIDEO_TIMEOUT, default=5m" json:"video_timeout"`
	VipsConcurrency int           `env:"VIPS_CONCURRENCY, default=0" json:"vips_concurrency" validate:"min=0"`
	VipsMaxCacheMem int           `env:"VIPS_MAX_CACHE_MEM, default=52428800" json:"vips_max_cache_mem" validate:"min=0"`

	// Object storage
	StorageBackend string `env:"STORAGE_BACKEND, default=none" json:"storage_backend" validate:"oneof=none s3 gcs"`

	// S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty" validate:"required_if=StorageBackend s3"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty" validate:"required_if=StorageBackend s3"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// GCS settings
	GCSBucket          string `env:"GCS_BUCKET" json:"gcs_bucket,omitempty" validate:"required_if=StorageBackend gcs"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE" json:"-"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 is the selected object storage backend.
func (c *Config) S3Enabled() bool {
	return c.StorageBackend == BackendS3
}

// GCSEnabled returns true if GCS is the selected object storage backend.
func (c *Config) GCSEnabled() bool {
	return c.StorageBackend == BackendGCS
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.StorageBackend = strings.ToLower(cfg.StorageBackend)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and that the selected backend is configured.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		names := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			names = append(names, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(names, ", "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, PublicDir: %s, CacheDir: %s, TempDir: %s, ProxyScheme: %s, StorageBackend: %s, S3Bucket: %s, S3Region: %s, GCSBucket: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.PublicDir,
		c.CacheDir,
		c.TempDir,
		c.ProxyScheme,
		c.StorageBackend,
		c.S3Bucket,
		c.S3Region,
		c.GCSBucket,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
