// Package bootstrap provides dependency initialization for the transform API.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/maauso/transform-api/internal/config"
	"github.com/maauso/transform-api/internal/fetch"
	"github.com/maauso/transform-api/internal/media"
	"github.com/maauso/transform-api/internal/raster"
	"github.com/maauso/transform-api/internal/storage"
	"github.com/maauso/transform-api/internal/transform"
	"github.com/maauso/transform-api/internal/video"
)

// vipsMaxCacheOps is the number of libvips operations kept in its cache.
const vipsMaxCacheOps = 100

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Images  *transform.Service
	Videos  *video.Builder
	Fetcher *fetch.HTTPClient
	Scratch *storage.LocalStorage
	// Store is nil when no object storage backend is configured.
	Store storage.ObjectStore

	closers []io.Closer
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	// Initialize scratch storage for proxied sources
	scratch, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create scratch storage: %w", err)
	}

	deps := &Dependencies{Scratch: scratch}

	store, err := deps.initObjectStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Store = store

	checkBinary(logger, cfg.FFmpegPath)
	checkBinary(logger, cfg.FFprobePath)

	// Initialize engines and services
	engine := media.NewFFmpegEngine(cfg.FFmpegPath, cfg.FFprobePath)
	deps.Videos = video.NewBuilder(engine, cfg.CacheDir, logger)
	deps.Images = transform.NewService(raster.NewVipsEngine(raster.VipsConfig{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMem,
		MaxCacheSize:     vipsMaxCacheOps,
	}, logger), logger)
	deps.Fetcher = fetch.NewClient(
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithMaxRetries(cfg.FetchMaxRetries),
		fetch.WithUserAgent(cfg.FetchUserAgent),
		fetch.WithMaxBytes(cfg.FetchMaxBytes),
	)

	return deps, nil
}

// Close releases clients that hold connections.
func (d *Dependencies) Close() error {
	var firstErr error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// initObjectStore creates the object storage backend selected by configuration.
func (d *Dependencies) initObjectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ObjectStore, error) {
	switch {
	case cfg.S3Enabled():
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		store, err := storage.NewS3Store(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return store, nil

	case cfg.GCSEnabled():
		store, err := storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:          cfg.GCSBucket,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("create GCS storage: %w", err)
		}
		d.closers = append(d.closers, store)
		logger.Info("GCS storage configured",
			slog.String("bucket", cfg.GCSBucket),
		)
		return store, nil
	}

	logger.Info("object storage disabled")
	return nil, nil
}

func checkBinary(logger *slog.Logger, name string) {
	if _, err := exec.LookPath(name); err != nil {
		logger.Warn("video engine binary not found, video routes will fail",
			slog.String("binary", name),
		)
	}
}
