// Package main provides the entry point for the transform API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/transform-api/internal/bootstrap"
	"github.com/maauso/transform-api/internal/config"
	"github.com/maauso/transform-api/internal/raster"
	"github.com/maauso/transform-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting transform API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("public_dir", cfg.PublicDir),
		slog.String("cache_dir", cfg.CacheDir),
		slog.String("temp_dir", cfg.TempDir),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer raster.Shutdown()
	defer func() { _ = deps.Close() }()

	opts := []server.HandlerOption{
		server.WithFetcher(deps.Fetcher),
		server.WithScratch(deps.Scratch),
		server.WithProxyScheme(cfg.ProxyScheme),
		server.WithVideoTimeout(cfg.VideoTimeout),
	}
	if deps.Store != nil {
		opts = append(opts, server.WithObjectStore(deps.Store))
	}

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.Images, deps.Videos, cfg.PublicDir, logger, opts...)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	// Leave room to stream a finished transcode after the build deadline
	writeTimeout := 300 * time.Second
	if cfg.VideoTimeout > 0 {
		writeTimeout = cfg.VideoTimeout + 30*time.Second
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
