// Package video builds transcodes of video sources and caches each output on
// disk under a key derived from the source and every output parameter.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/maauso/transform-api/internal/failure"
	"github.com/maauso/transform-api/internal/media"
)

// Result is a finished transcode. Cache hits and fresh builds look the same.
type Result struct {
	OutputPath string
	// Cached is true when the entry already existed.
	Cached bool
}

// Builder runs at most one transcode per cache key at a time.
type Builder struct {
	engine   media.Engine
	cacheDir string
	logger   *slog.Logger
	group    singleflight.Group
}

// NewBuilder creates a Builder writing into cacheDir.
func NewBuilder(engine media.Engine, cacheDir string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{engine: engine, cacheDir: cacheDir, logger: logger}
}

// CachePath is where the output for req lives.
func (b *Builder) CachePath(req Request) string {
	return filepath.Join(b.cacheDir, req.CacheKey+"."+req.OutputFormat)
}

// BuildAndRun returns the cached output for req, transcoding it first when
// absent. Concurrent calls for one key share a single engine run. Entries
// are never validated or rewritten once present.
func (b *Builder) BuildAndRun(ctx context.Context, req Request) (Result, error) {
	if req.CacheKey == "" {
		return Result{}, failure.Invalid("video.build", "missing cache key").With("source", req.InputPath)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, b.fail(failure.ErrCancelled, req, err)
	}

	path := b.CachePath(req)
	if exists(path) {
		b.logger.Debug("video cache hit", slog.String("cache_key", req.CacheKey))
		return Result{OutputPath: path, Cached: true}, nil
	}

	for {
		ch := b.group.DoChan(req.CacheKey, func() (any, error) {
			return b.build(ctx, req, path)
		})

		select {
		case <-ctx.Done():
			return Result{}, b.fail(failure.ErrCancelled, req, ctx.Err())
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(Result), nil
			}
			// A shared run cancelled by another caller says nothing about ours.
			if res.Shared && errors.Is(res.Err, failure.ErrCancelled) && ctx.Err() == nil {
				continue
			}
			return Result{}, res.Err
		}
	}
}

func (b *Builder) build(ctx context.Context, req Request, path string) (Result, error) {
	if exists(path) {
		return Result{OutputPath: path, Cached: true}, nil
	}
	if err := os.MkdirAll(b.cacheDir, 0o750); err != nil {
		return Result{}, b.fail(failure.ErrEngine, req, fmt.Errorf("create cache dir: %w", err))
	}

	tmp := filepath.Join(b.cacheDir, ".tmp-"+uuid.NewString()+"."+req.OutputFormat)
	job := b.job(req, tmp)

	start := time.Now()
	b.logger.Info("video transcode started",
		slog.String("cache_key", req.CacheKey),
		slog.String("source", req.InputPath),
		slog.Any("args", job.Args()),
	)

	if err := b.engine.Transcode(ctx, job); err != nil {
		_ = os.Remove(tmp)
		kind := failure.ErrEngine
		if errors.Is(err, media.ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = failure.ErrCancelled
		}
		b.logger.Error("video transcode failed",
			slog.String("cache_key", req.CacheKey),
			slog.String("error", err.Error()),
		)
		return Result{}, b.fail(kind, req, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Result{}, b.fail(failure.ErrEngine, req, fmt.Errorf("publish cache entry: %w", err))
	}

	b.logger.Info("video transcode finished",
		slog.String("cache_key", req.CacheKey),
		slog.Duration("elapsed", time.Since(start)),
	)
	return Result{OutputPath: path}, nil
}

func (b *Builder) job(req Request, output string) media.Job {
	c := codecs[req.OutputFormat]
	return media.Job{
		Input:        req.InputPath,
		Output:       output,
		Format:       req.OutputFormat,
		VideoCodec:   c.video,
		AudioCodec:   c.audio,
		VideoBitrate: req.VideoBitrate,
		AudioBitrate: req.AudioBitrate,
		NoVideo:      req.VideoBitrate == 0,
		NoAudio:      req.AudioBitrate == 0,
		Width:        req.Width,
		Height:       req.Height,
		Seek:         req.Seek,
		Duration:     req.Duration,
	}
}

func (b *Builder) fail(kind error, req Request, err error) error {
	return failure.New(kind, "video.build", err).
		With("cache_key", req.CacheKey).
		With("source", req.InputPath)
}

// Probe returns the metadata of a video and writes its poster still next to
// it, see media.ThumbnailPath.
func (b *Builder) Probe(ctx context.Context, path string) (*media.ProbeResult, error) {
	if _, err := Identify(path); err != nil {
		return nil, failure.New(failure.ErrDecode, "video.probe", err).With("source", path)
	}

	result, err := b.engine.Probe(ctx, path)
	if err != nil {
		return nil, b.classify("video.probe", path, err)
	}
	if err := b.engine.Thumbnail(ctx, path, media.ThumbnailPath(path), 0); err != nil {
		return nil, b.classify("video.thumbnail", path, err)
	}
	return result, nil
}

func (b *Builder) classify(op, path string, err error) error {
	kind := failure.ErrEngine
	switch {
	case errors.Is(err, media.ErrCancelled):
		kind = failure.ErrCancelled
	case errors.Is(err, media.ErrFFprobeExecution):
		kind = failure.ErrDecode
	}
	return failure.New(kind, op, err).With("source", path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
