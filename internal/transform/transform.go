// Package transform runs the image pipeline: resolve every parameter, then
// apply sharpen, blur, crop and resize in that fixed order and encode.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/maauso/transform-api/internal/directive"
	"github.com/maauso/transform-api/internal/failure"
	"github.com/maauso/transform-api/internal/filter"
	"github.com/maauso/transform-api/internal/geometry"
	"github.com/maauso/transform-api/internal/raster"
)

// Source is the input image: in-memory bytes or a file path.
type Source struct {
	Data []byte
	Path string
}

// FromBytes wraps an in-memory source.
func FromBytes(data []byte) Source {
	return Source{Data: data}
}

// FromPath wraps a source on disk.
func FromPath(path string) Source {
	return Source{Path: path}
}

// Identity names the source in error context.
func (s Source) Identity() string {
	if s.Path != "" {
		return s.Path
	}
	return fmt.Sprintf("<%d bytes>", len(s.Data))
}

func (s Source) read() ([]byte, error) {
	if s.Path == "" {
		return s.Data, nil
	}
	return os.ReadFile(s.Path)
}

// Result is an encoded image.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// plan holds every resolved parameter. Building it touches no pixels.
type plan struct {
	sharpen *filter.Sharpen
	blur    float64
	crop    *geometry.CropBox
	resize  *geometry.ResizeTarget
	output  filter.OutputSpec
}

// Service is the image transform orchestrator.
type Service struct {
	engine raster.Engine
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(engine raster.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, logger: logger}
}

// Transform applies settings to src and encodes the result in outputFormat,
// a file extension such as "png".
func (s *Service) Transform(ctx context.Context, src Source, settings directive.Settings, outputFormat string) (*Result, error) {
	start := time.Now()
	wrap := func(kind error, err error) error {
		return failure.New(kind, "transform", err).
			With("source", src.Identity()).
			With("directive", settings.Canonical())
	}

	if err := ctx.Err(); err != nil {
		return nil, wrap(failure.ErrCancelled, err)
	}

	data, err := src.read()
	if err != nil {
		return nil, wrap(failure.ErrDecode, err)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, wrap(failure.ErrDecode, fmt.Errorf("unsupported media type %s", mt.String()))
	}

	img, err := s.engine.Decode(data)
	if err != nil {
		return nil, wrap(failure.ErrDecode, err)
	}

	p, err := resolve(settings, outputFormat, img.Width(), img.Height())
	if err != nil {
		img.Close()
		return nil, wrap(failure.ErrInvalidDirective, err)
	}

	if err := ctx.Err(); err != nil {
		img.Close()
		return nil, wrap(failure.ErrCancelled, err)
	}

	out, err := s.apply(img, p)
	defer out.Close()
	if err != nil {
		return nil, wrap(failure.ErrEngine, err)
	}

	encoded, err := s.engine.Encode(out, p.output)
	if err != nil {
		return nil, wrap(failure.ErrEngine, err)
	}

	s.logger.Debug("image transformed",
		slog.String("source", src.Identity()),
		slog.String("directive", settings.Canonical()),
		slog.String("format", string(p.output.Format)),
		slog.Int("width", out.Width()),
		slog.Int("height", out.Height()),
		slog.Int("bytes", len(encoded)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		Data:        encoded,
		ContentType: p.output.ContentType(),
		Width:       out.Width(),
		Height:      out.Height(),
	}, nil
}

// resolve computes the whole plan against the decoded source size.
func resolve(settings directive.Settings, outputFormat string, srcW, srcH int) (plan, error) {
	var p plan
	var err error

	if p.sharpen, err = filter.SelectSharpen(settings.Sharpen); err != nil {
		return plan{}, err
	}
	p.blur = filter.SelectBlur(settings.Blur)

	if p.crop, err = geometry.ResolveCrop(settings, srcW, srcH); err != nil {
		return plan{}, err
	}
	if p.resize, err = geometry.ResolveResize(settings, srcW, srcH); err != nil {
		return plan{}, err
	}

	p.output = filter.SelectOutput(outputFormat, settings.Quality)
	return p, nil
}

// apply runs the pixel operations. The returned image is always the live
// one, even on error; images an operation replaced are closed. Engine panics
// surface as errors.
func (s *Service) apply(img raster.Image, p plan) (out raster.Image, err error) {
	out = img
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("image engine panic: %v", r)
		}
	}()

	step := func(next raster.Image, stepErr error) error {
		if stepErr != nil {
			return stepErr
		}
		if next != out {
			out.Close()
			out = next
		}
		return nil
	}

	if p.sharpen != nil {
		if err := step(s.engine.Sharpen(out, *p.sharpen)); err != nil {
			return out, err
		}
	}
	if p.blur > 0 {
		if err := step(s.engine.Blur(out, p.blur)); err != nil {
			return out, err
		}
	}
	if p.crop != nil {
		if err := step(s.engine.Crop(out, p.crop.Rect())); err != nil {
			return out, err
		}
	}
	if t := p.resize; t != nil {
		switch t.Mode {
		case geometry.ModeFill:
			err = step(s.engine.Fill(out, t.Width, t.Height, t.Anchor, t.Interpolation))
		case geometry.ModeSmart:
			err = step(s.engine.CropRegion(out, t.Width, t.Height, t.Strategy, t.Interpolation))
		default:
			w, h := geometry.FitWithin(out.Width(), out.Height(), t.Width, t.Height)
			err = step(s.engine.Resize(out, w, h, t.Interpolation))
		}
	}
	return out, err
}
