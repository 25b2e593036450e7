package raster

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/maauso/transform-api/internal/filter"
	"github.com/maauso/transform-api/internal/geometry"
)

// sharpenThreshold is the libvips x1 parameter: differences below it count
// as flat areas.
const sharpenThreshold = 2.0

// VipsConfig tunes the libvips runtime. The zero value keeps the govips defaults.
type VipsConfig struct {
	ConcurrencyLevel int
	MaxCacheMem      int
	MaxCacheSize     int
	MaxCacheFiles    int
}

var startOnce sync.Once

// VipsEngine implements Engine on libvips.
type VipsEngine struct{}

// NewVipsEngine starts libvips on first use and returns the engine. libvips
// log output is forwarded to logger.
func NewVipsEngine(cfg VipsConfig, logger *slog.Logger) *VipsEngine {
	if logger == nil {
		logger = slog.Default()
	}
	startOnce.Do(func() {
		vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
			logger.Log(context.Background(), logLevel(level), msg, slog.String("domain", domain))
		}, vips.LogLevelWarning)
		var vc *vips.Config
		if cfg != (VipsConfig{}) {
			vc = &vips.Config{
				ConcurrencyLevel: cfg.ConcurrencyLevel,
				MaxCacheMem:      cfg.MaxCacheMem,
				MaxCacheSize:     cfg.MaxCacheSize,
				MaxCacheFiles:    cfg.MaxCacheFiles,
			}
		}
		vips.Startup(vc)
	})
	return &VipsEngine{}
}

// Shutdown stops libvips. No engine may be used afterwards.
func Shutdown() {
	vips.Shutdown()
}

func logLevel(level vips.LogLevel) slog.Level {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		return slog.LevelError
	case vips.LogLevelWarning:
		return slog.LevelWarn
	case vips.LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Decode implements Engine.
func (e *VipsEngine) Decode(data []byte) (Image, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if err := ref.AutoRotate(); err != nil {
		ref.Close()
		return nil, fmt.Errorf("raster: auto-rotate: %w", err)
	}
	return ref, nil
}

// Sharpen implements Engine with the libvips unsharp mask. Jagged is the
// slope applied to edges above the flat threshold.
func (e *VipsEngine) Sharpen(img Image, op filter.Sharpen) (Image, error) {
	ref, err := asRef(img)
	if err != nil {
		return nil, err
	}
	if err := ref.Sharpen(op.Sigma, sharpenThreshold, op.Jagged); err != nil {
		return nil, fmt.Errorf("raster: sharpen: %w", err)
	}
	return ref, nil
}

// Blur implements Engine.
func (e *VipsEngine) Blur(img Image, sigma float64) (Image, error) {
	ref, err := asRef(img)
	if err != nil {
		return nil, err
	}
	if err := ref.GaussianBlur(sigma); err != nil {
		return nil, fmt.Errorf("raster: blur: %w", err)
	}
	return ref, nil
}

// Crop implements Engine.
func (e *VipsEngine) Crop(img Image, rect image.Rectangle) (Image, error) {
	ref, err := asRef(img)
	if err != nil {
		return nil, err
	}
	if err := ref.ExtractArea(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy()); err != nil {
		return nil, fmt.Errorf("raster: crop %v: %w", rect, err)
	}
	return ref, nil
}

// Resize implements Engine.
func (e *VipsEngine) Resize(img Image, width, height int, interp geometry.Interpolation) (Image, error) {
	ref, err := asRef(img)
	if err != nil {
		return nil, err
	}
	if err := resizeExact(ref, width, height, interp); err != nil {
		return nil, err
	}
	return ref, nil
}

// Fill implements Engine.
func (e *VipsEngine) Fill(img Image, width, height int, anchor geometry.Anchor, interp geometry.Interpolation) (Image, error) {
	ref, err := asRef(img)
	if err != nil {
		return nil, err
	}
	cw, ch := geometry.CoverSize(ref.Width(), ref.Height(), width, height)
	if err := resizeExact(ref, cw, ch, interp); err != nil {
		return nil, err
	}
	x, y := anchor.Offset(ref.Width(), ref.Height(), width, height)
	if err := ref.ExtractArea(x, y, width, height); err != nil {
		return nil, fmt.Errorf("raster: fill crop at %s: %w", anchor, err)
	}
	return ref, nil
}

// CropRegion implements Engine with the libvips smartcrop scorers.
func (e *VipsEngine) CropRegion(img Image, width, height int, strategy geometry.Strategy, interp geometry.Interpolation) (Image, error) {
	ref, err := asRef(img)
	if err != nil {
		return nil, err
	}
	cw, ch := geometry.CoverSize(ref.Width(), ref.Height(), width, height)
	if err := resizeExact(ref, cw, ch, interp); err != nil {
		return nil, err
	}

	interesting := vips.InterestingEntropy
	if strategy == geometry.StrategyAttention {
		interesting = vips.InterestingAttention
	}
	if err := ref.SmartCrop(width, height, interesting); err != nil {
		return nil, fmt.Errorf("raster: smart crop %s: %w", strategy, err)
	}
	return ref, nil
}

// Encode implements Engine. Metadata is never stripped and JPEG honours
// spec.Progressive.
func (e *VipsEngine) Encode(img Image, spec filter.OutputSpec) ([]byte, error) {
	ref, err := asRef(img)
	if err != nil {
		return nil, err
	}

	var out []byte
	switch spec.Format {
	case filter.FormatPNG:
		params := vips.NewPngExportParams()
		params.StripMetadata = false
		out, _, err = ref.ExportPng(params)
	case filter.FormatWebP:
		params := vips.NewWebpExportParams()
		params.StripMetadata = false
		params.Quality = spec.Quality
		params.Lossless = spec.Lossless
		out, _, err = ref.ExportWebp(params)
	default:
		params := vips.NewJpegExportParams()
		params.StripMetadata = false
		params.Quality = spec.Quality
		params.Interlace = spec.Progressive
		out, _, err = ref.ExportJpeg(params)
	}
	if err != nil {
		return nil, fmt.Errorf("raster: encode %s: %w", spec.Format, err)
	}
	return out, nil
}

func asRef(img Image) (*vips.ImageRef, error) {
	ref, ok := img.(*vips.ImageRef)
	if !ok {
		return nil, fmt.Errorf("raster: image %T was not decoded by libvips", img)
	}
	return ref, nil
}

func resizeExact(ref *vips.ImageRef, width, height int, interp geometry.Interpolation) error {
	if ref.Width() == width && ref.Height() == height {
		return nil
	}
	hscale := float64(width) / float64(ref.Width())
	vscale := float64(height) / float64(ref.Height())
	if err := ref.ResizeWithVScale(hscale, vscale, kernel(interp)); err != nil {
		return fmt.Errorf("raster: resize to %dx%d: %w", width, height, err)
	}
	return nil
}

func kernel(interp geometry.Interpolation) vips.Kernel {
	if interp == geometry.InterpolationHigh {
		return vips.KernelCubic
	}
	return vips.KernelLinear
}
