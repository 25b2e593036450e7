// Package filter maps settings to sharpen and blur operations and to the
// output encoding.
package filter

import (
	"strings"

	"github.com/maauso/transform-api/internal/directive"
	"github.com/maauso/transform-api/internal/failure"
)

const (
	// DefaultQuality applies when q is absent.
	DefaultQuality = 100

	// SharpenThreshold is the smallest bare sharpen amount that has an effect.
	SharpenThreshold = 0.5
	// BlurThreshold is the smallest blur amount that has an effect.
	BlurThreshold = 0.3

	// DefaultSharpenSigma is used by the "default" preset.
	DefaultSharpenSigma = 0.5
	// DefaultFlat and DefaultJagged fill in omitted sharpen parameters.
	DefaultFlat   = 1.0
	DefaultJagged = 2.0
)

// Sharpen is a resolved sharpen operation.
type Sharpen struct {
	Sigma  float64
	Flat   float64
	Jagged float64
}

// kirpan is the named preset (sigma 1, flat 0.4, jagged 0.6).
var kirpan = Sharpen{Sigma: 1, Flat: 0.4, Jagged: 0.6}

// SelectSharpen resolves the sh directive. It returns nil when sharpening is
// off or below threshold.
func SelectSharpen(spec *directive.SharpenSpec) (*Sharpen, error) {
	if spec == nil {
		return nil, nil
	}

	switch spec.Preset {
	case directive.SharpenKirpan:
		op := kirpan
		return &op, nil
	case directive.SharpenDefault:
		return &Sharpen{Sigma: DefaultSharpenSigma, Flat: DefaultFlat, Jagged: DefaultJagged}, nil
	}

	if !spec.Explicit {
		if len(spec.Params) != 1 || spec.Params[0] < SharpenThreshold {
			return nil, nil
		}
		return &Sharpen{Sigma: spec.Params[0], Flat: DefaultFlat, Jagged: DefaultJagged}, nil
	}

	params := spec.Params
	if len(params) == 0 || len(params) > 3 {
		return nil, failure.Invalid("filter.sharpen", "sharpen takes 1 to 3 parameters, got %d", len(params))
	}
	for _, p := range params {
		if p < 0 {
			return nil, failure.Invalid("filter.sharpen", "negative sharpen parameter %v", p)
		}
	}
	if params[0] == 0 {
		return nil, failure.Invalid("filter.sharpen", "sharpen sigma must be positive")
	}
	op := Sharpen{Sigma: params[0], Flat: DefaultFlat, Jagged: DefaultJagged}
	if len(params) > 1 {
		op.Flat = params[1]
	}
	if len(params) > 2 {
		op.Jagged = params[2]
	}
	return &op, nil
}

// SelectBlur returns the blur sigma, or 0 when blur is off or below threshold.
func SelectBlur(amount *float64) float64 {
	if amount == nil || *amount < BlurThreshold {
		return 0
	}
	return *amount
}

// Format is an image output format.
type Format string

// Output formats.
const (
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// OutputSpec drives the final encode. It is a value type and never mutated.
type OutputSpec struct {
	Format      Format
	Quality     int
	Progressive bool
	Lossless    bool
}

// ContentType returns the MIME type of the encoded output.
func (o OutputSpec) ContentType() string {
	switch o.Format {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// SelectOutput picks the encoding from the requested extension alone.
func SelectOutput(ext string, quality *int) OutputSpec {
	q := DefaultQuality
	if quality != nil {
		q = *quality
	}

	switch normalizeExt(ext) {
	case "png":
		return OutputSpec{Format: FormatPNG, Quality: q, Lossless: true}
	case "webp":
		return OutputSpec{Format: FormatWebP, Quality: q}
	default:
		return OutputSpec{Format: FormatJPEG, Quality: q, Progressive: true}
	}
}

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/jpeg",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"m3u8": "application/x-mpegURL",
	"ts":   "video/MP2T",
}

// ContentType maps a file extension to its MIME type. Unknown extensions
// return application/octet-stream.
func ContentType(ext string) string {
	if ct, ok := contentTypes[normalizeExt(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// IsVideo reports whether ext names a transcodable video container.
func IsVideo(ext string) bool {
	switch normalizeExt(ext) {
	case "mp4", "webm":
		return true
	}
	return false
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
