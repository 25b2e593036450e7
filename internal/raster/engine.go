// Package raster is the image engine: decode, pixel operations and encode.
// The production engine runs on libvips through govips.
package raster

import (
	"errors"
	"image"

	"github.com/maauso/transform-api/internal/filter"
	"github.com/maauso/transform-api/internal/geometry"
)

// ErrUnsupportedFormat is returned when the engine cannot load the input.
var ErrUnsupportedFormat = errors.New("raster: unknown or unsupported format")

// Image is a decoded image owned by an Engine. Metadata read at decode time
// travels with it until Encode.
type Image interface {
	Width() int
	Height() int
	// Close releases the pixel buffer.
	Close()
}

// Engine is the set of image operations the transform pipeline needs.
// Operations may modify img in place and return it.
type Engine interface {
	// Decode loads an image and applies its EXIF orientation.
	Decode(data []byte) (Image, error)
	Sharpen(img Image, op filter.Sharpen) (Image, error)
	Blur(img Image, sigma float64) (Image, error)
	Crop(img Image, rect image.Rectangle) (Image, error)
	// Resize scales to exactly width x height.
	Resize(img Image, width, height int, interp geometry.Interpolation) (Image, error)
	// Fill covers width x height and crops at anchor.
	Fill(img Image, width, height int, anchor geometry.Anchor, interp geometry.Interpolation) (Image, error)
	// CropRegion covers width x height and keeps the most interesting region.
	CropRegion(img Image, width, height int, strategy geometry.Strategy, interp geometry.Interpolation) (Image, error)
	// Encode writes img with its metadata preserved.
	Encode(img Image, spec filter.OutputSpec) ([]byte, error)
}
