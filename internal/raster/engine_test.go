package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/transform-api/internal/filter"
	"github.com/maauso/transform-api/internal/geometry"
)

func TestMain(m *testing.M) {
	NewVipsEngine(VipsConfig{}, nil)
	code := m.Run()
	Shutdown()
	os.Exit(code)
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decode(t *testing.T, e *VipsEngine, src image.Image) Image {
	t.Helper()
	img, err := e.Decode(encodePNG(t, src))
	require.NoError(t, err)
	t.Cleanup(img.Close)
	return img
}

func TestVipsEngine_DecodePNG(t *testing.T) {
	e := NewVipsEngine(VipsConfig{}, nil)

	img := decode(t, e, gradient(40, 30))
	assert.Equal(t, 40, img.Width())
	assert.Equal(t, 30, img.Height())
}

func TestVipsEngine_DecodeRejectsGarbage(t *testing.T) {
	e := NewVipsEngine(VipsConfig{}, nil)

	_, err := e.Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestVipsEngine_CropIsExact(t *testing.T) {
	e := NewVipsEngine(VipsConfig{}, nil)

	out, err := e.Crop(decode(t, e, gradient(100, 100)), image.Rect(10, 10, 50, 50))
	require.NoError(t, err)
	assert.Equal(t, 40, out.Width())
	assert.Equal(t, 40, out.Height())
}

func TestVipsEngine_ResizeAndFill(t *testing.T) {
	e := NewVipsEngine(VipsConfig{}, nil)

	resized, err := e.Resize(decode(t, e, gradient(200, 100)), 50, 25, geometry.InterpolationFast)
	require.NoError(t, err)
	assert.Equal(t, 50, resized.Width())
	assert.Equal(t, 25, resized.Height())

	filled, err := e.Fill(decode(t, e, gradient(200, 100)), 60, 60, geometry.AnchorNorthWest, geometry.InterpolationHigh)
	require.NoError(t, err)
	assert.Equal(t, 60, filled.Width())
	assert.Equal(t, 60, filled.Height())
}

func TestVipsEngine_CropRegionPicksBusyHalf(t *testing.T) {
	e := NewVipsEngine(VipsConfig{}, nil)

	// flat left half, busy right half
	src := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			c := color.NRGBA{R: 90, G: 90, B: 90, A: 255}
			if x >= 100 && (x+y)%2 == 0 {
				c = color.NRGBA{R: uint8(x), G: uint8(y * 2), B: uint8(255 - x), A: 255}
			}
			src.Set(x, y, c)
		}
	}

	for _, strategy := range []geometry.Strategy{geometry.StrategyEntropy, geometry.StrategyAttention} {
		t.Run(string(strategy), func(t *testing.T) {
			out, err := e.CropRegion(decode(t, e, src), 100, 100, strategy, geometry.InterpolationFast)
			require.NoError(t, err)
			require.Equal(t, 100, out.Width())
			require.Equal(t, 100, out.Height())

			data, err := e.Encode(out, filter.OutputSpec{Format: filter.FormatPNG, Lossless: true})
			require.NoError(t, err)
			cropped, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)

			// the flat half alone has a single color
			colors := map[color.Color]struct{}{}
			b := cropped.Bounds()
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					colors[cropped.At(x, y)] = struct{}{}
				}
			}
			assert.Greater(t, len(colors), 10)
		})
	}
}

func TestVipsEngine_SharpenAndBlurKeepSize(t *testing.T) {
	e := NewVipsEngine(VipsConfig{}, nil)
	img := decode(t, e, gradient(20, 20))

	img, err := e.Sharpen(img, filter.Sharpen{Sigma: 1, Flat: 0.4, Jagged: 0.6})
	require.NoError(t, err)
	img, err = e.Blur(img, 1.5)
	require.NoError(t, err)

	assert.Equal(t, 20, img.Width())
	assert.Equal(t, 20, img.Height())
}

func TestVipsEngine_Encode(t *testing.T) {
	e := NewVipsEngine(VipsConfig{}, nil)

	t.Run("progressive jpeg", func(t *testing.T) {
		data, err := e.Encode(decode(t, e, gradient(32, 16)), filter.OutputSpec{Format: filter.FormatJPEG, Quality: 80, Progressive: true})
		require.NoError(t, err)
		assert.True(t, bytes.Contains(data, []byte{0xFF, 0xC2}), "SOF2 marker")

		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 32, cfg.Width)
	})

	t.Run("png", func(t *testing.T) {
		data, err := e.Encode(decode(t, e, gradient(32, 16)), filter.OutputSpec{Format: filter.FormatPNG, Lossless: true})
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 16, cfg.Height)
	})

	t.Run("webp round trips through Decode", func(t *testing.T) {
		data, err := e.Encode(decode(t, e, gradient(32, 16)), filter.OutputSpec{Format: filter.FormatWebP, Quality: 75})
		require.NoError(t, err)
		img, err := e.Decode(data)
		require.NoError(t, err)
		defer img.Close()
		assert.Equal(t, 32, img.Width())
	})
}

type foreignImage struct{}

func (foreignImage) Width() int  { return 1 }
func (foreignImage) Height() int { return 1 }
func (foreignImage) Close()      {}

func TestVipsEngine_RejectsForeignImages(t *testing.T) {
	e := NewVipsEngine(VipsConfig{}, nil)

	_, err := e.Blur(foreignImage{}, 1)
	assert.Error(t, err)
}
