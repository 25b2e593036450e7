package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/transform-api/internal/directive"
	"github.com/maauso/transform-api/internal/failure"
)

func settings(t *testing.T, segment string) directive.Settings {
	t.Helper()
	s, err := directive.ParseSettings("", segment)
	require.NoError(t, err)
	return s
}

func TestResolveCrop_AbsolutePixels(t *testing.T) {
	box, err := ResolveCrop(settings(t, "x_10,y_10,x2_50,y2_50"), 1000, 1000)
	require.NoError(t, err)
	require.NotNil(t, box)

	assert.Equal(t, CropBox{Left: 10, Top: 10, Width: 40, Height: 40}, *box)
}

func TestResolveCrop_Fractions(t *testing.T) {
	box, err := ResolveCrop(settings(t, "x_0.25,y_0,x2_0.5,y2_1"), 200, 300)
	require.NoError(t, err)
	require.NotNil(t, box)

	assert.Equal(t, CropBox{Left: 50, Top: 0, Width: 50, Height: 300}, *box)
}

func TestResolveCrop_FractionRounds(t *testing.T) {
	got, err := coordinate("x", 0.5, 200)
	require.NoError(t, err)
	assert.Equal(t, 100, got)

	got, err = coordinate("x", 0.333, 100)
	require.NoError(t, err)
	assert.Equal(t, 33, got)

	got, err = coordinate("x", 0.335, 100)
	require.NoError(t, err)
	assert.Equal(t, 34, got)
}

func TestResolveCrop_IncompleteIsNil(t *testing.T) {
	box, err := ResolveCrop(settings(t, "x_10,y_10,x2_50"), 1000, 1000)
	require.NoError(t, err)
	assert.Nil(t, box)
}

func TestResolveCrop_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		segment string
	}{
		{name: "zero width", segment: "x_50,y_10,x2_50,y2_60"},
		{name: "inverted", segment: "x_60,y_10,x2_50,y2_60"},
		{name: "outside source", segment: "x_10,y_10,x2_2000,y2_60"},
		{name: "fractional pixel", segment: "x_10.5,y_10,x2_50,y2_60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveCrop(settings(t, tt.segment), 1000, 1000)
			require.Error(t, err)
			assert.ErrorIs(t, err, failure.ErrInvalidDirective)
		})
	}
}

func TestResolveResize_Pixels(t *testing.T) {
	target, err := ResolveResize(settings(t, "w_640"), 1000, 1000)
	require.NoError(t, err)
	require.NotNil(t, target)

	assert.Equal(t, 640, target.Width)
	assert.Equal(t, 0, target.Height)
	assert.Equal(t, ModeFit, target.Mode)
	assert.Equal(t, InterpolationHigh, target.Interpolation)
}

func TestResolveResize_Percent(t *testing.T) {
	// 0.5 * 1000/100 = 5
	target, err := ResolveResize(settings(t, "w_0.5,h_1"), 1000, 800)
	require.NoError(t, err)
	require.NotNil(t, target)

	assert.Equal(t, 5, target.Width)
	assert.Equal(t, 8, target.Height)
	assert.Equal(t, InterpolationFast, target.Interpolation)
}

func TestResolveResize_ResolvesToNothing(t *testing.T) {
	_, err := ResolveResize(settings(t, "w_0.05"), 100, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrInvalidDirective)
}

func TestResolveResize_NoResize(t *testing.T) {
	target, err := ResolveResize(settings(t, "q_80"), 100, 100)
	require.NoError(t, err)
	assert.Nil(t, target)
}

func TestResolveResize_InterpolationThreshold(t *testing.T) {
	tests := []struct {
		segment string
		want    Interpolation
	}{
		{segment: "w_300,h_200", want: InterpolationFast},
		{segment: "w_301", want: InterpolationHigh},
		{segment: "h_201", want: InterpolationHigh},
		{segment: "w_100,h_100", want: InterpolationFast},
		{segment: "w_300.5", want: InterpolationHigh},
		{segment: "h_200.5", want: InterpolationHigh},
	}

	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			target, err := ResolveResize(settings(t, tt.segment), 1000, 1000)
			require.NoError(t, err)
			assert.Equal(t, tt.want, target.Interpolation)
		})
	}
}

func TestResolveResize_ScaleModePolicy(t *testing.T) {
	tests := []struct {
		name     string
		segment  string
		mode     Mode
		anchor   Anchor
		strategy Strategy
	}{
		{name: "default is fit", segment: "w_100,h_100", mode: ModeFit, anchor: AnchorCenter},
		{name: "fill without gravity covers", segment: "w_100,h_100,sm_fill", mode: ModeFill, anchor: AnchorCenter},
		{name: "cover alias", segment: "w_100,h_100,sm_cover", mode: ModeFill, anchor: AnchorCenter},
		{name: "fill with one side fits", segment: "w_100,sm_fill", mode: ModeFit, anchor: AnchorCenter},
		{name: "directional gravity", segment: "w_100,h_100,g_northeast", mode: ModeFill, anchor: AnchorNorthEast},
		{name: "gravity is case-insensitive", segment: "w_100,h_100,g_SouthWest", mode: ModeFill, anchor: AnchorSouthWest},
		{name: "centre spelling", segment: "w_100,h_100,g_centre", mode: ModeFill, anchor: AnchorCenter},
		{name: "entropy strategy", segment: "w_100,h_100,g_entropy", mode: ModeSmart, anchor: AnchorCenter, strategy: StrategyEntropy},
		{name: "attention strategy", segment: "w_100,h_100,g_attention", mode: ModeSmart, anchor: AnchorCenter, strategy: StrategyAttention},
		{name: "unknown gravity keeps fit", segment: "w_100,h_100,g_face", mode: ModeFit, anchor: AnchorCenter},
		{name: "unknown gravity with fill keeps fit", segment: "w_100,h_100,g_face,sm_fill", mode: ModeFit, anchor: AnchorCenter},
		{name: "gravity needs both sides", segment: "w_100,g_north", mode: ModeFit, anchor: AnchorCenter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := ResolveResize(settings(t, tt.segment), 1000, 1000)
			require.NoError(t, err)
			require.NotNil(t, target)

			assert.Equal(t, tt.mode, target.Mode)
			assert.Equal(t, tt.anchor, target.Anchor)
			assert.Equal(t, tt.strategy, target.Strategy)
		})
	}
}

func TestResolveResize_FractionalPixelsTruncate(t *testing.T) {
	target, err := ResolveResize(settings(t, "w_300.5,h_120.9"), 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, 300, target.Width)
	assert.Equal(t, 120, target.Height)
	assert.Equal(t, InterpolationHigh, target.Interpolation)
}

func TestAnchor_Offset(t *testing.T) {
	tests := []struct {
		anchor Anchor
		x, y   int
	}{
		{anchor: AnchorCenter, x: 50, y: 25},
		{anchor: AnchorNorth, x: 50, y: 0},
		{anchor: AnchorNorthEast, x: 100, y: 0},
		{anchor: AnchorEast, x: 100, y: 25},
		{anchor: AnchorSouthEast, x: 100, y: 50},
		{anchor: AnchorSouth, x: 50, y: 50},
		{anchor: AnchorSouthWest, x: 0, y: 50},
		{anchor: AnchorWest, x: 0, y: 25},
		{anchor: AnchorNorthWest, x: 0, y: 0},
	}

	for _, tt := range tests {
		t.Run(tt.anchor.String(), func(t *testing.T) {
			x, y := tt.anchor.Offset(200, 100, 100, 50)
			assert.Equal(t, tt.x, x)
			assert.Equal(t, tt.y, y)
		})
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		w, h         int
		wantW, wantH int
	}{
		{name: "landscape into square", srcW: 400, srcH: 200, w: 100, h: 100, wantW: 100, wantH: 50},
		{name: "portrait into square", srcW: 200, srcH: 400, w: 100, h: 100, wantW: 50, wantH: 100},
		{name: "width only", srcW: 400, srcH: 200, w: 200, wantW: 200, wantH: 100},
		{name: "height only", srcW: 400, srcH: 200, h: 50, wantW: 100, wantH: 50},
		{name: "enlarges", srcW: 40, srcH: 40, w: 100, h: 100, wantW: 100, wantH: 100},
		{name: "never collapses", srcW: 1000, srcH: 1, w: 10, wantW: 10, wantH: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitWithin(tt.srcW, tt.srcH, tt.w, tt.h)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestCoverSize(t *testing.T) {
	w, h := CoverSize(400, 200, 100, 100)
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)

	w, h = CoverSize(40, 40, 100, 100)
	assert.Equal(t, 100, w)
	assert.Equal(t, 100, h)
}

func TestCropBox_Rect(t *testing.T) {
	r := CropBox{Left: 10, Top: 20, Width: 30, Height: 40}.Rect()
	assert.Equal(t, 10, r.Min.X)
	assert.Equal(t, 20, r.Min.Y)
	assert.Equal(t, 40, r.Max.X)
	assert.Equal(t, 60, r.Max.Y)
}
