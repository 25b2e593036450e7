package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/transform-api/internal/failure"
)

func TestDecode_GeometryAndQuality(t *testing.T) {
	s, err := ParseSettings("", "x_10,y_10,x2_50,y2_50,w_100,h_100,g_center,q_75.9")
	require.NoError(t, err)

	require.True(t, s.HasCrop())
	require.True(t, s.HasResize())
	assert.InDelta(t, 10, *s.X, 1e-9)
	assert.InDelta(t, 50, *s.Y2, 1e-9)
	assert.InDelta(t, 100, *s.Width, 1e-9)
	assert.Equal(t, "center", s.Gravity)
	assert.Equal(t, 75, *s.Quality, "quality truncates")
}

func TestDecode_JSONStringNumbers(t *testing.T) {
	s, err := ParseSettings(`{"q":"80"}`, "")
	require.NoError(t, err)
	require.NotNil(t, s.Quality)
	assert.Equal(t, 80, *s.Quality)
}

func TestDecode_JSONAndTokensAgree(t *testing.T) {
	fromJSON, err := ParseSettings(`{"w":300,"h":"200","sm":"cover"}`, "")
	require.NoError(t, err)
	fromTokens, err := ParseSettings("", "w_300,h_200,sm_cover")
	require.NoError(t, err)

	assert.Equal(t, fromTokens.Canonical(), fromJSON.Canonical())
	assert.Equal(t, "h=200,sm=fill,w=300", fromJSON.Canonical())
}

func TestDecode_Sharpen(t *testing.T) {
	tests := []struct {
		name    string
		segment string
		want    SharpenSpec
	}{
		{name: "preset", segment: "sh_kirpan", want: SharpenSpec{Preset: SharpenKirpan}},
		{name: "default preset", segment: "sh_Default", want: SharpenSpec{Preset: SharpenDefault}},
		{name: "number", segment: "sh_0.8", want: SharpenSpec{Params: []float64{0.8}}},
		{name: "sequence", segment: "sh_2_0.5_1", want: SharpenSpec{Params: []float64{2, 0.5, 1}, Explicit: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSettings("", tt.segment)
			require.NoError(t, err)
			require.NotNil(t, s.Sharpen)
			assert.Equal(t, tt.want, *s.Sharpen)
		})
	}
}

func TestDecode_Video(t *testing.T) {
	s, err := ParseSettings("", "bv_0,ba_64,s_5,d_2.5,w_640")
	require.NoError(t, err)

	assert.Equal(t, 0, *s.VideoBitrate)
	assert.Equal(t, 64, *s.AudioBitrate)
	assert.Equal(t, "5", s.Seek)
	assert.Equal(t, "2.5", s.Duration)
}

func TestDecode_ClockSeekNeedsJSON(t *testing.T) {
	// ":" separates token parts, so clock times only survive the JSON syntax.
	_, err := ParseSettings("", "s_00:00:05")
	assert.ErrorIs(t, err, failure.ErrInvalidDirective)

	s, err := ParseSettings(`{"s":"00:00:05"}`, "")
	require.NoError(t, err)
	assert.Equal(t, "00:00:05", s.Seek)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		segment string
	}{
		{name: "non-numeric width", segment: "w_abc"},
		{name: "sequence for scalar key", segment: "w_100,w_200"},
		{name: "unknown key", segment: "zz_1"},
		{name: "quality out of range", segment: "q_101"},
		{name: "quality zero", segment: "q_0"},
		{name: "negative bitrate", segment: "bv_-1"},
		{name: "negative crop", segment: "x_-1"},
		{name: "bad seek", segment: "s_soon"},
		{name: "bad scale mode", segment: "sm_stretch"},
		{name: "non-numeric sharpen", segment: "sh_lots"},
		{name: "bad slug", segment: "slug_.hidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings("", tt.segment)
			require.Error(t, err)
			assert.ErrorIs(t, err, failure.ErrInvalidDirective)
		})
	}
}

func TestSettings_WithSlug(t *testing.T) {
	s, err := ParseSettings("", "w_10")
	require.NoError(t, err)

	scoped := s.WithSlug("gallery")
	assert.Equal(t, "gallery", scoped.Slug)
	assert.Empty(t, s.Slug)
	assert.Equal(t, "slug=gallery,w=10", scoped.Canonical())
}

func TestValidNamespace(t *testing.T) {
	for _, ok := range []string{"gallery", "2024", "a.b-c_d"} {
		assert.True(t, ValidNamespace(ok), ok)
	}
	for _, bad := range []string{"", ".hidden", "a/b", "a..b", "-x"} {
		assert.False(t, ValidNamespace(bad), bad)
	}
}
