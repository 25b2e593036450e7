// Package geometry resolves directive settings into absolute crop boxes and
// resize targets. All validation happens here, before any pixel is touched.
package geometry

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/maauso/transform-api/internal/directive"
	"github.com/maauso/transform-api/internal/failure"
)

// Interpolation selects the resampling filter family.
type Interpolation int

const (
	// InterpolationFast is used for small targets.
	InterpolationFast Interpolation = iota
	// InterpolationHigh is used when a target exceeds 300x200.
	InterpolationHigh
)

func (i Interpolation) String() string {
	if i == InterpolationHigh {
		return "high"
	}
	return "fast"
}

// Mode is the resize policy.
type Mode int

const (
	// ModeFit scales to fit inside the target box, preserving aspect.
	ModeFit Mode = iota
	// ModeFill covers the target box and crops at Anchor.
	ModeFill
	// ModeSmart covers the target box and crops the most salient region.
	ModeSmart
)

func (m Mode) String() string {
	switch m {
	case ModeFill:
		return "fill"
	case ModeSmart:
		return "smart"
	default:
		return "fit"
	}
}

// Strategy is a content-aware crop strategy.
type Strategy string

// Content-aware strategies.
const (
	StrategyEntropy   Strategy = "entropy"
	StrategyAttention Strategy = "attention"
)

// Anchor is the part of a covered image a Fill crop keeps.
type Anchor int

// Directional anchors.
const (
	AnchorCenter Anchor = iota
	AnchorNorth
	AnchorNorthEast
	AnchorEast
	AnchorSouthEast
	AnchorSouth
	AnchorSouthWest
	AnchorWest
	AnchorNorthWest
)

var anchorNames = [...]string{"center", "north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}

func (a Anchor) String() string {
	if a < 0 || int(a) >= len(anchorNames) {
		return fmt.Sprintf("Anchor(%d)", int(a))
	}
	return anchorNames[a]
}

// Offset returns the top-left corner of a w x h window placed at a inside a
// srcW x srcH image.
func (a Anchor) Offset(srcW, srcH, w, h int) (int, int) {
	x, y := (srcW-w)/2, (srcH-h)/2
	switch a {
	case AnchorNorthWest, AnchorWest, AnchorSouthWest:
		x = 0
	case AnchorNorthEast, AnchorEast, AnchorSouthEast:
		x = srcW - w
	}
	switch a {
	case AnchorNorthWest, AnchorNorth, AnchorNorthEast:
		y = 0
	case AnchorSouthWest, AnchorSouth, AnchorSouthEast:
		y = srcH - h
	}
	return max(x, 0), max(y, 0)
}

// CropBox is an explicit crop in absolute source pixels.
type CropBox struct {
	Left, Top, Width, Height int
}

// Rect returns the box as an image rectangle.
func (c CropBox) Rect() image.Rectangle {
	return image.Rect(c.Left, c.Top, c.Left+c.Width, c.Top+c.Height)
}

func (c CropBox) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", c.Left, c.Top, c.Width, c.Height)
}

// ResizeTarget is a resolved resize. Zero Width or Height means the side is
// derived from the aspect ratio.
type ResizeTarget struct {
	Width, Height int
	Interpolation Interpolation
	Mode          Mode
	Anchor        Anchor
	Strategy      Strategy
}

var anchors = map[string]Anchor{
	"north":     AnchorNorth,
	"northeast": AnchorNorthEast,
	"east":      AnchorEast,
	"southeast": AnchorSouthEast,
	"south":     AnchorSouth,
	"southwest": AnchorSouthWest,
	"west":      AnchorWest,
	"northwest": AnchorNorthWest,
	"center":    AnchorCenter,
	"centre":    AnchorCenter,
}

// ParseGravity matches g against the directional anchors and the
// content-aware strategies. ok is false for anything else.
func ParseGravity(g string) (anchor Anchor, strategy Strategy, ok bool) {
	g = strings.ToLower(strings.TrimSpace(g))
	if a, found := anchors[g]; found {
		return a, "", true
	}
	switch Strategy(g) {
	case StrategyEntropy, StrategyAttention:
		return AnchorCenter, Strategy(g), true
	}
	return AnchorCenter, "", false
}

// ResolveCrop returns the explicit crop box, or nil when any of x, y, x2, y2
// is missing. Coordinates up to 1 are fractions of the source dimension.
func ResolveCrop(s directive.Settings, srcW, srcH int) (*CropBox, error) {
	if !s.HasCrop() {
		return nil, nil
	}

	x, err := coordinate("x", *s.X, srcW)
	if err != nil {
		return nil, err
	}
	y, err := coordinate("y", *s.Y, srcH)
	if err != nil {
		return nil, err
	}
	x2, err := coordinate("x2", *s.X2, srcW)
	if err != nil {
		return nil, err
	}
	y2, err := coordinate("y2", *s.Y2, srcH)
	if err != nil {
		return nil, err
	}

	box := CropBox{Left: x, Top: y, Width: x2 - x, Height: y2 - y}
	if box.Width <= 0 || box.Height <= 0 {
		return nil, failure.Invalid("geometry.crop", "empty crop box %s", box).
			With("source_size", sizeString(srcW, srcH))
	}
	if x2 > srcW || y2 > srcH {
		return nil, failure.Invalid("geometry.crop", "crop box %s exceeds source", box).
			With("source_size", sizeString(srcW, srcH))
	}
	return &box, nil
}

// coordinate resolves one crop corner. Absolute values must be whole pixels.
func coordinate(name string, v float64, dim int) (int, error) {
	if v < 0 {
		return 0, failure.Invalid("geometry.crop", "%s is negative", name)
	}
	if v <= 1 {
		return int(math.Round(v * float64(dim))), nil
	}
	if v != math.Trunc(v) {
		return 0, failure.Invalid("geometry.crop", "%s=%v is not a whole pixel", name, v)
	}
	return int(v), nil
}

// ResolveResize returns the resize target, or nil when neither w nor h is
// set. srcW and srcH are the dimensions of the decoded source; values up to 1
// are scaled by dimension/100.
func ResolveResize(s directive.Settings, srcW, srcH int) (*ResizeTarget, error) {
	if !s.HasResize() {
		return nil, nil
	}

	w := dimension(s.Width, srcW)
	h := dimension(s.Height, srcH)

	t := &ResizeTarget{
		Width:         int(math.Trunc(w)),
		Height:        int(math.Trunc(h)),
		Interpolation: InterpolationFast,
		Mode:          ModeFit,
		Anchor:        AnchorCenter,
	}
	if t.Width == 0 && t.Height == 0 {
		return nil, failure.Invalid("geometry.resize", "resize target resolves to nothing").
			With("source_size", sizeString(srcW, srcH))
	}
	// The threshold sees the untruncated values.
	if w > 300 || h > 200 {
		t.Interpolation = InterpolationHigh
	}

	both := t.Width > 0 && t.Height > 0
	fill := s.ScaleModeSet && s.ScaleMode == directive.ScaleFill
	if fill && s.Gravity == "" && both {
		t.Mode = ModeFill
	}
	if both && s.Gravity != "" {
		if anchor, strategy, ok := ParseGravity(s.Gravity); ok {
			t.Anchor = anchor
			t.Strategy = strategy
			t.Mode = ModeFill
			if strategy != "" {
				t.Mode = ModeSmart
			}
		}
	}
	return t, nil
}

func dimension(v *float64, dim int) float64 {
	if v == nil {
		return 0
	}
	f := *v
	if f <= 1 {
		f *= float64(dim) / 100
	}
	return f
}

// FitWithin returns the largest size with the aspect ratio of srcW x srcH
// that fits inside w x h. A zero side is unconstrained.
func FitWithin(srcW, srcH, w, h int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	sw, sh := float64(srcW), float64(srcH)
	var ratio float64
	switch {
	case w > 0 && h > 0:
		ratio = math.Min(float64(w)/sw, float64(h)/sh)
	case w > 0:
		ratio = float64(w) / sw
	default:
		ratio = float64(h) / sh
	}
	return atLeastOne(sw * ratio), atLeastOne(sh * ratio)
}

// CoverSize returns the smallest size with the aspect ratio of srcW x srcH
// that covers w x h.
func CoverSize(srcW, srcH, w, h int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	sw, sh := float64(srcW), float64(srcH)
	ratio := math.Max(float64(w)/sw, float64(h)/sh)
	cw, ch := atLeastOne(sw*ratio), atLeastOne(sh*ratio)
	if cw < w {
		cw = w
	}
	if ch < h {
		ch = h
	}
	return cw, ch
}

func atLeastOne(f float64) int {
	n := int(math.Round(f))
	if n < 1 {
		return 1
	}
	return n
}

func sizeString(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}
