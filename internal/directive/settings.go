package directive

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/transform-api/internal/failure"
)

// ScaleMode selects how a resize fits the target box.
type ScaleMode int

const (
	// ScaleFit keeps the whole image inside the target box.
	ScaleFit ScaleMode = iota
	// ScaleFill covers the target box, cropping the overflow.
	ScaleFill
)

func (m ScaleMode) String() string {
	if m == ScaleFill {
		return "fill"
	}
	return "fit"
}

// Sharpen presets.
const (
	SharpenKirpan  = "kirpan"
	SharpenDefault = "default"
)

// SharpenSpec is the decoded "sh" directive.
type SharpenSpec struct {
	// Preset is SharpenKirpan, SharpenDefault or empty.
	Preset string
	// Params holds the numeric arguments. The scalar form has exactly one.
	Params []float64
	// Explicit is true when the directive was a sequence of arguments.
	Explicit bool
}

func (s SharpenSpec) String() string {
	if s.Preset != "" {
		return s.Preset
	}
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = formatFloat(p)
	}
	if s.Explicit {
		return "[" + strings.Join(parts, " ") + "]"
	}
	return strings.Join(parts, "")
}

// Settings is the typed, validated form of a directive set. It is immutable
// once returned by Decode.
type Settings struct {
	Quality *int         `validate:"omitempty,min=1,max=100"`
	Sharpen *SharpenSpec `validate:"-"`
	Blur    *float64     `validate:"omitempty,min=0"`
	Gravity string       `validate:"omitempty,max=32"`

	X  *float64 `validate:"omitempty,min=0"`
	Y  *float64 `validate:"omitempty,min=0"`
	X2 *float64 `validate:"omitempty,min=0"`
	Y2 *float64 `validate:"omitempty,min=0"`

	Width     *float64 `validate:"omitempty,min=0"`
	Height    *float64 `validate:"omitempty,min=0"`
	ScaleMode ScaleMode
	// ScaleModeSet records whether "sm" was given at all.
	ScaleModeSet bool

	Seek     string `validate:"omitempty,timespec"`
	Duration string `validate:"omitempty,timespec"`

	VideoBitrate *int `validate:"omitempty,min=0"`
	AudioBitrate *int `validate:"omitempty,min=0"`

	Slug string `validate:"omitempty,namespace"`
}

// HasCrop reports whether all four crop corners are present.
func (s Settings) HasCrop() bool {
	return s.X != nil && s.Y != nil && s.X2 != nil && s.Y2 != nil
}

// HasResize reports whether a width or height target is present.
func (s Settings) HasResize() bool {
	return s.Width != nil || s.Height != nil
}

// WithSlug returns a copy of s with the namespace set.
func (s Settings) WithSlug(slug string) Settings {
	s.Slug = slug
	return s
}

// Canonical renders every set field as sorted key=value pairs. Two settings
// that produce the same output render identically.
func (s Settings) Canonical() string {
	kv := map[string]string{}
	if s.Quality != nil {
		kv["q"] = strconv.Itoa(*s.Quality)
	}
	if s.Sharpen != nil {
		kv["sh"] = s.Sharpen.String()
	}
	putFloat(kv, "bl", s.Blur)
	if s.Gravity != "" {
		kv["g"] = s.Gravity
	}
	putFloat(kv, "x", s.X)
	putFloat(kv, "y", s.Y)
	putFloat(kv, "x2", s.X2)
	putFloat(kv, "y2", s.Y2)
	putFloat(kv, "w", s.Width)
	putFloat(kv, "h", s.Height)
	if s.ScaleModeSet {
		kv["sm"] = s.ScaleMode.String()
	}
	if s.Seek != "" {
		kv["s"] = s.Seek
	}
	if s.Duration != "" {
		kv["d"] = s.Duration
	}
	if s.VideoBitrate != nil {
		kv["bv"] = strconv.Itoa(*s.VideoBitrate)
	}
	if s.AudioBitrate != nil {
		kv["ba"] = strconv.Itoa(*s.AudioBitrate)
	}
	if s.Slug != "" {
		kv["slug"] = s.Slug
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + kv[k]
	}
	return strings.Join(parts, ",")
}

func putFloat(kv map[string]string, key string, v *float64) {
	if v != nil {
		kv[key] = formatFloat(*v)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var (
	timespecPattern  = regexp.MustCompile(`^(\d+(\.\d+)?|(\d+:)?\d{1,2}:\d{1,2}(\.\d+)?)$`)
	namespacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("timespec", func(fl validator.FieldLevel) bool {
		return timespecPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("namespace", func(fl validator.FieldLevel) bool {
		return ValidNamespace(fl.Field().String())
	})
	return v
}

// ValidNamespace reports whether s can name a directory under the public root.
func ValidNamespace(s string) bool {
	return namespacePattern.MatchString(s) && !strings.Contains(s, "..")
}

// Decode types and validates raw directives. Unknown keys, non-numeric values
// for numeric keys and sequences where a scalar is required are rejected with
// failure.ErrInvalidDirective.
func Decode(d Directives) (Settings, error) {
	var s Settings
	for _, key := range d.keys {
		v := d.values[key]
		if err := s.set(key, v); err != nil {
			return Settings{}, failure.New(failure.ErrInvalidDirective, "directive.decode", err).
				With("directive", d.String())
		}
	}

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			err = fmt.Errorf("%s fails %q constraint (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return Settings{}, failure.New(failure.ErrInvalidDirective, "directive.decode", err).
			With("directive", d.String())
	}
	return s, nil
}

// ParseSettings is Parse followed by Decode.
func ParseSettings(rawQueryKey, rawPathSegment string) (Settings, error) {
	d, err := Parse(rawQueryKey, rawPathSegment)
	if err != nil {
		return Settings{}, err
	}
	return Decode(d)
}

func (s *Settings) set(key string, v Value) error {
	var err error
	switch key {
	case "q":
		s.Quality, err = intValue(key, v)
	case "sh":
		s.Sharpen, err = sharpenValue(v)
	case "bl":
		s.Blur, err = floatValue(key, v)
	case "g":
		var g string
		g, err = scalarValue(key, v)
		s.Gravity = strings.ToLower(g)
	case "x":
		s.X, err = floatValue(key, v)
	case "y":
		s.Y, err = floatValue(key, v)
	case "x2":
		s.X2, err = floatValue(key, v)
	case "y2":
		s.Y2, err = floatValue(key, v)
	case "w":
		s.Width, err = floatValue(key, v)
	case "h":
		s.Height, err = floatValue(key, v)
	case "sm":
		var sm string
		sm, err = scalarValue(key, v)
		if err == nil {
			s.ScaleMode, err = scaleModeValue(sm)
			s.ScaleModeSet = true
		}
	case "s":
		s.Seek, err = scalarValue(key, v)
	case "d":
		s.Duration, err = scalarValue(key, v)
	case "bv":
		s.VideoBitrate, err = intValue(key, v)
	case "ba":
		s.AudioBitrate, err = intValue(key, v)
	case "slug":
		s.Slug, err = scalarValue(key, v)
	default:
		err = fmt.Errorf("unknown key %q", key)
	}
	return err
}

func scalarValue(key string, v Value) (string, error) {
	s, ok := v.Scalar()
	if !ok {
		return "", fmt.Errorf("key %q: expected a single value, got %s", key, v)
	}
	return strings.TrimSpace(s), nil
}

func floatValue(key string, v Value) (*float64, error) {
	s, err := scalarValue(key, v)
	if err != nil {
		return nil, err
	}
	f, err := parseNumber(s)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", key, err)
	}
	return &f, nil
}

// intValue truncates toward zero like the integer directives always have.
func intValue(key string, v Value) (*int, error) {
	f, err := floatValue(key, v)
	if err != nil {
		return nil, err
	}
	i := int(math.Trunc(*f))
	return &i, nil
}

func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return f, nil
}

func scaleModeValue(sm string) (ScaleMode, error) {
	switch strings.ToLower(sm) {
	case "fit", "contain":
		return ScaleFit, nil
	case "fill", "cover":
		return ScaleFill, nil
	default:
		return ScaleFit, fmt.Errorf("key \"sm\": unknown scale mode %q", sm)
	}
}

func sharpenValue(v Value) (*SharpenSpec, error) {
	if v.IsSequence() {
		items := v.Items()
		params := make([]float64, 0, len(items))
		for _, item := range items {
			f, err := parseNumber(strings.TrimSpace(item))
			if err != nil {
				return nil, fmt.Errorf("key \"sh\": %w", err)
			}
			params = append(params, f)
		}
		return &SharpenSpec{Params: params, Explicit: true}, nil
	}

	raw, _ := v.Scalar()
	switch name := strings.ToLower(strings.TrimSpace(raw)); name {
	case SharpenKirpan, SharpenDefault:
		return &SharpenSpec{Preset: name}, nil
	default:
		f, err := parseNumber(name)
		if err != nil {
			return nil, fmt.Errorf("key \"sh\": %w", err)
		}
		return &SharpenSpec{Params: []float64{f}}, nil
	}
}
