package video

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/transform-api/internal/directive"
	"github.com/maauso/transform-api/internal/failure"
)

// Default bitrates in kbps.
const (
	DefaultVideoBitrate = 1000
	DefaultAudioBitrate = 128
)

// Codec pairs per container.
var codecs = map[string]struct{ video, audio string }{
	"mp4":  {video: "libx264", audio: "aac"},
	"webm": {video: "libvpx-vp9", audio: "libvorbis"},
}

// SupportedFormat reports whether format can be produced by the builder.
func SupportedFormat(format string) bool {
	_, ok := codecs[strings.ToLower(format)]
	return ok
}

// Request is a resolved video transform. Zero bitrates disable a track.
type Request struct {
	InputPath    string
	OutputFormat string
	VideoBitrate int
	AudioBitrate int
	Width        int
	Height       int
	Seek         string
	Duration     string
	CacheKey     string
}

// SourceIdentity fingerprints an input file without reading it.
type SourceIdentity struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Identify stats path.
func Identify(path string) (SourceIdentity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return SourceIdentity{}, err
	}
	if info.IsDir() {
		return SourceIdentity{}, fmt.Errorf("%s is a directory", path)
	}
	return SourceIdentity{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// NewRequest resolves settings against the input file and computes the
// cache key.
func NewRequest(inputPath, outputFormat string, s directive.Settings) (Request, error) {
	format := strings.ToLower(outputFormat)
	if !SupportedFormat(format) {
		return Request{}, failure.Invalid("video.request", "unsupported output format %q", outputFormat)
	}

	req := Request{
		InputPath:    inputPath,
		OutputFormat: format,
		VideoBitrate: DefaultVideoBitrate,
		AudioBitrate: DefaultAudioBitrate,
		Seek:         s.Seek,
		Duration:     s.Duration,
	}
	if s.VideoBitrate != nil {
		req.VideoBitrate = *s.VideoBitrate
	}
	if s.AudioBitrate != nil {
		req.AudioBitrate = *s.AudioBitrate
	}
	if req.VideoBitrate == 0 && req.AudioBitrate == 0 {
		return Request{}, failure.Invalid("video.request", "bv and ba cannot both disable their track")
	}

	var err error
	if req.Width, err = pixels("w", s.Width); err != nil {
		return Request{}, err
	}
	if req.Height, err = pixels("h", s.Height); err != nil {
		return Request{}, err
	}

	id, err := Identify(inputPath)
	if err != nil {
		return Request{}, failure.New(failure.ErrDecode, "video.request", err).With("source", inputPath)
	}
	req.CacheKey = CacheKey(req, id)
	return req, nil
}

// pixels accepts whole pixel sizes only; relative sizes need the decoded
// frame size, which the transcoder does not know up front.
func pixels(name string, v *float64) (int, error) {
	if v == nil {
		return 0, nil
	}
	f := *v
	if f <= 1 || f != math.Trunc(f) {
		return 0, failure.Invalid("video.request", "%s=%v must be a whole pixel size above 1", name, f)
	}
	return int(f), nil
}

// CacheKey hashes every parameter that affects the output together with the
// source identity.
func CacheKey(req Request, id SourceIdentity) string {
	parts := []string{
		"v1",
		req.OutputFormat,
		"bv=" + strconv.Itoa(req.VideoBitrate),
		"ba=" + strconv.Itoa(req.AudioBitrate),
		"w=" + strconv.Itoa(req.Width),
		"h=" + strconv.Itoa(req.Height),
		"s=" + req.Seek,
		"d=" + req.Duration,
		"src=" + id.Path,
		"size=" + strconv.FormatInt(id.Size, 10),
		"mtime=" + strconv.FormatInt(id.ModTime.UnixNano(), 10),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
