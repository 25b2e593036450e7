// Package media drives the ffmpeg and ffprobe CLIs: probing, transcoding
// and still-frame capture.
package media

import (
	"context"
	"strconv"
	"time"
)

// Engine is the video engine used by the transcode builder and the probe
// endpoint.
type Engine interface {
	// Probe returns container and stream metadata for the file at path.
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// Transcode runs one encode and returns once ffmpeg has exited. The
	// output is complete only when the returned error is nil.
	Transcode(ctx context.Context, job Job) error

	// Thumbnail captures the frame at the given offset as a JPEG at dst.
	Thumbnail(ctx context.Context, path, dst string, at time.Duration) error
}

// Job is a fully resolved transcode.
type Job struct {
	Input  string
	Output string
	// Format is the ffmpeg muxer name, e.g. "mp4" or "webm".
	Format     string
	VideoCodec string
	AudioCodec string
	// VideoBitrate and AudioBitrate are in kbps. NoVideo and NoAudio drop the
	// track and take precedence over the bitrate.
	VideoBitrate int
	AudioBitrate int
	NoVideo      bool
	NoAudio      bool
	// Width and Height are the output size; zero keeps the aspect ratio.
	Width  int
	Height int
	// Seek and Duration use ffmpeg time syntax; empty means unset.
	Seek     string
	Duration string
}

// Args renders the ffmpeg command line for the job.
func (j Job) Args() []string {
	args := []string{"-y", "-i", j.Input}

	if j.Seek != "" {
		args = append(args, "-ss", j.Seek)
	}
	if j.Duration != "" {
		args = append(args, "-t", j.Duration)
	}

	if j.NoVideo {
		args = append(args, "-vn")
	} else {
		args = append(args, "-c:v", j.VideoCodec, "-b:v", kbps(j.VideoBitrate))
		if j.Width > 0 || j.Height > 0 {
			args = append(args, "-vf", "scale="+side(j.Width)+":"+side(j.Height))
		}
	}

	if j.NoAudio {
		args = append(args, "-an")
	} else {
		args = append(args, "-c:a", j.AudioCodec, "-b:a", kbps(j.AudioBitrate))
	}

	return append(args, "-f", j.Format, j.Output)
}

func kbps(v int) string {
	return strconv.Itoa(v) + "k"
}

// side renders a scale dimension. -2 keeps the aspect ratio with an even size.
func side(v int) string {
	if v <= 0 {
		return "-2"
	}
	return strconv.Itoa(v)
}

// ProbeResult is the subset of ffprobe's JSON output the service exposes.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat describes the container.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration,omitempty"`
	Size       string `json:"size,omitempty"`
	BitRate    string `json:"bit_rate,omitempty"`
}

// ProbeStream describes one stream.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Duration  string `json:"duration,omitempty"`
	BitRate   string `json:"bit_rate,omitempty"`
}

// HasVideo reports whether any stream is a video stream.
func (p *ProbeResult) HasVideo() bool {
	return p.hasCodecType("video")
}

// HasAudio reports whether any stream is an audio stream.
func (p *ProbeResult) HasAudio() bool {
	return p.hasCodecType("audio")
}

func (p *ProbeResult) hasCodecType(kind string) bool {
	for _, s := range p.Streams {
		if s.CodecType == kind {
			return true
		}
	}
	return false
}
