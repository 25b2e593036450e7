package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrCancelled is returned when the context ends while a command runs.
	ErrCancelled = errors.New("media command cancelled")
	// ErrInvalidJob is returned for a job missing its input, output or format.
	ErrInvalidJob = errors.New("invalid transcode job")
)

// FFmpegEngine implements Engine using the ffmpeg and ffprobe CLIs.
type FFmpegEngine struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegEngine creates a new FFmpegEngine.
// Empty paths default to "ffmpeg" and "ffprobe" found via PATH.
func NewFFmpegEngine(ffmpegPath, ffprobePath string) *FFmpegEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegEngine{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Probe implements Engine.
func (e *FFmpegEngine) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: ffprobe: %w", ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var result ProbeResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

// Transcode implements Engine.
func (e *FFmpegEngine) Transcode(ctx context.Context, job Job) error {
	if job.Input == "" || job.Output == "" || job.Format == "" {
		return fmt.Errorf("%w: input=%q output=%q format=%q", ErrInvalidJob, job.Input, job.Output, job.Format)
	}
	if job.NoVideo && job.NoAudio {
		return fmt.Errorf("%w: both tracks disabled", ErrInvalidJob)
	}
	return e.runFFmpeg(ctx, job.Args())
}

// Thumbnail implements Engine. The destination directory is created.
func (e *FFmpegEngine) Thumbnail(ctx context.Context, path, dst string, at time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}

	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", path,
		"-frames:v", "1", // Single still frame
		"-q:v", "2",
		dst,
	}
	return e.runFFmpeg(ctx, args)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails. The process is killed when
// ctx ends.
func (e *FFmpegEngine) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("%w: ffmpeg: %w", ErrCancelled, ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// ThumbnailPath returns where the poster still of a video lives:
// <dir>/<name without extension>/thumb.jpg.
func ThumbnailPath(videoPath string) string {
	dir := filepath.Dir(videoPath)
	base := filepath.Base(videoPath)
	name := base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(dir, name, "thumb.jpg")
}
