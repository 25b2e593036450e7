package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// createTestVideo creates a simple test video using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64, color string) {
	t.Helper()

	// Create a simple video with solid color and silent audio
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=64x64:d=%.1f", color, duration),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		"-shortest",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func TestNewFFmpegEngine(t *testing.T) {
	t.Run("default paths", func(t *testing.T) {
		e := NewFFmpegEngine("", "")
		if e.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", e.ffmpegPath)
		}
		if e.ffprobePath != "ffprobe" {
			t.Errorf("expected default path 'ffprobe', got %q", e.ffprobePath)
		}
	})

	t.Run("custom paths", func(t *testing.T) {
		e := NewFFmpegEngine("/usr/local/bin/ffmpeg", "/usr/local/bin/ffprobe")
		if e.ffmpegPath != "/usr/local/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", e.ffmpegPath)
		}
		if e.ffprobePath != "/usr/local/bin/ffprobe" {
			t.Errorf("expected custom path, got %q", e.ffprobePath)
		}
	})
}

func TestJobArgs(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want []string
	}{
		{
			name: "mp4 with both tracks",
			job: Job{
				Input: "in.mov", Output: "out.mp4", Format: "mp4",
				VideoCodec: "libx264", AudioCodec: "aac",
				VideoBitrate: 1000, AudioBitrate: 128,
			},
			want: []string{"-y", "-i", "in.mov", "-c:v", "libx264", "-b:v", "1000k", "-c:a", "aac", "-b:a", "128k", "-f", "mp4", "out.mp4"},
		},
		{
			name: "no video track",
			job: Job{
				Input: "in.mov", Output: "out.webm", Format: "webm",
				VideoCodec: "libvpx-vp9", AudioCodec: "libvorbis",
				NoVideo: true, AudioBitrate: 128, Width: 320,
			},
			want: []string{"-y", "-i", "in.mov", "-vn", "-c:a", "libvorbis", "-b:a", "128k", "-f", "webm", "out.webm"},
		},
		{
			name: "trim and width only",
			job: Job{
				Input: "in.mov", Output: "out.mp4", Format: "mp4",
				VideoCodec: "libx264", AudioCodec: "aac",
				VideoBitrate: 500, NoAudio: true,
				Width: 320, Seek: "1.5", Duration: "00:00:03",
			},
			want: []string{"-y", "-i", "in.mov", "-ss", "1.5", "-t", "00:00:03", "-c:v", "libx264", "-b:v", "500k", "-vf", "scale=320:-2", "-an", "-f", "mp4", "out.mp4"},
		},
		{
			name: "height only",
			job: Job{
				Input: "a", Output: "b", Format: "mp4",
				VideoCodec: "libx264", AudioCodec: "aac",
				VideoBitrate: 1000, AudioBitrate: 64, Height: 240,
			},
			want: []string{"-y", "-i", "a", "-c:v", "libx264", "-b:v", "1000k", "-vf", "scale=-2:240", "-c:a", "aac", "-b:a", "64k", "-f", "mp4", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.job.Args()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() mismatch\n got: %v\nwant: %v", got, tt.want)
			}
		})
	}
}

func TestTranscode_InvalidJob(t *testing.T) {
	e := NewFFmpegEngine("", "")

	err := e.Transcode(context.Background(), Job{Input: "a.mp4"})
	if !errors.Is(err, ErrInvalidJob) {
		t.Errorf("expected ErrInvalidJob, got %v", err)
	}

	err = e.Transcode(context.Background(), Job{Input: "a", Output: "b", Format: "mp4", NoVideo: true, NoAudio: true})
	if !errors.Is(err, ErrInvalidJob) {
		t.Errorf("expected ErrInvalidJob for job without tracks, got %v", err)
	}
}

func TestTranscode(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	e := NewFFmpegEngine("", "")
	src := filepath.Join(tmpDir, "src.mp4")
	createTestVideo(t, src, 1.0, "blue")

	t.Run("scales video", func(t *testing.T) {
		out := filepath.Join(tmpDir, "scaled.mp4")
		err := e.Transcode(context.Background(), Job{
			Input: src, Output: out, Format: "mp4",
			VideoCodec: "libx264", AudioCodec: "aac",
			VideoBitrate: 200, AudioBitrate: 64, Width: 32,
		})
		if err != nil {
			t.Fatalf("Transcode failed: %v", err)
		}

		probe, err := e.Probe(context.Background(), out)
		if err != nil {
			t.Fatalf("Probe failed: %v", err)
		}
		found := false
		for _, s := range probe.Streams {
			if s.CodecType == "video" {
				found = true
				if s.Width != 32 || s.Height != 32 {
					t.Errorf("expected 32x32, got %dx%d", s.Width, s.Height)
				}
			}
		}
		if !found {
			t.Error("expected a video stream")
		}
	})

	t.Run("drops video track", func(t *testing.T) {
		out := filepath.Join(tmpDir, "audio_only.mp4")
		err := e.Transcode(context.Background(), Job{
			Input: src, Output: out, Format: "mp4",
			VideoCodec: "libx264", AudioCodec: "aac",
			NoVideo: true, AudioBitrate: 64,
		})
		if err != nil {
			t.Fatalf("Transcode failed: %v", err)
		}

		probe, err := e.Probe(context.Background(), out)
		if err != nil {
			t.Fatalf("Probe failed: %v", err)
		}
		if probe.HasVideo() {
			t.Error("expected no video stream")
		}
		if !probe.HasAudio() {
			t.Error("expected an audio stream")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := e.Transcode(ctx, Job{
			Input: src, Output: filepath.Join(tmpDir, "cancelled.mp4"), Format: "mp4",
			VideoCodec: "libx264", AudioCodec: "aac", VideoBitrate: 100, AudioBitrate: 64,
		})
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	})

	t.Run("missing input", func(t *testing.T) {
		err := e.Transcode(context.Background(), Job{
			Input: filepath.Join(tmpDir, "missing.mp4"), Output: filepath.Join(tmpDir, "x.mp4"), Format: "mp4",
			VideoCodec: "libx264", AudioCodec: "aac", VideoBitrate: 100, AudioBitrate: 64,
		})
		var ffErr *FFmpegError
		if !errors.As(err, &ffErr) {
			t.Fatalf("expected FFmpegError, got %v", err)
		}
		if ffErr.Stderr == "" {
			t.Error("expected stderr to be captured")
		}
	})
}

func TestProbe(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	e := NewFFmpegEngine("", "")
	src := filepath.Join(tmpDir, "probe.mp4")
	createTestVideo(t, src, 1.0, "green")

	probe, err := e.Probe(context.Background(), src)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if !strings.Contains(probe.Format.FormatName, "mp4") {
		t.Errorf("expected mp4 container, got %q", probe.Format.FormatName)
	}
	if !probe.HasVideo() || !probe.HasAudio() {
		t.Errorf("expected video and audio streams, got %+v", probe.Streams)
	}

	_, err = e.Probe(context.Background(), filepath.Join(tmpDir, "missing.mp4"))
	if !errors.Is(err, ErrFFprobeExecution) {
		t.Errorf("expected ErrFFprobeExecution, got %v", err)
	}
}

func TestThumbnail(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	e := NewFFmpegEngine("", "")
	src := filepath.Join(tmpDir, "clip.mp4")
	createTestVideo(t, src, 1.0, "red")

	dst := ThumbnailPath(src)
	if err := e.Thumbnail(context.Background(), src, dst, 0); err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("thumbnail was not created: %v", err)
	}
	if info.Size() == 0 {
		t.Error("thumbnail is empty")
	}

	if err := e.Thumbnail(context.Background(), src, filepath.Join(tmpDir, "late", "thumb.jpg"), 10*time.Millisecond); err != nil {
		t.Errorf("Thumbnail at offset failed: %v", err)
	}
}

func TestThumbnailPath(t *testing.T) {
	got := ThumbnailPath("/srv/public/gallery/intro.mp4")
	want := "/srv/public/gallery/intro/thumb.jpg"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFFmpegError(t *testing.T) {
	err := &FFmpegError{
		Args:   []string{"-i", "input.mp4", "-c", "copy", "output.mp4"},
		Stderr: "Error opening input file",
		Err:    fmt.Errorf("exit status 1"),
	}

	// Test Error() method
	errStr := err.Error()
	if errStr == "" {
		t.Error("Error() returned empty string")
	}

	// Verify error contains key information
	if !strings.Contains(errStr, "exit status 1") {
		t.Error("Error() should contain underlying error")
	}
	if !strings.Contains(errStr, "Error opening input file") {
		t.Error("Error() should contain stderr")
	}

	// Test Unwrap() method
	unwrapped := err.Unwrap()
	if unwrapped == nil {
		t.Error("Unwrap() returned nil")
	}
	if unwrapped.Error() != "exit status 1" {
		t.Errorf("Unwrap() returned wrong error: %v", unwrapped)
	}
}
