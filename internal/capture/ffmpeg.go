// Package capture grabs short frame bursts from a camera source or a directory.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/your-org/doorgate/internal/burst"
)

// maxFrameBytes bounds a single JPEG read from ffmpeg.
const maxFrameBytes = 10 << 20

// Options control a burst capture.
type Options struct {
	Frames int // number of stills to grab
	FPS    int // sampling rate while grabbing
	Width  int // output width; height keeps the aspect ratio
}

func (o Options) withDefaults() Options {
	if o.Frames <= 0 {
		o.Frames = 5
	}
	if o.FPS <= 0 {
		o.FPS = 5
	}
	if o.Width <= 0 {
		o.Width = 1280
	}
	return o
}

// ffmpegArgs builds the command line that writes opts.Frames MJPEG stills to stdout.
func ffmpegArgs(source string, opts Options) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case strings.HasPrefix(source, "rtsp://"), strings.HasPrefix(source, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", "5000000", // microseconds
		)
	case strings.HasPrefix(source, "/dev/video"):
		args = append(args, "-f", "v4l2")
	}

	return append(args,
		"-i", source,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", opts.FPS, opts.Width),
		"-frames:v", strconv.Itoa(opts.Frames),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)
}

// Burst runs ffmpeg against source (RTSP URL, V4L2 device or file) and
// returns the captured stills in order.
func Burst(ctx context.Context, source string, opts Options) ([]burst.Frame, error) {
	opts = opts.withDefaults()

	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(source, opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	var frames []burst.Frame
	readErr := readJPEGFrames(stdout, func(data []byte) {
		frames = append(frames, burst.Frame{ID: fmt.Sprintf("frame_%d", len(frames)+1), Data: data})
	})
	waitErr := cmd.Wait()

	if stderr.Len() > 0 {
		slog.Warn("ffmpeg stderr", "output", strings.TrimSpace(stderr.String()))
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if readErr != nil {
		return nil, fmt.Errorf("read frames: %w", readErr)
	}
	if len(frames) == 0 {
		if waitErr != nil {
			return nil, fmt.Errorf("ffmpeg: %w", waitErr)
		}
		return nil, fmt.Errorf("no frames received from %s", source)
	}

	slog.Info("burst captured", "source", source, "frames", len(frames))
	return frames, nil
}

// readJPEGFrames splits a stream of concatenated JPEG images. A truncated
// trailing frame is dropped.
func readJPEGFrames(r io.Reader, fn func([]byte)) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	for {
		if err := skipToSOI(reader); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		frame, err := readToEOI(reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		fn(frame)
	}
}

// skipToSOI consumes bytes up to and including the FF D8 start marker.
func skipToSOI(r *bufio.Reader) error {
	prev := byte(0)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == 0xD8 {
			return nil
		}
		prev = b
	}
}

// readToEOI returns a full JPEG, from the start marker through FF D9.
func readToEOI(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)
		if len(data) >= 4 && data[len(data)-2] == 0xFF && b == 0xD9 {
			return data, nil
		}
		if len(data) > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
