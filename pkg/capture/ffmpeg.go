package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"example.com/live_blur/pkg/logger"
)

// Default camera settings.
const (
	DefaultDevice = "/dev/video0"
	DefaultWidth  = 640
	DefaultHeight = 480
	DefaultFPS    = 15
	DefaultBinary = "ffmpeg"
)

const maxFrameSize = 8 * 1024 * 1024

var (
	soi = []byte{0xFF, 0xD8} // JPEG start of image
	eoi = []byte{0xFF, 0xD9} // JPEG end of image
)

// FFmpegConfig configures an FFmpegSource.
type FFmpegConfig struct {
	Device string
	Width  int
	Height int
	FPS    int

	// Binary is the ffmpeg executable. Defaults to DefaultBinary.
	Binary string

	Logger *slog.Logger
}

// FFmpegSource streams MJPEG frames from a V4L2 device through an ffmpeg
// subprocess and keeps the most recent one.
type FFmpegSource struct {
	cfg FFmpegConfig
	log *slog.Logger

	mu     sync.RWMutex
	latest []byte

	frames atomic.Uint64
}

// NewFFmpegSource creates a source. Call Run to start capturing.
func NewFFmpegSource(cfg FFmpegConfig) *FFmpegSource {
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	if cfg.Width == 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height == 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.FPS == 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	return &FFmpegSource{
		cfg: cfg,
		log: logger.OrDefault(cfg.Logger).With("component", "capture", "device", cfg.Device),
	}
}

// Args returns the ffmpeg command line, without the binary.
func (s *FFmpegSource) Args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"-framerate", strconv.Itoa(s.cfg.FPS),
		"-i", s.cfg.Device,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	}
}

// Run starts ffmpeg and consumes its output until ctx is done or the
// process exits. It returns nil when stopped through ctx.
func (s *FFmpegSource) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.Args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	s.log.Info("camera capture started", "size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height), "fps", s.cfg.FPS)

	// Carries the last stderr line once ffmpeg closes stderr.
	lastLine := make(chan string, 1)
	go func() {
		var last string
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			last = sc.Text()
			s.log.Debug("ffmpeg", "line", last)
		}
		_, _ = io.Copy(io.Discard, stderr)
		lastLine <- last
	}()

	readErr := s.consume(stdout)
	if readErr != nil {
		// Nothing reads stdout anymore.
		_ = cmd.Process.Kill()
	}
	cause := <-lastLine
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		s.log.Info("camera capture stopped", "frames", s.frames.Load())
		return nil
	}
	if readErr != nil {
		return fmt.Errorf("failed to read frames: %w", readErr)
	}
	if waitErr != nil {
		if cause != "" {
			return fmt.Errorf("ffmpeg exited: %w: %s", waitErr, cause)
		}
		return fmt.Errorf("ffmpeg exited: %w", waitErr)
	}
	return fmt.Errorf("ffmpeg exited unexpectedly")
}

// consume splits r into JPEG images and stores each as the latest frame.
func (s *FFmpegSource) consume(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256*1024), maxFrameSize)
	sc.Split(splitJPEG)

	for sc.Scan() {
		frame := make([]byte, len(sc.Bytes()))
		copy(frame, sc.Bytes())

		s.mu.Lock()
		s.latest = frame
		s.mu.Unlock()
		s.frames.Add(1)
	}
	return sc.Err()
}

// Capture implements Source. It decodes the most recent frame, or returns
// ErrNoFrame until the first one arrives.
func (s *FFmpegSource) Capture(_ context.Context) (image.Image, error) {
	s.mu.RLock()
	data := s.latest
	s.mu.RUnlock()

	if data == nil {
		return nil, ErrNoFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode camera frame: %w", err)
	}
	return img, nil
}

// Frames returns the number of frames read from ffmpeg.
func (s *FFmpegSource) Frames() uint64 {
	return s.frames.Load()
}

// splitJPEG is a bufio.SplitFunc yielding complete JPEG images delimited by
// their SOI and EOI markers. Bytes outside an image are discarded.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, soi)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		if len(data) > 1 {
			// Keep the last byte: it may begin the next marker.
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(soi):], eoi)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	end += start + len(soi) + len(eoi)
	return end, data[start:end], nil
}
