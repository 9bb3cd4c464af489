package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/your-org/hostelpass/internal/config"
	"github.com/your-org/hostelpass/internal/observability"
)

// ErrClosed is returned by Capture after the camera has been released.
var ErrClosed = errors.New("camera closed")

// ErrNoFrame is returned by Capture before the first frame has arrived.
var ErrNoFrame = errors.New("no frame available yet")

// ErrDenied is returned by Open when the device cannot be acquired. It is
// terminal for the session: permission has to be fixed outside the flow.
var ErrDenied = errors.New("camera access denied")

// Camera owns the local webcam. It runs ffmpeg against the device, keeps the
// most recent square JPEG frame in a one-slot buffer, and hands out copies on
// Capture. The device is held from Open until Close; Capture never
// reacquires it.
type Camera struct {
	cfg config.CameraConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	cmd     *exec.Cmd
	opened  bool
	closed  bool
	latest  []byte
	started chan struct{} // closed once the first frame lands
}

func New(cfg config.CameraConfig) *Camera {
	return &Camera{cfg: cfg, started: make(chan struct{})}
}

// Open acquires the camera and starts the frame reader. It blocks until the
// first frame arrives or ctx expires. A device that cannot be opened maps to
// ErrDenied; there is no retry.
func (c *Camera) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return fmt.Errorf("camera already open")
	}
	c.opened = true

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	cmd := exec.CommandContext(runCtx, "ffmpeg", c.ffmpegArgs()...)
	c.cmd = cmd
	c.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: start ffmpeg: %v", ErrDenied, err)
	}

	observability.CameraOpen.Set(1)

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Debug("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	go func() {
		err := scanJPEGFrames(runCtx, stdout, c.storeFrame)
		if err != nil && runCtx.Err() == nil {
			slog.Warn("camera frame reader stopped", "error", err)
		}
		_ = cmd.Wait()
	}()

	select {
	case <-c.started:
		return nil
	case <-ctx.Done():
		c.Close()
		return fmt.Errorf("%w: no frame before deadline", ErrDenied)
	}
}

// ffmpegArgs builds the device capture command: platform input format, square
// center crop, fixed width. Downstream detection depends on the square shape.
func (c *Camera) ffmpegArgs() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	switch runtime.GOOS {
	case "darwin":
		args = append(args, "-f", "avfoundation", "-framerate", "30", "-i", c.cfg.Device)
	default:
		args = append(args, "-f", "v4l2", "-i", c.cfg.Device)
	}

	vf := fmt.Sprintf("fps=%d,crop='min(iw,ih)':'min(iw,ih)',scale=%d:%d",
		c.cfg.FPS, c.cfg.Width, c.cfg.Width)

	return append(args,
		"-vf", vf,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

func (c *Camera) storeFrame(frame []byte) error {
	c.mu.Lock()
	first := c.latest == nil
	c.latest = frame
	c.mu.Unlock()
	if first {
		close(c.started)
	}
	return nil
}

// Capture returns a copy of the most recent frame. It is synchronous and
// repeatable: retakes never touch the device.
func (c *Camera) Capture() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.latest == nil {
		return nil, ErrNoFrame
	}

	frame := make([]byte, len(c.latest))
	copy(frame, c.latest)
	observability.FramesCaptured.Inc()
	return frame, nil
}

// HasFrame reports whether at least one frame has been buffered.
func (c *Camera) HasFrame() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest != nil && !c.closed
}

// Close releases the device. Safe to call more than once; only the first
// call tears anything down.
func (c *Camera) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.opened {
		c.closed = true
		return
	}
	c.closed = true

	if c.cancel != nil {
		c.cancel()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	observability.CameraOpen.Set(0)
	slog.Info("camera released", "device", c.cfg.Device)
}

// WaitFrame blocks until the first frame lands or the timeout passes.
func (c *Camera) WaitFrame(timeout time.Duration) bool {
	select {
	case <-c.started:
		return true
	case <-time.After(timeout):
		return false
	}
}
