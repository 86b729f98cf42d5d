// Package vision runs camera-based position producers on OpenCV.
//
// Each tracker reads frames from a FrameSource, reduces them to a
// motion.Sample and hands it to a submit function, normally
// motion.Tracker.Submit.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/signal-splat/pkg/motion"
)

// FrameSource yields BGR frames. *gocv.VideoCapture satisfies it.
type FrameSource interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Submit hands a sample to the position tracker.
type Submit func(motion.Sample) bool

// OpenCamera opens a capture device and requests the given frame size.
// Drivers may ignore the request; trackers resize anyway.
func OpenCamera(device, width, height int) (*gocv.VideoCapture, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("camera %d did not open", device)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(height))
	return capture, nil
}

// DefaultReopenDelay spaces attempts to open a missing camera.
const DefaultReopenDelay = 2 * time.Second

// Camera is a FrameSource that keeps trying to open its device. Until the
// device opens every Read fails, so the trackers idle and the position
// tracker keeps its last status.
type Camera struct {
	open   func() (FrameSource, error)
	delay  time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	src  FrameSource
	next time.Time
}

// NewCamera tries to open device once. A failure is returned for logging
// only; the Camera stays usable and retries on later reads.
func NewCamera(device, width, height int, logger *slog.Logger) (*Camera, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return newCamera(func() (FrameSource, error) {
		capture, err := OpenCamera(device, width, height)
		if err != nil {
			return nil, err
		}
		return capture, nil
	}, DefaultReopenDelay, logger.With("device", device))
}

func newCamera(open func() (FrameSource, error), delay time.Duration, logger *slog.Logger) (*Camera, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Camera{open: open, delay: delay, logger: logger.With("component", "vision.camera")}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c, c.tryOpen()
}

// tryOpen must be called with mu held.
func (c *Camera) tryOpen() error {
	src, err := c.open()
	if err != nil {
		c.next = time.Now().Add(c.delay)
		return err
	}
	c.src = src
	return nil
}

// Read implements FrameSource.
func (c *Camera) Read(m *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.src == nil {
		if time.Now().Before(c.next) {
			return false
		}
		if err := c.tryOpen(); err != nil {
			c.logger.Debug("camera still unavailable", "error", err)
			return false
		}
		c.logger.Info("camera opened")
	}
	return c.src.Read(m)
}

// Opened reports whether the device is open.
func (c *Camera) Opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src != nil
}

// Close implements FrameSource.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.src == nil {
		return nil
	}
	err := c.src.Close()
	c.src = nil
	return err
}

// frameFunc processes one BGR frame.
type frameFunc func(frame gocv.Mat)

// runFrames reads frames until ctx is cancelled. A failed read skips the
// cycle and waits retry before trying again.
func runFrames(ctx context.Context, src FrameSource, retry time.Duration, logger *slog.Logger, fn frameFunc) {
	frame := gocv.NewMat()
	defer frame.Close()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !src.Read(&frame) || frame.Empty() {
			misses++
			if misses == 1 || misses%100 == 0 {
				logger.Warn("camera frame read failed", "misses", misses)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			continue
		}
		misses = 0
		fn(frame)
	}
}
