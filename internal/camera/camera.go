// Package camera captures JPEG frames with OpenCV.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrUnavailable is returned when the device cannot be opened.
	ErrUnavailable = errors.New("camera: device unavailable")

	// ErrNotOpen is returned by Capture before Open.
	ErrNotOpen = errors.New("camera: not open")
)

// Config selects and tunes the capture device.
type Config struct {
	// Device is a camera index ("0"), a device path, a stream URL, or an
	// image file served as a still frame.
	Device      string
	Width       int
	Height      int
	JPEGQuality int
	// SkipFrames are grabbed and dropped before each capture so the frame
	// is current rather than buffered.
	SkipFrames int
}

// DefaultConfig returns the first camera at 640x480.
func DefaultConfig() Config {
	return Config{
		Device:      "0",
		Width:       640,
		Height:      480,
		JPEGQuality: 85,
		SkipFrames:  2,
	}
}

// Source is a frame source.
type Source interface {
	Open(ctx context.Context) error
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// New returns a live camera, or a still-image source when Device names an
// image file.
func New(cfg Config, logger *slog.Logger) Source {
	if logger == nil {
		logger = slog.Default()
	}
	if IsImagePath(cfg.Device) {
		return &Still{Path: cfg.Device, Quality: cfg.JPEGQuality}
	}
	return &Camera{cfg: cfg, logger: logger.With("component", "camera", "device", cfg.Device)}
}

// Camera reads from a gocv.VideoCapture.
type Camera struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	cap *gocv.VideoCapture
}

// Open opens the device. Opening an open camera is a no-op.
func (c *Camera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	vc, err := gocv.OpenVideoCapture(ParseDevice(c.cfg.Device))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return ErrUnavailable
	}
	if c.cfg.Width > 0 && c.cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	}
	c.cap = vc
	c.logger.Info("camera opened",
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight))
	return nil
}

// Capture grabs one frame and encodes it as JPEG.
func (c *Camera) Capture(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil, ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.cfg.SkipFrames > 0 {
		c.cap.Grab(c.cfg.SkipFrames)
	}
	img := gocv.NewMat()
	defer img.Close()
	if ok := c.cap.Read(&img); !ok || img.Empty() {
		return nil, errors.New("camera: empty frame")
	}
	return encodeJPEG(img, c.cfg.JPEGQuality)
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	c.logger.Info("camera closed")
	return err
}

func encodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// ParseDevice turns "0" into a camera index and leaves paths and URLs as
// strings.
func ParseDevice(device string) any {
	device = strings.TrimSpace(device)
	if device == "" {
		return 0
	}
	if id, err := strconv.Atoi(device); err == nil {
		return id
	}
	return device
}

// IsImagePath reports whether device names a still image.
func IsImagePath(device string) bool {
	switch strings.ToLower(filepath.Ext(device)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}
	return false
}
