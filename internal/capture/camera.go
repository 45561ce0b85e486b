// Package capture reads frames from a camera device using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Default capture settings. 1280x720 matches what most webcams deliver
// natively and keeps pinch distances in a useful pixel range.
const (
	DefaultFPS    = 30
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEmptyFrame is returned when the device hands back an empty image.
	ErrEmptyFrame = errors.New("captured frame is empty")
	// ErrReadFailed is returned when the device does not produce a frame.
	ErrReadFailed = errors.New("failed to read frame from camera")
)

// Config describes the capture device and the requested format.
type Config struct {
	Index  int
	Width  int
	Height int
	FPS    int
}

// DefaultConfig returns the settings for device 0.
func DefaultConfig() Config {
	return Config{Width: DefaultWidth, Height: DefaultHeight, FPS: DefaultFPS}
}

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame blocks until the next frame. The caller closes the Mat.
	ReadFrame() (*gocv.Mat, error)
	FPS() int
	IsOpen() bool
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	cfg     Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewCamera creates a Camera for cfg. Zero sizes and rates fall back to the defaults.
func NewCamera(cfg Config) Camera {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	return &cameraImpl{cfg: cfg}
}

// Open opens the device and requests the configured resolution and rate.
// The device may pick the nearest format it supports.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.cfg.Index)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.cfg.Index, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open camera %d: %w", c.cfg.Index, ErrCameraNotOpen)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, ErrReadFailed
	}

	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}

	return &mat, nil
}

// FPS returns the requested frame rate.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cfg.FPS
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// Frame is one captured image with its position in the stream.
type Frame struct {
	Mat       *gocv.Mat
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
}

// Close releases the image.
func (f *Frame) Close() {
	if f != nil && f.Mat != nil {
		f.Mat.Close()
		f.Mat = nil
	}
}

// Stream numbers frames read from a Camera. Sequence numbers start at 1 and
// only advance on successful reads.
type Stream struct {
	cam    Camera
	mirror bool
	seq    uint64
	now    func() time.Time
}

// NewStream wraps cam. When mirror is set each frame is flipped horizontally
// so the preview behaves like a mirror.
func NewStream(cam Camera, mirror bool) *Stream {
	return &Stream{cam: cam, mirror: mirror, now: time.Now}
}

// Next reads and stamps the next frame.
func (s *Stream) Next() (*Frame, error) {
	mat, err := s.cam.ReadFrame()
	if err != nil {
		return nil, err
	}
	if s.mirror {
		Mirror(mat)
	}
	s.seq++
	return &Frame{
		Mat:       mat,
		Seq:       s.seq,
		Timestamp: s.now(),
		Width:     mat.Cols(),
		Height:    mat.Rows(),
	}, nil
}

// Mirror flips mat around the vertical axis in place.
func Mirror(mat *gocv.Mat) {
	gocv.Flip(*mat, mat, 1)
}
