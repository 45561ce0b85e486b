package detector

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Starter is implemented by detectors that need to warm up before the first
// frame. An error from Start means the detector will never produce results.
type Starter interface {
	Start() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 1).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold, in (0,1].
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold, in (0,1].
	MinTrackingConf float64

	// ScriptPath overrides the location of mediapipe_service.py.
	ScriptPath string

	// StartTimeout bounds the wait for the helper's ready line.
	StartTimeout time.Duration
	// ResponseTimeout bounds the wait for one frame's landmarks.
	ResponseTimeout time.Duration
	// MaxRestarts is how many consecutive helper failures are tolerated.
	MaxRestarts int
	// RestartBackoff is the first delay between restarts; it doubles per failure.
	RestartBackoff time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        1,
		MinConfidence:   0.7,
		MinTrackingConf: 0.7,
		StartTimeout:    30 * time.Second,
		ResponseTimeout: 2 * time.Second,
		MaxRestarts:     5,
		RestartBackoff:  time.Second,
	}
}

// withHelperDefaults fills unset helper timings from DefaultConfig.
func (c Config) withHelperDefaults() Config {
	def := DefaultConfig()
	if c.StartTimeout <= 0 {
		c.StartTimeout = def.StartTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = def.ResponseTimeout
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = def.MaxRestarts
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = def.RestartBackoff
	}
	return c
}

// Validate checks that confidences are in (0,1] and MaxHands is positive.
func (c Config) Validate() error {
	if c.MaxHands < 1 {
		return fmt.Errorf("max hands must be >= 1, got %d", c.MaxHands)
	}
	if !(c.MinConfidence > 0 && c.MinConfidence <= 1) {
		return fmt.Errorf("detection confidence must be in (0,1], got %g", c.MinConfidence)
	}
	if !(c.MinTrackingConf > 0 && c.MinTrackingConf <= 1) {
		return fmt.Errorf("tracking confidence must be in (0,1], got %g", c.MinTrackingConf)
	}
	return nil
}
