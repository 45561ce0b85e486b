// Package smoother turns the stream of raw mapped volumes into a stable
// sequence of volume commands.
//
// A raw sample is rounded to an integer percent and compared with the last
// volume the sink confirmed. Changes smaller than MinChange are dropped.
// Qualifying changes are emitted at most once per MinInterval. A change that
// lands inside the window is not queued: the first hand sample after the
// window closes is measured afresh, so the most recent reading always wins.
//
// The last applied volume is written only by Commit, after the sink reports
// success. Frames without a hand never reach the Smoother, so occlusion leaves
// the last applied volume in place and sends nothing.
//
// A Smoother is owned by a single goroutine and is not safe for concurrent use.
package smoother

import (
	"fmt"
	"math"
	"time"
)

// Defaults. MinChange 1 would forward every integer change, which under
// natural hand tremor means a volume command on most frames.
const (
	DefaultMinChange   = 2
	DefaultMinInterval = 100 * time.Millisecond
)

// Config holds the smoothing parameters.
type Config struct {
	// MinChange is the smallest |new - last| that produces a command (1..100).
	MinChange int
	// MinInterval is the minimum spacing between emitted commands. 0 disables rate limiting.
	MinInterval time.Duration
}

// DefaultConfig returns the default smoothing parameters.
func DefaultConfig() Config {
	return Config{
		MinChange:   DefaultMinChange,
		MinInterval: DefaultMinInterval,
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.MinChange < 1 || c.MinChange > 100 {
		return fmt.Errorf("min change must be between 1 and 100, got %d", c.MinChange)
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("min interval must be >= 0, got %s", c.MinInterval)
	}
	return nil
}

// Smoother filters raw volume samples.
type Smoother struct {
	cfg Config

	last    int
	hasLast bool

	lastEmit time.Time
}

// New creates a Smoother with no applied volume.
func New(cfg Config) *Smoother {
	if cfg.MinChange < 1 {
		cfg.MinChange = 1
	}
	return &Smoother{cfg: cfg}
}

// Quantize rounds a raw volume to the nearest integer percent in [0,100].
func Quantize(raw float64) int {
	if math.IsNaN(raw) {
		return 0
	}
	v := math.Round(raw)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

// Offer feeds one raw mapped volume observed at now. It returns the volume to
// send to the sink and true when a command should be issued on this frame.
func (s *Smoother) Offer(raw float64, now time.Time) (int, bool) {
	v := Quantize(raw)

	if s.hasLast && abs(v-s.last) < s.cfg.MinChange {
		return 0, false
	}
	if !s.windowOpen(now) {
		return 0, false
	}

	s.lastEmit = now
	return v, true
}

// Commit records that the sink applied v.
func (s *Smoother) Commit(v int) {
	s.last = v
	s.hasLast = true
}

// Last returns the last applied volume and whether one exists.
func (s *Smoother) Last() (int, bool) {
	return s.last, s.hasLast
}

func (s *Smoother) windowOpen(now time.Time) bool {
	if s.cfg.MinInterval <= 0 || s.lastEmit.IsZero() {
		return true
	}
	return now.Sub(s.lastEmit) >= s.cfg.MinInterval
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
