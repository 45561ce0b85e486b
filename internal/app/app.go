// Package app runs the pinch-to-volume control loop.
//
// One goroutine owns the loop: it reads a frame, detects the hand, turns the
// pinch distance into a volume, smooths it and dispatches it to the sink, then
// publishes the resulting State and renders the overlay. Observers never touch
// the pipeline; they read State copies from the Publisher.
package app

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/overlay"
	"github.com/ayusman/mudra/internal/pinch"
	"github.com/ayusman/mudra/internal/sink"
	"github.com/ayusman/mudra/internal/smoother"
	"github.com/ayusman/mudra/internal/status"
	"github.com/ayusman/mudra/internal/store"
)

// ErrCameraLost is returned by Run after too many consecutive failed reads.
var ErrCameraLost = errors.New("camera lost")

// Read retry defaults.
const (
	DefaultMaxReadFailures = 30
	DefaultRetryInitial    = 50 * time.Millisecond
	DefaultRetryMax        = 2 * time.Second
)

// EventRecorder journals dispatched volume commands.
type EventRecorder interface {
	Record(e *store.Event) error
}

// Config wires the controller's collaborators. Camera, Detector and Sink are
// required; the rest are optional.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	Sink     sink.Sink

	Mapping   pinch.Mapping
	Smoothing smoother.Config

	// SinkTimeout bounds each volume command.
	SinkTimeout time.Duration
	// Mirror flips frames horizontally before detection.
	Mirror bool
	// MotionThreshold gates detection on scene motion; 0 disables the gate.
	MotionThreshold float64

	MaxReadFailures int
	RetryInitial    time.Duration
	RetryMax        time.Duration

	Renderer  overlay.Renderer
	Frames    *overlay.FrameBuffer
	Publisher *status.Publisher
	Journal   EventRecorder
}

// Stats counts loop activity.
type Stats struct {
	Frames       uint64 `json:"frames"`
	HandFrames   uint64 `json:"hand_frames"`
	Commands     uint64 `json:"commands"`
	SinkFailures uint64 `json:"sink_failures"`
	ReadFailures uint64 `json:"read_failures"`
}

// App is the controller.
type App struct {
	config     Config
	camera     capture.Camera
	stream     *capture.Stream
	detector   detector.Detector
	motion     *capture.MotionGate
	smoother   *smoother.Smoother
	dispatcher *sink.Dispatcher
	annotator  *overlay.Annotator
	renderer   overlay.Renderer
	publisher  *status.Publisher

	enabled atomic.Bool

	// Pipeline-goroutine state.
	lastSample  pinch.Sample
	lastRaw     float64
	lastHand    status.State
	detectErrs  int
	detectFatal error

	frames       atomic.Uint64
	handFrames   atomic.Uint64
	commands     atomic.Uint64
	sinkFailures atomic.Uint64
	readFailures atomic.Uint64
}

// New validates config and builds the controller. The App starts enabled.
func New(config Config) (*App, error) {
	if config.Camera == nil {
		return nil, errors.New("app: camera is required")
	}
	if config.Detector == nil {
		return nil, errors.New("app: detector is required")
	}
	if config.Sink == nil {
		return nil, errors.New("app: sink is required")
	}
	if err := config.Mapping.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if err := config.Smoothing.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	if config.MaxReadFailures <= 0 {
		config.MaxReadFailures = DefaultMaxReadFailures
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax < config.RetryInitial {
		config.RetryMax = max(DefaultRetryMax, config.RetryInitial)
	}
	if config.Renderer == nil {
		config.Renderer = overlay.Nop{}
	}
	if config.Publisher == nil {
		config.Publisher = status.NewPublisher()
	}

	a := &App{
		config:     config,
		camera:     config.Camera,
		stream:     capture.NewStream(config.Camera, config.Mirror),
		detector:   config.Detector,
		motion:     capture.NewMotionGate(config.MotionThreshold),
		smoother:   smoother.New(config.Smoothing),
		dispatcher: sink.NewDispatcher(config.Sink, config.SinkTimeout),
		annotator:  overlay.NewAnnotator(config.Mapping),
		renderer:   config.Renderer,
		publisher:  config.Publisher,
	}
	a.enabled.Store(true)
	return a, nil
}

// SetEnabled turns volume control on or off. Frames are still captured and
// rendered while disabled.
func (a *App) SetEnabled(enabled bool) {
	a.enabled.Store(enabled)
}

// IsEnabled reports whether volume control is on.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// Publisher returns the state publisher.
func (a *App) Publisher() *status.Publisher {
	return a.publisher
}

// Stats returns a snapshot of the loop counters.
func (a *App) Stats() Stats {
	return Stats{
		Frames:       a.frames.Load(),
		HandFrames:   a.handFrames.Load(),
		Commands:     a.commands.Load(),
		SinkFailures: a.sinkFailures.Load(),
		ReadFailures: a.readFailures.Load(),
	}
}

// Volume returns the last volume the sink applied.
func (a *App) Volume() (int, bool) {
	st, ok := a.publisher.Latest()
	if !ok {
		return 0, false
	}
	return st.Volume, st.HasVolume
}
