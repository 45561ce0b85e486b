package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/log"
	"github.com/ayusman/mudra/internal/overlay"
	"github.com/ayusman/mudra/internal/status"
)

// Run opens the camera and processes frames until ctx is cancelled, the
// renderer reports the quit key, the camera is lost or the detector gives up.
// A cancelled context or quit key returns nil. Run closes the camera, detector
// and renderer before returning.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	if s, ok := a.detector.(detector.Starter); ok {
		if err := s.Start(); err != nil {
			return fmt.Errorf("start hand detector: %w", err)
		}
	}

	log.Info("controller started",
		"sink", a.dispatcher.Sink().Name(),
		"dist_min", a.config.Mapping.DistMin,
		"dist_max", a.config.Mapping.DistMax,
		"min_change", a.config.Smoothing.MinChange,
		"min_interval", a.config.Smoothing.MinInterval,
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := a.nextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		st := a.ProcessFrame(ctx, frame)
		quit := a.present(frame, st)
		frame.Close()

		if a.detectFatal != nil {
			return fmt.Errorf("hand detector: %w", a.detectFatal)
		}
		if quit {
			log.Info("quit requested from overlay")
			return nil
		}
	}
}

// nextFrame reads a frame, retrying failed reads with exponential backoff.
// After MaxReadFailures consecutive failures it returns ErrCameraLost.
func (a *App) nextFrame(ctx context.Context) (*capture.Frame, error) {
	delay := a.config.RetryInitial
	failures := 0

	for {
		frame, err := a.stream.Next()
		if err == nil {
			if failures > 0 {
				log.Info("camera recovered", "failures", failures)
			}
			return frame, nil
		}

		failures++
		a.readFailures.Add(1)
		if failures >= a.config.MaxReadFailures {
			return nil, fmt.Errorf("%w: %d consecutive reads failed: %v", ErrCameraLost, failures, err)
		}
		log.Warn("frame read failed", "err", err, "attempt", failures, "retry_in", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > a.config.RetryMax {
			delay = a.config.RetryMax
		}
	}
}

// present draws the overlay and shows the frame. It skips drawing when no
// one would see it.
func (a *App) present(frame *capture.Frame, st status.State) bool {
	_, headless := a.renderer.(overlay.Nop)
	if frame.Mat == nil || (headless && a.config.Frames == nil) {
		return false
	}

	a.annotator.Draw(frame.Mat, st)

	if a.config.Frames != nil {
		if err := a.config.Frames.Store(frame.Mat); err != nil {
			log.Debug("frame encode failed", "err", err)
		}
	}
	return a.renderer.Show(frame.Mat)
}

func (a *App) close() {
	if err := a.camera.Close(); err != nil {
		log.Warn("error closing camera", "err", err)
	}
	if err := a.detector.Close(); err != nil {
		log.Warn("error closing detector", "err", err)
	}
	if err := a.renderer.Close(); err != nil {
		log.Warn("error closing renderer", "err", err)
	}
	a.motion.Close()
	log.Info("controller stopped", "frames", a.frames.Load(), "commands", a.commands.Load())
}
