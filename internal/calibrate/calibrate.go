// Package calibrate samples pinch distances from the camera and suggests a
// distance range for the volume mapping.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/schollz/progressbar/v3"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/log"
	"github.com/ayusman/mudra/internal/pinch"
)

// ErrNoSamples means no frame contained a hand.
var ErrNoSamples = errors.New("no pinch samples collected")

// Percentiles used for the suggested range. The extremes are noisy: a
// half-detected hand produces a few wildly short or long distances.
const (
	LowPercentile  = 5
	HighPercentile = 95
)

// Stats summarises the sampled distances in pixels.
type Stats struct {
	Samples int
	Min     float64
	Max     float64
	Mean    float64
	P5      float64
	P95     float64
}

// Summarize computes Stats over distances.
func Summarize(distances []float64) (Stats, error) {
	if len(distances) == 0 {
		return Stats{}, ErrNoSamples
	}

	sorted := append([]float64(nil), distances...)
	sort.Float64s(sorted)

	var sum float64
	for _, d := range sorted {
		sum += d
	}

	return Stats{
		Samples: len(sorted),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		Mean:    sum / float64(len(sorted)),
		P5:      Percentile(sorted, LowPercentile),
		P95:     Percentile(sorted, HighPercentile),
	}, nil
}

// Percentile returns the p-th percentile (0..100) of sorted using linear
// interpolation between closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Suggest returns base with its distance range replaced by the sampled
// percentiles, rounded to whole pixels.
func Suggest(st Stats, base pinch.Mapping) (pinch.Mapping, error) {
	m := base
	m.DistMin = math.Round(st.P5)
	m.DistMax = math.Round(st.P95)
	if err := m.Validate(); err != nil {
		return base, fmt.Errorf("sampled range too narrow (%.0f..%.0f px): %w", m.DistMin, m.DistMax, err)
	}
	return m, nil
}

// Runner collects pinch distances from a camera.
type Runner struct {
	Camera   capture.Camera
	Detector detector.Detector
	Mirror   bool
	// Frames is the number of frames to read.
	Frames int
	// Progress receives the progress bar; nil disables it.
	Progress io.Writer
}

// Run opens the camera, reads Frames frames and returns the distances of
// every frame with a hand. Read errors are skipped. The camera is closed on
// return; the detector is left to the caller.
func (r *Runner) Run(ctx context.Context) ([]float64, error) {
	if r.Frames <= 0 {
		return nil, fmt.Errorf("frames must be positive, got %d", r.Frames)
	}
	if err := r.Camera.Open(); err != nil {
		return nil, fmt.Errorf("open camera: %w", err)
	}
	defer r.Camera.Close()

	if s, ok := r.Detector.(detector.Starter); ok {
		if err := s.Start(); err != nil {
			return nil, fmt.Errorf("start hand detector: %w", err)
		}
	}

	var bar *progressbar.ProgressBar
	if r.Progress != nil {
		bar = progressbar.NewOptions(r.Frames,
			progressbar.OptionSetDescription("Sampling pinch"),
			progressbar.OptionSetWriter(r.Progress),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	stream := capture.NewStream(r.Camera, r.Mirror)
	distances := make([]float64, 0, r.Frames)
	readErrs := 0

	for i := 0; i < r.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return distances, err
		}

		frame, err := stream.Next()
		if bar != nil {
			bar.Add(1)
		}
		if err != nil {
			readErrs++
			continue
		}

		hands, err := r.Detector.Detect(frame.Mat)
		frame.Close()
		if errors.Is(err, detector.ErrUnavailable) {
			return distances, err
		}
		if hand := detector.Primary(hands); err == nil && hand != nil {
			distances = append(distances, pinch.PinchDistance(hand, frame.Width, frame.Height))
		}
	}

	if readErrs > 0 {
		log.Warn("calibration skipped unreadable frames", "count", readErrs)
	}
	return distances, nil
}
