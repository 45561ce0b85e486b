package pinch

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRange is returned when the distance interval is empty or inverted.
var ErrInvalidRange = errors.New("distance range must satisfy min < max")

// Default mapping: 30px pinch is silence, 200px spread is full volume.
const (
	DefaultDistMin = 30.0
	DefaultDistMax = 200.0
	DefaultVolMin  = 0.0
	DefaultVolMax  = 100.0
)

// Mapping is the immutable distance-to-volume configuration.
type Mapping struct {
	DistMin float64 // pixels
	DistMax float64 // pixels
	VolMin  float64 // percent
	VolMax  float64 // percent
}

// DefaultMapping returns [30,200] px -> [0,100] %.
func DefaultMapping() Mapping {
	return Mapping{
		DistMin: DefaultDistMin,
		DistMax: DefaultDistMax,
		VolMin:  DefaultVolMin,
		VolMax:  DefaultVolMax,
	}
}

// Validate reports configuration errors. It is meant to run once at startup.
func (m Mapping) Validate() error {
	for _, v := range []float64{m.DistMin, m.DistMax, m.VolMin, m.VolMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("mapping bounds must be finite, got [%g, %g] -> [%g, %g]", m.DistMin, m.DistMax, m.VolMin, m.VolMax)
		}
	}
	if !(m.DistMin < m.DistMax) {
		return fmt.Errorf("%w (got [%g, %g])", ErrInvalidRange, m.DistMin, m.DistMax)
	}
	if m.DistMin < 0 {
		return fmt.Errorf("distance min must be >= 0, got %g", m.DistMin)
	}
	for _, v := range []float64{m.VolMin, m.VolMax} {
		if v < 0 || v > 100 {
			return fmt.Errorf("volume bounds must be within [0, 100], got [%g, %g]", m.VolMin, m.VolMax)
		}
	}
	return nil
}

// MapToVolume linearly maps distance onto [VolMin, VolMax]. Distances outside
// [DistMin, DistMax] saturate at the nearer bound. VolMin may exceed VolMax for
// an inverted response.
func MapToVolume(distance float64, m Mapping) float64 {
	return interp(distance, m.DistMin, m.DistMax, m.VolMin, m.VolMax)
}

// BarY maps distance onto a vertical pixel span for the overlay volume bar,
// clamped the same way as MapToVolume. bottom is the empty position.
func (m Mapping) BarY(distance float64, bottom, top int) int {
	return int(interp(distance, m.DistMin, m.DistMax, float64(bottom), float64(top)))
}

func interp(x, x0, x1, y0, y1 float64) float64 {
	v := y0 + (x-x0)*(y1-y0)/(x1-x0)
	lo, hi := y0, y1
	if lo > hi {
		lo, hi = hi, lo
	}
	return clamp(v, lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
