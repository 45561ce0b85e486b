// Package pinch turns hand landmarks into a volume percentage: it measures the
// thumb-to-index distance in pixels and maps it linearly onto a volume range.
package pinch

import (
	"math"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Sample is one pinch measurement tied to the frame it came from.
type Sample struct {
	Seq      uint64
	At       time.Time
	Distance float64
}

// Distance returns the Euclidean pixel distance between landmarks a and b of
// hand in a width x height frame. hand must be non-nil and a, b must be valid
// landmark indices.
func Distance(hand *detector.HandLandmarks, a, b, width, height int) float64 {
	ax, ay := hand.Pixel(a, width, height)
	bx, by := hand.Pixel(b, width, height)
	return math.Hypot(ax-bx, ay-by)
}

// PinchDistance is Distance between the thumb tip and the index fingertip.
func PinchDistance(hand *detector.HandLandmarks, width, height int) float64 {
	return Distance(hand, detector.ThumbTip, detector.IndexTip, width, height)
}

// Measure builds a Sample for frame seq.
func Measure(hand *detector.HandLandmarks, width, height int, seq uint64, at time.Time) Sample {
	return Sample{
		Seq:      seq,
		At:       at,
		Distance: PinchDistance(hand, width, height),
	}
}
