// Package detector provides hand detection interfaces and types for the pinch pipeline.
package detector

import "image"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D is a landmark in normalized image coordinates.
// X and Y are in [0,1] relative to frame width and height; Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Pixel converts landmark i to pixel coordinates for a width x height frame.
func (h *HandLandmarks) Pixel(i, width, height int) (float64, float64) {
	p := h.Points[i]
	return p.X * float64(width), p.Y * float64(height)
}

// PixelPoint is Pixel truncated to an image.Point, for drawing.
func (h *HandLandmarks) PixelPoint(i, width, height int) image.Point {
	x, y := h.Pixel(i, width, height)
	return image.Point{X: int(x), Y: int(y)}
}

// PixelPoints returns all landmarks in pixel space.
func (h *HandLandmarks) PixelPoints(width, height int) []image.Point {
	points := make([]image.Point, NumLandmarks)
	for i := range points {
		points[i] = h.PixelPoint(i, width, height)
	}
	return points
}

// Primary picks the hand the pipeline follows: the highest-scoring one.
// Returns nil when hands is empty.
func Primary(hands []HandLandmarks) *HandLandmarks {
	if len(hands) == 0 {
		return nil
	}
	best := &hands[0]
	for i := 1; i < len(hands); i++ {
		if hands[i].Score > best.Score {
			best = &hands[i]
		}
	}
	return best
}
