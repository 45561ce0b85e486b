package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	motionBlurSize  = 21
	motionPixelDiff = 25
)

// MotionGate skips landmark detection while the scene is still. It compares
// each frame with the previous one after grayscale conversion and a 21x21
// Gaussian blur, and counts pixels that changed by more than 25 levels.
//
// A gate with threshold 0 is disabled and lets every frame through. The first
// frame after construction or Reset always passes so the pipeline starts with
// a detection.
type MotionGate struct {
	threshold   float64
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionGate creates a gate that opens when more than threshold percent of
// pixels change between consecutive frames.
func NewMotionGate(threshold float64) *MotionGate {
	if threshold < 0 {
		threshold = 0
	}
	return &MotionGate{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Enabled reports whether the gate filters frames.
func (m *MotionGate) Enabled() bool {
	return m != nil && m.threshold > 0
}

// Allow reports whether frame should go through detection, along with the
// percentage of changed pixels.
func (m *MotionGate) Allow(frame *gocv.Mat) (bool, float64) {
	if !m.Enabled() {
		return true, 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: motionBlurSize, Y: motionBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.initialized || m.prevGray.Rows() != blurred.Rows() || m.prevGray.Cols() != blurred.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, motionPixelDiff, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&m.prevGray)

	return changed > m.threshold, changed
}

// Reset drops the reference frame.
func (m *MotionGate) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prevGray.Close()
	m.prevGray = gocv.NewMat()
	m.initialized = false
}

// Close releases the reference frame. Close may be called more than once.
func (m *MotionGate) Close() {
	m.Reset()
}
