// Package overlay draws the controller state onto camera frames and shows
// them in a preview window.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/pinch"
	"github.com/ayusman/mudra/internal/status"
)

// WindowTitle is the preview window name.
const WindowTitle = "Hand Gesture Volume Controller"

// Bar geometry in pixels. The bar fills from barBottom up to barTop as the
// pinch opens across the mapping's distance range.
const (
	barLeft   = 50
	barRight  = 85
	barTop    = 150
	barBottom = 400

	tipRadius = 15
	midRadius = 10

	// CloseDistance is the pinch distance below which the midpoint turns red.
	CloseDistance = 40.0
)

var (
	green   = color.RGBA{G: 255}
	magenta = color.RGBA{R: 255, B: 255}
	red     = color.RGBA{R: 255}
	white   = color.RGBA{R: 255, G: 255, B: 255}
	cyan    = color.RGBA{G: 255, B: 255}
	grey    = color.RGBA{R: 128, G: 128, B: 128}
)

// handBones connects landmark indices for the skeleton drawing.
var handBones = [][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 4},
	{0, 5}, {5, 6}, {6, 7}, {7, 8},
	{5, 9}, {9, 10}, {10, 11}, {11, 12},
	{9, 13}, {13, 14}, {14, 15}, {15, 16},
	{13, 17}, {0, 17}, {17, 18}, {18, 19}, {19, 20},
}

// Annotator draws State onto frames.
type Annotator struct {
	mapping pinch.Mapping
}

// NewAnnotator creates an Annotator that places the volume bar using m.
func NewAnnotator(m pinch.Mapping) *Annotator {
	return &Annotator{mapping: m}
}

// Draw paints st onto img in place.
func (a *Annotator) Draw(img *gocv.Mat, st status.State) {
	if img == nil || img.Empty() {
		return
	}
	w, h := img.Cols(), img.Rows()

	if st.HandPresent {
		a.drawHand(img, st)
	} else {
		gocv.PutText(img, "No hand detected", image.Pt(w/2-150, h/2),
			gocv.FontHersheySimplex, 1, red, 2)
	}

	gocv.PutText(img, "Hand Gesture Volume Control", image.Pt(10, 30),
		gocv.FontHersheySimplex, 0.8, cyan, 2)

	if !st.Enabled {
		gocv.PutText(img, "Paused", image.Pt(10, 60),
			gocv.FontHersheySimplex, 0.7, grey, 2)
	}
}

func (a *Annotator) drawHand(img *gocv.Mat, st status.State) {
	if len(st.Points) == detector.NumLandmarks {
		for _, b := range handBones {
			gocv.Line(img, st.Points[b[0]], st.Points[b[1]], white, 2)
		}
		for _, p := range st.Points {
			gocv.Circle(img, p, 4, red, -1)
		}
	}

	gocv.Circle(img, st.Thumb, tipRadius, magenta, -1)
	gocv.Circle(img, st.Index, tipRadius, magenta, -1)
	gocv.Line(img, st.Thumb, st.Index, magenta, 3)

	mid := image.Pt((st.Thumb.X+st.Index.X)/2, (st.Thumb.Y+st.Index.Y)/2)
	midColour := green
	if st.Distance < CloseDistance {
		midColour = red
	}
	gocv.Circle(img, mid, midRadius, midColour, -1)

	gocv.Rectangle(img, image.Rect(barLeft, barTop, barRight, barBottom), green, 3)
	fill := a.mapping.BarY(st.Distance, barBottom, barTop)
	gocv.Rectangle(img, image.Rect(barLeft, fill, barRight, barBottom), green, -1)

	gocv.PutText(img, fmt.Sprintf("%d%%", Percent(st)), image.Pt(40, 450),
		gocv.FontHersheySimplex, 1, green, 3)

	w := img.Cols()
	gocv.PutText(img, "Pinch to Control Volume", image.Pt(w-400, 50),
		gocv.FontHersheySimplex, 0.7, white, 2)
	gocv.PutText(img, "Press 'q' to quit", image.Pt(w-400, 80),
		gocv.FontHersheySimplex, 0.7, white, 2)
}

// Percent is the number shown next to the bar: the applied volume once one
// exists, otherwise the mapped value.
func Percent(st status.State) int {
	if st.HasVolume {
		return st.Volume
	}
	return int(st.RawVolume)
}
