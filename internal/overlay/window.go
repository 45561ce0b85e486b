package overlay

import (
	"sync"

	"gocv.io/x/gocv"
)

// Renderer shows annotated frames.
type Renderer interface {
	// Show displays img and reports whether the user asked to quit.
	Show(img *gocv.Mat) bool
	Close() error
}

// WindowRenderer shows frames in an OpenCV window. Pressing q quits.
// It must be used from the goroutine that created it.
type WindowRenderer struct {
	window *gocv.Window
}

// NewWindowRenderer opens the preview window.
func NewWindowRenderer(title string) *WindowRenderer {
	return &WindowRenderer{window: gocv.NewWindow(title)}
}

// Show displays img and polls the keyboard for 1ms.
func (r *WindowRenderer) Show(img *gocv.Mat) bool {
	r.window.IMShow(*img)
	return IsQuitKey(r.window.WaitKey(1))
}

// Close destroys the window.
func (r *WindowRenderer) Close() error {
	return r.window.Close()
}

// IsQuitKey reports whether key (as returned by WaitKey) is q or Q.
func IsQuitKey(key int) bool {
	key &= 0xFF
	return key == 'q' || key == 'Q'
}

// Nop discards frames. It is used for headless runs.
type Nop struct{}

func (Nop) Show(*gocv.Mat) bool { return false }
func (Nop) Close() error        { return nil }

// FrameBuffer holds the latest annotated frame as JPEG for the MJPEG stream.
type FrameBuffer struct {
	mu   sync.RWMutex
	jpeg []byte
	seq  uint64
}

// NewFrameBuffer creates an empty FrameBuffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Store encodes img and replaces the held frame.
func (b *FrameBuffer) Store(img *gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *img)
	if err != nil {
		return err
	}
	defer buf.Close()

	data := append([]byte(nil), buf.GetBytes()...)
	b.Put(data)
	return nil
}

// Put replaces the held frame with already-encoded JPEG data.
func (b *FrameBuffer) Put(jpeg []byte) {
	b.mu.Lock()
	b.jpeg = jpeg
	b.seq++
	b.mu.Unlock()
}

// Latest returns the held frame and its sequence number.
func (b *FrameBuffer) Latest() ([]byte, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.jpeg, b.seq
}
