package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func TestNewCamera(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantFPS int
	}{
		{name: "defaults", cfg: DefaultConfig(), wantFPS: DefaultFPS},
		{name: "zero values fall back", cfg: Config{Index: 1}, wantFPS: DefaultFPS},
		{name: "custom rate", cfg: Config{Index: 2, FPS: 15}, wantFPS: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(tt.cfg)

			if got := cam.FPS(); got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}
			if cam.IsOpen() {
				t.Error("camera should not be running initially")
			}

			impl := cam.(*cameraImpl)
			if impl.cfg.Width <= 0 || impl.cfg.Height <= 0 {
				t.Errorf("size not defaulted: %dx%d", impl.cfg.Width, impl.cfg.Height)
			}
		})
	}
}

func TestCamera_ReadFrame_NotOpen(t *testing.T) {
	cam := NewCamera(DefaultConfig())

	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
}

func TestCamera_Close_NotOpen(t *testing.T) {
	cam := NewCamera(DefaultConfig())

	if err := cam.Close(); err != nil {
		t.Errorf("Close() on unopened camera error = %v", err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestCamera_OpenDevice(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires a camera")
	}

	cam := NewCamera(DefaultConfig())
	if err := cam.Open(); err != nil {
		t.Skipf("no camera available: %v", err)
	}
	defer cam.Close()

	mat, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	defer mat.Close()

	if mat.Empty() {
		t.Error("expected non-empty frame")
	}
}

func TestStream_Next(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	cam := NewBlankCamera(320, 240)
	defer cam.CloseFrames()
	cam.Open()
	defer cam.Close()

	s := NewStream(cam, true)
	for want := uint64(1); want <= 3; want++ {
		f, err := s.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if f.Seq != want {
			t.Errorf("Seq = %d, want %d", f.Seq, want)
		}
		if f.Width != 320 || f.Height != 240 {
			t.Errorf("size = %dx%d, want 320x240", f.Width, f.Height)
		}
		if f.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
		f.Close()
		if f.Mat != nil {
			t.Error("Close() should release the Mat")
		}
	}
}

func TestStream_FailedReadKeepsSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	cam := NewBlankCamera(64, 48)
	defer cam.CloseFrames()
	cam.Open()
	defer cam.Close()
	cam.FailNext(2, ErrReadFailed)

	s := NewStream(cam, false)
	for i := 0; i < 2; i++ {
		if _, err := s.Next(); !errors.Is(err, ErrReadFailed) {
			t.Fatalf("read %d: error = %v, want ErrReadFailed", i, err)
		}
	}
	f, err := s.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	defer f.Close()
	if f.Seq != 1 {
		t.Errorf("Seq = %d after failed reads, want 1", f.Seq)
	}
}

func TestMirror(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	mat := gocv.NewMatWithSize(2, 4, gocv.MatTypeCV8U)
	defer mat.Close()
	mat.SetUCharAt(0, 0, 200)

	Mirror(&mat)

	if got := mat.GetUCharAt(0, 3); got != 200 {
		t.Errorf("pixel (0,3) = %d after mirror, want 200", got)
	}
	if got := mat.GetUCharAt(0, 0); got != 0 {
		t.Errorf("pixel (0,0) = %d after mirror, want 0", got)
	}
}
