package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/overlay"
	"github.com/ayusman/mudra/internal/status"
	"github.com/ayusman/mudra/internal/store"
)

func TestServer_Health(t *testing.T) {
	s := New(Config{Stats: func() any { return map[string]int{"frames": 7} }})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		stats, ok := response["stats"].(map[string]interface{})
		if !ok || stats["frames"] != float64(7) {
			t.Errorf("expected stats with frames 7, got %v", response["stats"])
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/", "/api/state", "/api/stream", "/api/sessions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_Routes(t *testing.T) {
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer db.Close()

	p := status.NewPublisher()
	p.Publish(status.State{Seq: 1, Volume: 12, HasVolume: true})

	s := New(Config{Publisher: p, Store: db})

	for _, path := range []string{"/api/state", "/api/sessions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusOK, rec.Code)
		}
	}
}

func TestStreamHandler(t *testing.T) {
	frames := overlay.NewFrameBuffer()
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}
	frames.Put(jpeg)

	h := NewStreamHandler(frames)
	h.interval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("unexpected Content-Type %q", ct)
	}

	body := rec.Body.Bytes()
	if n := bytes.Count(body, []byte("--frame\r\n")); n != 1 {
		t.Errorf("expected an unchanged frame to be sent once, got %d parts", n)
	}
	if !bytes.Contains(body, []byte("Content-Length: 6\r\n\r\n")) {
		t.Errorf("missing part header in %q", body)
	}
	if !bytes.Contains(body, jpeg) {
		t.Error("frame payload missing from stream")
	}
}

func TestStreamHandler_EmptyBuffer(t *testing.T) {
	h := NewStreamHandler(overlay.NewFrameBuffer())
	h.interval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx))

	if rec.Body.Len() != 0 {
		t.Errorf("expected no parts before the first frame, got %q", rec.Body.String())
	}
}

func TestEventsHandler(t *testing.T) {
	p := status.NewPublisher()
	p.Publish(status.State{Seq: 1, Volume: 20, HasVolume: true})

	s := New(Config{Publisher: p})
	ts := httptest.NewServer(s)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var st status.State
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("read latest: %v", err)
	}
	if st.Seq != 1 || st.Volume != 20 {
		t.Errorf("first message = %+v, want latest state", st)
	}

	// Wait for the handler to subscribe before publishing.
	deadline := time.Now().Add(time.Second)
	for p.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p.Publish(status.State{Seq: 2, Volume: 21, HasVolume: true})

	for {
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if st.Seq == 2 {
			break
		}
	}
	if st.Volume != 21 {
		t.Errorf("update volume = %d, want 21", st.Volume)
	}

	if s.events.Clients() != 1 {
		t.Errorf("Clients() = %d, want 1", s.events.Clients())
	}
}

func TestEventsHandler_CloseDisconnects(t *testing.T) {
	p := status.NewPublisher()
	h := NewEventsHandler(p)
	ts := httptest.NewServer(h)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for h.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	h.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}
}

// startServer runs s on a free local port and returns its address and the
// channel Serve's result arrives on.
func startServer(t *testing.T, ctx context.Context, s *Server) (string, <-chan error) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, addr) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/api/health")
		if err == nil {
			resp.Body.Close()
			return addr, errCh
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server on %s never came up", addr)
	return "", nil
}

func TestServer_Serve(t *testing.T) {
	s := New(Config{Publisher: status.NewPublisher()})
	ctx, cancel := context.WithCancel(context.Background())

	addr, errCh := startServer(t, ctx, s)

	resp, err := http.Get("http://" + addr + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestServer_ServeStopsWithStreamViewer(t *testing.T) {
	frames := overlay.NewFrameBuffer()
	frames.Put([]byte{0xff, 0xd8, 0xff, 0xd9})

	s := New(Config{Publisher: status.NewPublisher(), Frames: frames})
	ctx, cancel := context.WithCancel(context.Background())

	addr, errCh := startServer(t, ctx, s)

	resp, err := http.Get("http://" + addr + "/api/stream")
	if err != nil {
		t.Fatalf("GET /api/stream: %v", err)
	}
	defer resp.Body.Close()

	// Wait for the first part so the handler is known to be running.
	buf := make([]byte, 7)
	if _, err := io.ReadFull(resp.Body, buf); err != nil || string(buf) != "--frame" {
		t.Fatalf("first stream bytes = %q, err %v", buf, err)
	}

	start := time.Now()
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil with a stream viewer connected", err)
		}
		if elapsed := time.Since(start); elapsed >= shutdownTimeout {
			t.Errorf("Serve() took %s to stop, want well under %s", elapsed, shutdownTimeout)
		}
	case <-time.After(shutdownTimeout + 2*time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestNew(t *testing.T) {
	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})
}
