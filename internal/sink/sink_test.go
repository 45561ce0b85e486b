package sink

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/plugin"
)

// fakeRunner records command lines instead of running them.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.err
}

func (f *fakeRunner) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return strings.Join(f.calls[len(f.calls)-1], " ")
}

func TestCommandSinks(t *testing.T) {
	tests := []struct {
		name    string
		sink    func(r Runner) *CommandSink
		percent int
		want    string
	}{
		{
			name:    "osascript",
			sink:    NewOsascript,
			percent: 42,
			want:    "osascript -e set volume output volume 42",
		},
		{
			name:    "amixer default device",
			sink:    func(r Runner) *CommandSink { return NewAmixer(r, "") },
			percent: 75,
			want:    "amixer -q -D pulse sset Master 75%",
		},
		{
			name:    "amixer custom device",
			sink:    func(r Runner) *CommandSink { return NewAmixer(r, "default") },
			percent: 0,
			want:    "amixer -q -D default sset Master 0%",
		},
		{
			name:    "pactl",
			sink:    NewPactl,
			percent: 100,
			want:    "pactl set-sink-volume @DEFAULT_SINK@ 100%",
		},
		{
			name:    "wpctl",
			sink:    NewWpctl,
			percent: 5,
			want:    "wpctl set-volume @DEFAULT_AUDIO_SINK@ 0.05",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{}
			s := tt.sink(r)

			if err := s.SetVolume(context.Background(), tt.percent); err != nil {
				t.Fatalf("SetVolume() error = %v", err)
			}
			if got := r.last(); got != tt.want {
				t.Errorf("ran %q, want %q", got, tt.want)
			}
			if got := strings.Join(s.Command(tt.percent), " "); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPowershellSink(t *testing.T) {
	r := &fakeRunner{}
	s := NewPowershell(r)

	if err := s.SetVolume(context.Background(), 30); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	cmd := r.calls[0]
	if cmd[0] != "powershell" {
		t.Fatalf("binary = %q, want powershell", cmd[0])
	}
	script := cmd[len(cmd)-1]
	if !strings.HasSuffix(script, "[Audio]::Volume = 0.30") {
		t.Errorf("script does not end with the volume assignment: %q", script[len(script)-40:])
	}
	if !strings.Contains(script, "IAudioEndpointVolume") {
		t.Error("script is missing the endpoint volume interface")
	}
}

func TestCommandSink_OutOfRange(t *testing.T) {
	r := &fakeRunner{}
	s := NewPactl(r)

	for _, p := range []int{-1, 101, 1000} {
		if err := s.SetVolume(context.Background(), p); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetVolume(%d) error = %v, want ErrOutOfRange", p, err)
		}
	}
	if len(r.calls) != 0 {
		t.Errorf("out-of-range values reached the host: %v", r.calls)
	}
}

func TestCommandSink_RunnerError(t *testing.T) {
	r := &fakeRunner{err: errors.New("exit status 1")}
	s := NewOsascript(r)

	err := s.SetVolume(context.Background(), 50)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "osascript") {
		t.Errorf("error should name the sink: %v", err)
	}
}

func TestSetVolume_Idempotent(t *testing.T) {
	s := NewLogSink()
	ctx := context.Background()

	if err := s.SetVolume(ctx, 64); err != nil {
		t.Fatal(err)
	}
	once, _ := s.Last()
	if err := s.SetVolume(ctx, 64); err != nil {
		t.Fatal(err)
	}
	twice, _ := s.Last()

	if once != twice || twice != 64 {
		t.Errorf("state after one call = %d, after two = %d, want 64 both", once, twice)
	}

	r := &fakeRunner{}
	cs := NewAmixer(r, "")
	cs.SetVolume(ctx, 64)
	cs.SetVolume(ctx, 64)
	if strings.Join(r.calls[0], " ") != strings.Join(r.calls[1], " ") {
		t.Errorf("repeat command differs: %v vs %v", r.calls[0], r.calls[1])
	}
}

func TestLogSink(t *testing.T) {
	s := NewLogSink()
	if _, ok := s.Last(); ok {
		t.Error("new LogSink should have no value")
	}

	for _, v := range []int{10, 20, 30} {
		if err := s.SetVolume(context.Background(), v); err != nil {
			t.Fatalf("SetVolume(%d) error = %v", v, err)
		}
	}
	if err := s.SetVolume(context.Background(), 101); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}

	got := s.Values()
	if len(got) != 3 || got[0] != 10 || got[2] != 30 {
		t.Errorf("Values() = %v, want [10 20 30]", got)
	}
	if s.Name() != KindLog {
		t.Errorf("Name() = %q, want %q", s.Name(), KindLog)
	}
}

func TestLogSink_BoundedHistory(t *testing.T) {
	s := NewLogSinkSize(3)

	for v := 1; v <= 10; v++ {
		if err := s.SetVolume(context.Background(), v); err != nil {
			t.Fatalf("SetVolume(%d) error = %v", v, err)
		}
	}

	got := s.Values()
	if len(got) != 3 || got[0] != 8 || got[1] != 9 || got[2] != 10 {
		t.Errorf("Values() = %v, want [8 9 10]", got)
	}
	if last, ok := s.Last(); !ok || last != 10 {
		t.Errorf("Last() = (%d, %v), want (10, true)", last, ok)
	}
	if c := cap(s.values); c > 4 {
		t.Errorf("backing array grew to %d", c)
	}
}

func TestNew(t *testing.T) {
	r := &fakeRunner{}

	for _, kind := range []string{KindOsascript, KindAmixer, KindPactl, KindWpctl, KindPowershell, KindLog} {
		t.Run(kind, func(t *testing.T) {
			s, err := New(Options{Kind: kind, Runner: r})
			if err != nil {
				t.Fatalf("New(%q) error = %v", kind, err)
			}
			if s.Name() != kind {
				t.Errorf("Name() = %q, want %q", s.Name(), kind)
			}
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		if _, err := New(Options{Kind: "alsa-direct"}); !errors.Is(err, ErrUnsupported) {
			t.Errorf("expected ErrUnsupported, got %v", err)
		}
	})

	t.Run("missing plugin", func(t *testing.T) {
		_, err := New(Options{Kind: KindPlugin, PluginDir: t.TempDir(), Plugin: "system-volume"})
		if !errors.Is(err, plugin.ErrPluginNotFound) {
			t.Errorf("expected ErrPluginNotFound, got %v", err)
		}
	})
}

func TestAutoSink(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })

	available := func(bins ...string) {
		lookPath = func(file string) (string, error) {
			for _, b := range bins {
				if b == file {
					return "/usr/bin/" + file, nil
				}
			}
			return "", exec.ErrNotFound
		}
	}

	tests := []struct {
		name    string
		goos    string
		bins    []string
		want    string
		wantErr bool
	}{
		{name: "darwin", goos: "darwin", want: KindOsascript},
		{name: "windows", goos: "windows", want: KindPowershell},
		{name: "linux prefers amixer", goos: "linux", bins: []string{"wpctl", "pactl", "amixer"}, want: KindAmixer},
		{name: "linux falls back to pactl", goos: "linux", bins: []string{"wpctl", "pactl"}, want: KindPactl},
		{name: "linux pipewire only", goos: "linux", bins: []string{"wpctl"}, want: KindWpctl},
		{name: "linux without mixer", goos: "linux", wantErr: true},
		{name: "unknown host", goos: "plan9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			available(tt.bins...)
			s, err := autoSink(tt.goos, Options{}, &fakeRunner{})
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupported) {
					t.Errorf("expected ErrUnsupported, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("autoSink() error = %v", err)
			}
			if s.Name() != tt.want {
				t.Errorf("autoSink() = %q, want %q", s.Name(), tt.want)
			}
		})
	}
}

func TestPluginSink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script plugins are not supported on Windows")
	}

	dir := t.TempDir()
	out := filepath.Join(dir, "request.json")
	script := "#!/bin/sh\ncat > " + out + "\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "vol.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	p := &plugin.Plugin{
		Manifest:   plugin.Manifest{Name: "vol", Executable: "vol.sh", Actions: []string{plugin.ActionSetVolume}},
		Path:       dir,
		Executable: filepath.Join(dir, "vol.sh"),
	}
	s := NewPluginSink(p, plugin.NewExecutor(5*time.Second))

	if err := s.SetVolume(context.Background(), 55); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("plugin did not receive a request: %v", err)
	}
	want := `{"action":"set-volume","params":{"percent":55}}`
	if string(data) != want {
		t.Errorf("request = %s, want %s", data, want)
	}
	if s.Name() != "plugin:vol" {
		t.Errorf("Name() = %q", s.Name())
	}
}

func TestPluginSink_Failure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script plugins are not supported on Windows")
	}

	dir := t.TempDir()
	script := "#!/bin/sh\ncat >/dev/null\necho '{\"success\":false,\"error\":\"device busy\"}'\n"
	if err := os.WriteFile(filepath.Join(dir, "vol.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	p := &plugin.Plugin{
		Manifest:   plugin.Manifest{Name: "vol", Executable: "vol.sh", Actions: []string{plugin.ActionSetVolume}},
		Path:       dir,
		Executable: filepath.Join(dir, "vol.sh"),
	}

	err := NewPluginSink(p, plugin.NewExecutor(5*time.Second)).SetVolume(context.Background(), 20)
	if err == nil || !strings.Contains(err.Error(), "device busy") {
		t.Errorf("expected plugin error, got %v", err)
	}
}
