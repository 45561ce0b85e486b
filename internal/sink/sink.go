// Package sink applies volume levels to the host audio system.
//
// Every sink takes an absolute percent, so repeating a call with the same
// value leaves the system in the same state.
package sink

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/ayusman/mudra/internal/plugin"
)

var (
	// ErrOutOfRange is returned for percents outside [0,100].
	ErrOutOfRange = errors.New("volume out of range")
	// ErrUnsupported is returned when no sink exists for the host or kind.
	ErrUnsupported = errors.New("volume sink unsupported")
	// ErrTimeout is returned when a volume command does not finish in time.
	ErrTimeout = errors.New("volume command timed out")
)

// Sink kinds accepted by New.
const (
	KindAuto       = "auto"
	KindOsascript  = "osascript"
	KindAmixer     = "amixer"
	KindPactl      = "pactl"
	KindWpctl      = "wpctl"
	KindPowershell = "powershell"
	KindPlugin     = "plugin"
	KindLog        = "log"
)

// Kinds lists every kind New understands.
var Kinds = []string{KindAuto, KindOsascript, KindAmixer, KindPactl, KindWpctl, KindPowershell, KindPlugin, KindLog}

// Sink sets the system output volume.
type Sink interface {
	// SetVolume sets the output volume to percent (0..100).
	SetVolume(ctx context.Context, percent int) error
	// Name identifies the sink in logs and the journal.
	Name() string
}

// Options selects and configures a sink.
type Options struct {
	Kind        string
	LinuxDevice string
	PluginDir   string
	Plugin      string
	Timeout     time.Duration
	Runner      Runner
}

// New builds the sink for opts.Kind. KindAuto picks the host mechanism for
// runtime.GOOS.
func New(opts Options) (Sink, error) {
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	switch opts.Kind {
	case KindAuto, "":
		return autoSink(runtime.GOOS, opts, runner)
	case KindOsascript:
		return NewOsascript(runner), nil
	case KindAmixer:
		return NewAmixer(runner, opts.LinuxDevice), nil
	case KindPactl:
		return NewPactl(runner), nil
	case KindWpctl:
		return NewWpctl(runner), nil
	case KindPowershell:
		return NewPowershell(runner), nil
	case KindLog:
		return NewLogSink(), nil
	case KindPlugin:
		return pluginSink(opts)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrUnsupported, opts.Kind)
	}
}

func autoSink(goos string, opts Options, runner Runner) (Sink, error) {
	switch goos {
	case "darwin":
		return NewOsascript(runner), nil
	case "windows":
		return NewPowershell(runner), nil
	case "linux":
		for _, bin := range []string{"amixer", "pactl", "wpctl"} {
			if _, err := lookPath(bin); err != nil {
				continue
			}
			switch bin {
			case "amixer":
				return NewAmixer(runner, opts.LinuxDevice), nil
			case "pactl":
				return NewPactl(runner), nil
			default:
				return NewWpctl(runner), nil
			}
		}
		return nil, fmt.Errorf("%w: none of amixer, pactl or wpctl found in PATH", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
}

func pluginSink(opts Options) (Sink, error) {
	mgr := plugin.NewManager(opts.PluginDir)
	if err := mgr.Discover(); err != nil {
		return nil, fmt.Errorf("discover plugins in %s: %w", opts.PluginDir, err)
	}
	p, err := mgr.Find(opts.Plugin, plugin.ActionSetVolume)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewPluginSink(p, plugin.NewExecutor(timeout)), nil
}

func checkPercent(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: %d", ErrOutOfRange, percent)
	}
	return nil
}
