package sink

import (
	"context"
	"fmt"
	"strconv"
)

// CommandSink sets the volume by running one host command per call.
type CommandSink struct {
	name   string
	bin    string
	args   func(percent int) []string
	runner Runner
}

// SetVolume runs the host command for percent.
func (s *CommandSink) SetVolume(ctx context.Context, percent int) error {
	if err := checkPercent(percent); err != nil {
		return err
	}
	if err := s.runner.Run(ctx, s.bin, s.args(percent)...); err != nil {
		return fmt.Errorf("set volume %d%% via %s: %w", percent, s.name, err)
	}
	return nil
}

// Name returns the sink kind.
func (s *CommandSink) Name() string {
	return s.name
}

// Command returns the command line SetVolume would run for percent.
func (s *CommandSink) Command(percent int) []string {
	return append([]string{s.bin}, s.args(percent)...)
}

// NewOsascript returns the macOS sink.
func NewOsascript(r Runner) *CommandSink {
	return &CommandSink{
		name:   KindOsascript,
		bin:    "osascript",
		runner: r,
		args: func(p int) []string {
			return []string{"-e", "set volume output volume " + strconv.Itoa(p)}
		},
	}
}

// NewAmixer returns the ALSA sink. device defaults to "pulse".
func NewAmixer(r Runner, device string) *CommandSink {
	if device == "" {
		device = "pulse"
	}
	return &CommandSink{
		name:   KindAmixer,
		bin:    "amixer",
		runner: r,
		args: func(p int) []string {
			return []string{"-q", "-D", device, "sset", "Master", strconv.Itoa(p) + "%"}
		},
	}
}

// NewPactl returns the PulseAudio sink.
func NewPactl(r Runner) *CommandSink {
	return &CommandSink{
		name:   KindPactl,
		bin:    "pactl",
		runner: r,
		args: func(p int) []string {
			return []string{"set-sink-volume", "@DEFAULT_SINK@", strconv.Itoa(p) + "%"}
		},
	}
}

// NewWpctl returns the PipeWire sink. wpctl takes a linear factor.
func NewWpctl(r Runner) *CommandSink {
	return &CommandSink{
		name:   KindWpctl,
		bin:    "wpctl",
		runner: r,
		args: func(p int) []string {
			return []string{"set-volume", "@DEFAULT_AUDIO_SINK@", fraction(p)}
		},
	}
}

// NewPowershell returns the Windows sink, which drives the Core Audio
// endpoint volume through an inline C# type.
func NewPowershell(r Runner) *CommandSink {
	return &CommandSink{
		name:   KindPowershell,
		bin:    "powershell",
		runner: r,
		args: func(p int) []string {
			return []string{"-NoProfile", "-NonInteractive", "-Command",
				coreAudioScript + "[Audio]::Volume = " + fraction(p)}
		},
	}
}

func fraction(p int) string {
	return strconv.FormatFloat(float64(p)/100, 'f', 2, 64)
}

const coreAudioScript = `$ErrorActionPreference = 'Stop'
Add-Type -TypeDefinition @'
using System.Runtime.InteropServices;
[Guid("5CDF2C82-841E-4546-9722-0CF74078229A"), InterfaceType(ComInterfaceType.InterfaceIsIUnknown)]
interface IAudioEndpointVolume {
  int f(); int g(); int h(); int i();
  int SetMasterVolumeLevelScalar(float fLevel, System.Guid pguidEventContext);
  int j();
  int GetMasterVolumeLevelScalar(out float pfLevel);
}
[Guid("D666063F-1587-4E43-81F1-B948E807363F"), InterfaceType(ComInterfaceType.InterfaceIsIUnknown)]
interface IMMDevice {
  int Activate(ref System.Guid id, int clsCtx, int activationParams, out IAudioEndpointVolume aev);
}
[Guid("A95664D2-9614-4F35-A746-DE8DB63617E6"), InterfaceType(ComInterfaceType.InterfaceIsIUnknown)]
interface IMMDeviceEnumerator {
  int f();
  int GetDefaultAudioEndpoint(int dataFlow, int role, out IMMDevice endpoint);
}
[ComImport, Guid("BCDE0395-E52F-467C-8E3D-C4579291692E")] class MMDeviceEnumeratorComObject { }
public class Audio {
  static IAudioEndpointVolume Vol() {
    var enumerator = new MMDeviceEnumeratorComObject() as IMMDeviceEnumerator;
    IMMDevice dev = null;
    Marshal.ThrowExceptionForHR(enumerator.GetDefaultAudioEndpoint(0, 1, out dev));
    IAudioEndpointVolume epv = null;
    var epvid = typeof(IAudioEndpointVolume).GUID;
    Marshal.ThrowExceptionForHR(dev.Activate(ref epvid, 23, 0, out epv));
    return epv;
  }
  public static float Volume {
    get { float v = -1; Marshal.ThrowExceptionForHR(Vol().GetMasterVolumeLevelScalar(out v)); return v; }
    set { Marshal.ThrowExceptionForHR(Vol().SetMasterVolumeLevelScalar(value, System.Guid.Empty)); }
  }
}
'@
`
