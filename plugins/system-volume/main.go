// Command system-volume is a mudra volume plugin that drives the host mixer.
// Build it into the plugin directory next to plugin.json:
//
//	go build -o ~/.mudra/plugins/system-volume/system-volume ./plugins/system-volume
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/sink"
)

// pluginConfig is the optional Config payload of a request.
type pluginConfig struct {
	Kind        string `json:"kind"`
	LinuxDevice string `json:"linux_device"`
}

const commandTimeout = 2 * time.Second

func main() {
	var req plugin.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(plugin.Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	writeResponse(handle(ctx, req, sink.ExecRunner{}))
}

// handle runs one request against the host mixer through runner.
func handle(ctx context.Context, req plugin.Request, runner sink.Runner) plugin.Response {
	cfg := pluginConfig{Kind: sink.KindAuto, LinuxDevice: "pulse"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return plugin.Response{Error: fmt.Sprintf("invalid config: %v", err)}
		}
	}

	switch req.Action {
	case plugin.ActionSetVolume:
		var params plugin.VolumeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return plugin.Response{Error: fmt.Sprintf("invalid params: %v", err)}
		}
		if cfg.Kind == sink.KindPlugin {
			return plugin.Response{Error: "kind plugin would call itself"}
		}
		s, err := sink.New(sink.Options{Kind: cfg.Kind, LinuxDevice: cfg.LinuxDevice, Runner: runner})
		if err != nil {
			return plugin.Response{Error: err.Error()}
		}
		if err := s.SetVolume(ctx, params.Percent); err != nil {
			return plugin.Response{Error: fmt.Sprintf("set-volume failed: %v", err)}
		}
		return plugin.Response{Success: true}

	case plugin.ActionGetVolume:
		percent, err := getVolume(ctx, runtime.GOOS)
		if err != nil {
			return plugin.Response{Error: fmt.Sprintf("get-volume failed: %v", err)}
		}
		data, _ := json.Marshal(plugin.VolumeParams{Percent: percent})
		return plugin.Response{Success: true, Data: data}

	default:
		return plugin.Response{Error: fmt.Sprintf("unknown action: %s", req.Action)}
	}
}

func getVolume(ctx context.Context, goos string) (int, error) {
	var cmd *exec.Cmd
	switch goos {
	case "darwin":
		cmd = exec.CommandContext(ctx, "osascript", "-e", "output volume of (get volume settings)")
	case "linux":
		cmd = exec.CommandContext(ctx, "pactl", "get-sink-volume", "@DEFAULT_SINK@")
	default:
		return 0, fmt.Errorf("%w: reading volume on %s", sink.ErrUnsupported, goos)
	}

	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	return parseVolume(string(out))
}

var percentRe = regexp.MustCompile(`(\d{1,3})%`)

// parseVolume reads either a bare number (osascript) or the first "NN%" in
// pactl output.
func parseVolume(out string) (int, error) {
	out = strings.TrimSpace(out)
	if n, err := strconv.Atoi(out); err == nil {
		return n, nil
	}
	m := percentRe.FindStringSubmatch(out)
	if m == nil {
		return 0, errors.New("no volume in mixer output")
	}
	return strconv.Atoi(m[1])
}

func writeResponse(resp plugin.Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
