package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when a plugin does not finish within the executor timeout.
	ErrTimeout = errors.New("plugin execution timeout")
	// ErrUnsupportedAction is returned for actions missing from the manifest.
	ErrUnsupportedAction = errors.New("action not supported by plugin")
)

// maxStderr caps how much of a plugin's stderr ends up in an error message.
const maxStderr = 512

// ExitError reports a plugin process that failed to run or exited non-zero.
type ExitError struct {
	Plugin string
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("plugin %s exited with code %d", e.Plugin, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// Executor runs plugin processes, one per request.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new Executor with the specified timeout.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// Timeout returns the per-call timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute sends req to the plugin on stdin and decodes its stdout. The call is
// bounded by both ctx and the executor timeout. A Response with Success false
// is returned as is; callers decide what a refusal means.
func (e *Executor) Execute(ctx context.Context, p *Plugin, req *Request) (*Response, error) {
	if !p.Supports(req.Action) {
		return nil, fmt.Errorf("plugin %s: %w: %s", p.Manifest.Name, ErrUnsupportedAction, req.Action)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: encode request: %w", p.Manifest.Name, err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Executable)
	cmd.Dir = p.Path
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("plugin %s: %w after %s", p.Manifest.Name, ErrTimeout, e.timeout)
	}
	if runErr != nil {
		exitErr := &ExitError{Plugin: p.Manifest.Name, Code: -1, Stderr: clip(stderr.String()), Err: runErr}
		var ee *exec.ExitError
		if errors.As(runErr, &ee) {
			exitErr.Code = ee.ExitCode()
		}
		return nil, exitErr
	}

	return decodeResponse(p.Manifest.Name, stdout.Bytes())
}

// SetVolume asks the plugin to apply percent. A refusal is an error.
func (e *Executor) SetVolume(ctx context.Context, p *Plugin, percent int) error {
	params, err := json.Marshal(VolumeParams{Percent: percent})
	if err != nil {
		return fmt.Errorf("plugin %s: encode params: %w", p.Manifest.Name, err)
	}

	resp, err := e.Execute(ctx, p, &Request{Action: ActionSetVolume, Params: params})
	if err != nil {
		return err
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "refused without a reason"
		}
		return fmt.Errorf("plugin %s: set-volume %d: %s", p.Manifest.Name, percent, reason)
	}
	return nil
}

// decodeResponse parses the last non-empty stdout line, so plugins may log
// progress to stdout before answering.
func decodeResponse(name string, out []byte) (*Response, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return nil, fmt.Errorf("plugin %s: empty response", name)
	}

	var resp Response
	if err := json.Unmarshal([]byte(last), &resp); err != nil {
		return nil, fmt.Errorf("plugin %s: bad response %q: %w", name, clip(last), err)
	}
	return &resp, nil
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[:maxStderr] + "..."
	}
	return s
}
