package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/log"
)

// ErrScriptNotFound is returned when mediapipe_service.py cannot be located.
var ErrScriptNotFound = errors.New("mediapipe_service.py not found")

// ErrUnavailable is returned once the helper has failed to start or crashed
// MaxRestarts times in a row. The detector does not recover from it.
var ErrUnavailable = errors.New("hand detector unavailable")

const (
	// idleShutdown is how long the Python process may sit unused before it is stopped.
	idleShutdown = 30 * time.Second
	// stopGrace is how long a stopping helper gets to exit after stdin closes.
	stopGrace = 2 * time.Second
	// maxRestartBackoff caps the delay between restart attempts.
	maxRestartBackoff = 30 * time.Second
)

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Wire protocol: the child announces {"ready":true} once its model is loaded.
// Each frame is then written to the child's stdin as a 4-byte big-endian
// length followed by JPEG bytes; the child answers with one JSON line of the
// form {"hands":[{"points":[{"x":..,"y":..,"z":..}],"handedness":"Right","score":0.9}]}.
//
// A helper that dies or stops answering is restarted with exponential
// backoff. After MaxRestarts consecutive failures every call returns
// ErrUnavailable.
type MediaPipeDetector struct {
	config     Config
	scriptPath string
	mu         sync.Mutex
	idleTimer  *time.Timer

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   *bufio.Reader
	deadline func(time.Time) error
	started  bool

	failures int
	lastErr  error
	retryAt  time.Time
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started by Start, or lazily on first detection.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withHelperDefaults()

	scriptPath := config.ScriptPath
	if scriptPath == "" {
		scriptPath = findMediaPipeScript()
	} else if _, err := os.Stat(scriptPath); err != nil {
		scriptPath = ""
	}
	if scriptPath == "" {
		return nil, ErrScriptNotFound
	}

	return &MediaPipeDetector{
		config:     config,
		scriptPath: scriptPath,
	}, nil
}

// Start launches the helper and waits for its ready line. Any failure is
// reported as ErrUnavailable so callers can abort before the first frame.
func (d *MediaPipeDetector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	d.resetIdleTimer()
	return nil
}

// Detect analyzes a frame and returns detected hand landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	if err := writeFrame(d.stdin, buf.GetBytes()); err != nil {
		return nil, d.fail(err)
	}

	line, err := d.readLine(d.config.ResponseTimeout)
	if err != nil {
		return nil, d.fail(err)
	}
	hands, err := parseHands(line)
	if err != nil {
		return nil, err
	}

	d.failures = 0
	d.resetIdleTimer()
	return hands, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop(false)
}

// args builds the helper's command line from the detector config.
func (d *MediaPipeDetector) args() []string {
	return []string{
		d.scriptPath,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	}
}

// ensureStarted spawns the helper unless it is running, inside a restart
// backoff window, or given up on.
func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}
	if d.failures >= d.config.MaxRestarts {
		return fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, d.failures, d.lastErr)
	}
	if wait := time.Until(d.retryAt); wait > 0 {
		return fmt.Errorf("mediapipe service restarting in %s: %v", wait.Round(time.Millisecond), d.lastErr)
	}
	if err := d.spawn(); err != nil {
		return d.fail(err)
	}
	return nil
}

func (d *MediaPipeDetector) spawn() error {
	pythonPath := pythonInterpreter()
	cmd := exec.Command(pythonPath, d.args()...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.deadline = nil
	if f, ok := stdout.(interface{ SetReadDeadline(time.Time) error }); ok {
		d.deadline = f.SetReadDeadline
	}
	d.started = true

	line, err := d.readLine(d.config.StartTimeout)
	if err != nil {
		return fmt.Errorf("wait for mediapipe service: %w", err)
	}
	if err := parseReady(line); err != nil {
		return err
	}

	log.Info("mediapipe service started", "python", pythonPath, "script", d.scriptPath, "pid", cmd.Process.Pid)
	return nil
}

// readLine reads one response line, giving up after timeout where the pipe
// supports deadlines.
func (d *MediaPipeDetector) readLine(timeout time.Duration) (string, error) {
	if d.deadline != nil && timeout > 0 {
		if err := d.deadline(time.Now().Add(timeout)); err == nil {
			defer d.deadline(time.Time{})
		}
	}
	line, err := d.stdout.ReadString('\n')
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", fmt.Errorf("no response within %s", timeout)
		}
		return "", fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// fail kills the helper and schedules the next start attempt.
func (d *MediaPipeDetector) fail(err error) error {
	d.stop(true)
	d.failures++
	d.lastErr = err

	if d.failures >= d.config.MaxRestarts {
		log.Error("mediapipe service failed, giving up", "attempts", d.failures, "err", err)
		return fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, d.failures, err)
	}

	delay := d.config.RestartBackoff << (d.failures - 1)
	if delay <= 0 || delay > maxRestartBackoff {
		delay = maxRestartBackoff
	}
	d.retryAt = time.Now().Add(delay)
	log.Warn("mediapipe service failed", "err", err, "attempt", d.failures, "retry_in", delay)
	return err
}

// stop ends the helper. Without kill it gets stopGrace to exit after stdin
// closes.
func (d *MediaPipeDetector) stop(kill bool) error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	cmd := d.cmd
	d.stdin.Close()
	if kill {
		cmd.Process.Kill()
	} else {
		t := time.AfterFunc(stopGrace, func() { cmd.Process.Kill() })
		defer t.Stop()
	}

	err := cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.deadline = nil

	log.Debug("mediapipe service stopped", "killed", kill)
	if kill {
		return nil
	}
	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.stop(false)
	})
}

// writeFrame sends one length-prefixed payload.
func writeFrame(w io.Writer, data []byte) error {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// helperReply is any line the helper writes.
type helperReply struct {
	Ready bool       `json:"ready"`
	Hands []jsonHand `json:"hands"`
	Error string     `json:"error"`
}

func decodeReply(line string) (helperReply, error) {
	var reply helperReply
	if err := json.Unmarshal([]byte(line), &reply); err != nil {
		return reply, fmt.Errorf("parse response: %w", err)
	}
	if reply.Error != "" {
		return reply, fmt.Errorf("mediapipe service: %s", reply.Error)
	}
	return reply, nil
}

// parseReady checks the helper's first line.
func parseReady(line string) error {
	reply, err := decodeReply(line)
	if err != nil {
		return err
	}
	if !reply.Ready {
		return fmt.Errorf("mediapipe service: unexpected greeting %q", strings.TrimSpace(line))
	}
	return nil
}

// parseHands converts a response line to landmarks. Hands with fewer than
// NumLandmarks points are dropped.
func parseHands(line string) ([]HandLandmarks, error) {
	reply, err := decodeReply(line)
	if err != nil {
		return nil, err
	}

	result := make([]HandLandmarks, 0, len(reply.Hands))
	for _, h := range reply.Hands {
		if len(h.Points) < NumLandmarks {
			continue
		}
		result = append(result, h.toHandLandmarks())
	}
	return result, nil
}

// EnvPython overrides the interpreter used for the helper process.
const EnvPython = "MUDRA_PYTHON"

// searchDirs lists where the helper script and a virtualenv are looked for:
// the working directory, its parent, the binary's directory and ~/.mudra.
func searchDirs() []string {
	dirs := []string{".", ".."}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".mudra"))
	}
	return dirs
}

// firstExisting returns the absolute form of the first dir/rel that exists.
func firstExisting(rel string) string {
	for _, dir := range searchDirs() {
		path := filepath.Join(dir, rel)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}

func findMediaPipeScript() string {
	return firstExisting(filepath.Join("scripts", "mediapipe_service.py"))
}

// pythonInterpreter prefers $MUDRA_PYTHON, then a venv next to the script
// search paths, then python3 from PATH.
func pythonInterpreter() string {
	if p := os.Getenv(EnvPython); p != "" {
		return p
	}
	if p := firstExisting(filepath.Join("venv", "bin", "python")); p != "" {
		return p
	}
	return "python3"
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness"`
	Score      float64     `json:"score"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		lm.Points[i] = Point3D{
			X: h.Points[i].X,
			Y: h.Points[i].Y,
			Z: h.Points[i].Z,
		}
	}

	return lm
}
