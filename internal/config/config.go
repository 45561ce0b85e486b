// Package config loads the mudra YAML configuration.
//
// Precedence is defaults, then the config file, then command-line flags.
// Validate runs once after all three are merged, before the first frame.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/log"
	"github.com/ayusman/mudra/internal/pinch"
	"github.com/ayusman/mudra/internal/sink"
	"github.com/ayusman/mudra/internal/smoother"
)

// EnvConfig names the environment variable holding the config path.
const EnvConfig = "MUDRA_CONFIG"

// Config is the top-level YAML configuration.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Detector  DetectorConfig  `yaml:"detector"`
	Mapping   MappingConfig   `yaml:"mapping"`
	Smoothing SmoothingConfig `yaml:"smoothing"`
	Motion    MotionConfig    `yaml:"motion"`
	Sink      SinkConfig      `yaml:"sink"`
	UI        UIConfig        `yaml:"ui"`
	HTTP      HTTPConfig      `yaml:"http"`
	Journal   JournalConfig   `yaml:"journal"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type CameraConfig struct {
	Index           int  `yaml:"index"`
	Width           int  `yaml:"width"`
	Height          int  `yaml:"height"`
	FPS             int  `yaml:"fps"`
	Mirror          bool `yaml:"mirror"`
	MaxReadFailures int  `yaml:"max_read_failures"`
}

type DetectorConfig struct {
	DetectionConfidence float64 `yaml:"detection_confidence"`
	TrackingConfidence  float64 `yaml:"tracking_confidence"`
	Script              string  `yaml:"script,omitempty"`
}

// MappingConfig is the distance (pixels) to volume (percent) range.
type MappingConfig struct {
	DistMin float64 `yaml:"dist_min"`
	DistMax float64 `yaml:"dist_max"`
	VolMin  float64 `yaml:"vol_min"`
	VolMax  float64 `yaml:"vol_max"`
}

type SmoothingConfig struct {
	MinChange     int `yaml:"min_change"`
	MinIntervalMS int `yaml:"min_interval_ms"`
}

// MotionConfig gates detection on scene motion. Threshold is the percent of
// changed pixels; 0 disables the gate.
type MotionConfig struct {
	Threshold float64 `yaml:"threshold"`
}

type SinkConfig struct {
	Kind        string `yaml:"kind"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	PluginDir   string `yaml:"plugin_dir"`
	Plugin      string `yaml:"plugin"`
	LinuxDevice string `yaml:"linux_device"`
}

type UIConfig struct {
	Headless bool `yaml:"headless"`
	Tray     bool `yaml:"tray"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	m := pinch.DefaultMapping()
	return Config{
		Camera: CameraConfig{
			Index:           0,
			Width:           capture.DefaultWidth,
			Height:          capture.DefaultHeight,
			FPS:             capture.DefaultFPS,
			Mirror:          true,
			MaxReadFailures: 30,
		},
		Detector: DetectorConfig{
			DetectionConfidence: 0.7,
			TrackingConfidence:  0.7,
		},
		Mapping: MappingConfig{
			DistMin: m.DistMin,
			DistMax: m.DistMax,
			VolMin:  m.VolMin,
			VolMax:  m.VolMax,
		},
		Smoothing: SmoothingConfig{
			MinChange:     smoother.DefaultMinChange,
			MinIntervalMS: int(smoother.DefaultMinInterval / time.Millisecond),
		},
		Sink: SinkConfig{
			Kind:        sink.KindAuto,
			TimeoutMS:   int(sink.DefaultTimeout / time.Millisecond),
			PluginDir:   "~/.mudra/plugins",
			Plugin:      "system-volume",
			LinuxDevice: "pulse",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file over the defaults.
// Unknown fields and trailing documents are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults.
func Parse(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// Load resolves the config path and loads it. An unset path with no default
// file yields DefaultConfig. The returned string is the file used, if any.
func Load(flagPath string) (Config, string, error) {
	path, err := ResolvePath(flagPath)
	if err != nil {
		return Config{}, "", err
	}
	if path == "" {
		return DefaultConfig(), "", nil
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return Config{}, path, err
	}
	log.Debug("loaded config", "path", path)
	return cfg, path, nil
}

// ResolvePath picks the config file: flag, then $MUDRA_CONFIG, then
// ~/.mudra/config.yaml if it exists. Empty means no file.
func ResolvePath(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}
	p := filepath.Join(home, ".mudra", "config.yaml")
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat %s: %w", p, err)
	}
	return p, nil
}

// FlagOverrides holds values from command-line flags. Nil pointers are
// ignored; non-nil values are applied even when zero.
type FlagOverrides struct {
	CameraIndex *int

	DetectionConfidence *float64
	TrackingConfidence  *float64

	DistMin *float64
	DistMax *float64
	VolMin  *float64
	VolMax  *float64

	MinChange     *int
	MinIntervalMS *int

	SinkKind *string

	Headless *bool
	Tray     *bool

	HTTPAddr    *string
	JournalPath *string
	LogLevel    *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.CameraIndex != nil {
		cfg.Camera.Index = *o.CameraIndex
	}
	if o.DetectionConfidence != nil {
		cfg.Detector.DetectionConfidence = *o.DetectionConfidence
	}
	if o.TrackingConfidence != nil {
		cfg.Detector.TrackingConfidence = *o.TrackingConfidence
	}
	if o.DistMin != nil {
		cfg.Mapping.DistMin = *o.DistMin
	}
	if o.DistMax != nil {
		cfg.Mapping.DistMax = *o.DistMax
	}
	if o.VolMin != nil {
		cfg.Mapping.VolMin = *o.VolMin
	}
	if o.VolMax != nil {
		cfg.Mapping.VolMax = *o.VolMax
	}
	if o.MinChange != nil {
		cfg.Smoothing.MinChange = *o.MinChange
	}
	if o.MinIntervalMS != nil {
		cfg.Smoothing.MinIntervalMS = *o.MinIntervalMS
	}
	if o.SinkKind != nil {
		cfg.Sink.Kind = *o.SinkKind
	}
	if o.Headless != nil {
		cfg.UI.Headless = *o.Headless
	}
	if o.Tray != nil {
		cfg.UI.Tray = *o.Tray
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
	}
	if o.JournalPath != nil {
		cfg.Journal.Path = *o.JournalPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants. Errors name the offending YAML key.
func (c *Config) Validate() error {
	if c.Camera.Index < 0 {
		return errors.New("camera.index must be >= 0")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return errors.New("camera.width and camera.height must be > 0")
	}
	if c.Camera.FPS <= 0 {
		return errors.New("camera.fps must be > 0")
	}
	if c.Camera.MaxReadFailures <= 0 {
		return errors.New("camera.max_read_failures must be > 0")
	}

	if !(c.Detector.DetectionConfidence > 0 && c.Detector.DetectionConfidence <= 1) {
		return errors.New("detector.detection_confidence must be in (0, 1]")
	}
	if !(c.Detector.TrackingConfidence > 0 && c.Detector.TrackingConfidence <= 1) {
		return errors.New("detector.tracking_confidence must be in (0, 1]")
	}

	for _, f := range []struct {
		key string
		v   float64
	}{
		{"mapping.dist_min", c.Mapping.DistMin},
		{"mapping.dist_max", c.Mapping.DistMax},
		{"mapping.vol_min", c.Mapping.VolMin},
		{"mapping.vol_max", c.Mapping.VolMax},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s must be a finite number, got %g", f.key, f.v)
		}
	}
	if c.Mapping.DistMin < 0 {
		return errors.New("mapping.dist_min must be >= 0")
	}
	if c.Mapping.DistMin >= c.Mapping.DistMax {
		return fmt.Errorf("mapping.dist_min must be < mapping.dist_max: %w", pinch.ErrInvalidRange)
	}
	if c.Mapping.VolMin < 0 || c.Mapping.VolMin > 100 {
		return errors.New("mapping.vol_min must be between 0 and 100")
	}
	if c.Mapping.VolMax < 0 || c.Mapping.VolMax > 100 {
		return errors.New("mapping.vol_max must be between 0 and 100")
	}

	if c.Smoothing.MinChange < 1 || c.Smoothing.MinChange > 100 {
		return errors.New("smoothing.min_change must be between 1 and 100")
	}
	if c.Smoothing.MinIntervalMS < 0 {
		return errors.New("smoothing.min_interval_ms must be >= 0")
	}

	if !(c.Motion.Threshold >= 0 && c.Motion.Threshold <= 100) {
		return errors.New("motion.threshold must be between 0 and 100")
	}

	if !slices.Contains(sink.Kinds, c.Sink.Kind) {
		return fmt.Errorf("sink.kind must be one of %v, got %q", sink.Kinds, c.Sink.Kind)
	}
	if c.Sink.TimeoutMS <= 0 {
		return errors.New("sink.timeout_ms must be > 0")
	}
	if c.Sink.Kind == sink.KindPlugin {
		if c.Sink.PluginDir == "" {
			return errors.New("sink.kind is plugin but sink.plugin_dir is empty")
		}
		if c.Sink.Plugin == "" {
			return errors.New("sink.kind is plugin but sink.plugin is empty")
		}
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// Headless reports whether the overlay window stays closed. The tray owns the
// main thread, so tray mode is always headless.
func (c *Config) Headless() bool {
	return c.UI.Headless || c.UI.Tray
}

// ToMapping returns the range mapper configuration.
func (c *Config) ToMapping() pinch.Mapping {
	return pinch.Mapping{
		DistMin: c.Mapping.DistMin,
		DistMax: c.Mapping.DistMax,
		VolMin:  c.Mapping.VolMin,
		VolMax:  c.Mapping.VolMax,
	}
}

// ToSmoother returns the smoother configuration.
func (c *Config) ToSmoother() smoother.Config {
	return smoother.Config{
		MinChange:   c.Smoothing.MinChange,
		MinInterval: time.Duration(c.Smoothing.MinIntervalMS) * time.Millisecond,
	}
}

// ToDetector returns the landmark detector configuration.
func (c *Config) ToDetector() detector.Config {
	cfg := detector.DefaultConfig()
	cfg.MinConfidence = c.Detector.DetectionConfidence
	cfg.MinTrackingConf = c.Detector.TrackingConfidence
	cfg.ScriptPath = ExpandPath(c.Detector.Script)
	return cfg
}

// ToCamera returns the capture configuration.
func (c *Config) ToCamera() capture.Config {
	return capture.Config{
		Index:  c.Camera.Index,
		Width:  c.Camera.Width,
		Height: c.Camera.Height,
		FPS:    c.Camera.FPS,
	}
}

// ToSink returns the sink options.
func (c *Config) ToSink() sink.Options {
	return sink.Options{
		Kind:        c.Sink.Kind,
		LinuxDevice: c.Sink.LinuxDevice,
		PluginDir:   ExpandPath(c.Sink.PluginDir),
		Plugin:      c.Sink.Plugin,
		Timeout:     c.SinkTimeout(),
	}
}

// SinkTimeout returns the per-call volume command timeout.
func (c *Config) SinkTimeout() time.Duration {
	return time.Duration(c.Sink.TimeoutMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
