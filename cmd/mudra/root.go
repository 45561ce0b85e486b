package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/log"
)

// Version is the application version.
const Version = "0.1.0"

// Flag values shared by every subcommand. They only override the loaded
// config when set on the command line.
var flags struct {
	configPath string

	camera              int
	detectionConfidence float64
	trackingConfidence  float64
	distMin, distMax    float64
	volMin, volMax      float64
	minChange           int
	minIntervalMS       int
	sink                string
	headless            bool
	tray                bool
	httpAddr            string
	journal             string
	logLevel            string
}

// cfg is the validated configuration, set by PersistentPreRunE.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "mudra",
	Short: "Control system volume with a pinch gesture",
	Long: `mudra watches the webcam for a hand and maps the distance between the
thumb and index fingertips to the system output volume.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, path, err := config.Load(flags.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		overrides(cmd).Apply(&loaded)
		if err := loaded.Validate(); err != nil {
			if path != "" {
				return fmt.Errorf("invalid config %s: %w", path, err)
			}
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := log.Init(loaded.Logging.Level); err != nil {
			return err
		}

		cfg = loaded
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runController(cmd.Context(), cfg)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to config file (default: $MUDRA_CONFIG or ~/.mudra/config.yaml)")
	pf.IntVar(&flags.camera, "camera", 0, "Camera device index")
	pf.Float64Var(&flags.detectionConfidence, "detection-confidence", 0.7, "Minimum hand detection confidence (0,1]")
	pf.Float64Var(&flags.trackingConfidence, "tracking-confidence", 0.7, "Minimum hand tracking confidence (0,1]")
	pf.Float64Var(&flags.distMin, "dist-min", 30, "Pinch distance in pixels that maps to the minimum volume")
	pf.Float64Var(&flags.distMax, "dist-max", 200, "Pinch distance in pixels that maps to the maximum volume")
	pf.Float64Var(&flags.volMin, "vol-min", 0, "Minimum volume percent")
	pf.Float64Var(&flags.volMax, "vol-max", 100, "Maximum volume percent")
	pf.IntVar(&flags.minChange, "min-change", 2, "Smallest volume change in percent that is applied")
	pf.IntVar(&flags.minIntervalMS, "min-interval", 100, "Minimum milliseconds between volume commands (0 disables)")
	pf.StringVar(&flags.sink, "sink", "auto", "Volume sink: auto, osascript, amixer, pactl, wpctl, powershell, plugin, log")
	pf.BoolVar(&flags.headless, "headless", false, "Run without the preview window")
	pf.BoolVar(&flags.tray, "tray", false, "Show a system tray menu (implies --headless)")
	pf.StringVar(&flags.httpAddr, "http", "", "Serve state and preview over HTTP on this address (empty disables)")
	pf.StringVar(&flags.journal, "journal", "", "SQLite file for the volume journal (empty disables)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

// overrides collects the flags the user actually set.
func overrides(cmd *cobra.Command) config.FlagOverrides {
	fs := cmd.Flags()
	var o config.FlagOverrides

	if fs.Changed("camera") {
		o.CameraIndex = &flags.camera
	}
	if fs.Changed("detection-confidence") {
		o.DetectionConfidence = &flags.detectionConfidence
	}
	if fs.Changed("tracking-confidence") {
		o.TrackingConfidence = &flags.trackingConfidence
	}
	if fs.Changed("dist-min") {
		o.DistMin = &flags.distMin
	}
	if fs.Changed("dist-max") {
		o.DistMax = &flags.distMax
	}
	if fs.Changed("vol-min") {
		o.VolMin = &flags.volMin
	}
	if fs.Changed("vol-max") {
		o.VolMax = &flags.volMax
	}
	if fs.Changed("min-change") {
		o.MinChange = &flags.minChange
	}
	if fs.Changed("min-interval") {
		o.MinIntervalMS = &flags.minIntervalMS
	}
	if fs.Changed("sink") {
		o.SinkKind = &flags.sink
	}
	if fs.Changed("headless") {
		o.Headless = &flags.headless
	}
	if fs.Changed("tray") {
		o.Tray = &flags.tray
	}
	if fs.Changed("http") {
		o.HTTPAddr = &flags.httpAddr
	}
	if fs.Changed("journal") {
		o.JournalPath = &flags.journal
	}
	if fs.Changed("log-level") {
		o.LogLevel = &flags.logLevel
	}
	return o
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	// Ctrl+C and SIGTERM stop the controller the same way the quit key does.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
