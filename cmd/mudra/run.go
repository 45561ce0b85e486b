package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/log"
	"github.com/ayusman/mudra/internal/overlay"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/sink"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the volume controller (default command)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runController(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func printInstructions(c config.Config, sinkName string) {
	fmt.Println("Hand Gesture Volume Controller")
	fmt.Println("==============================")
	fmt.Println("Pinch your thumb and index finger together to lower the volume,")
	fmt.Println("spread them apart to raise it.")
	fmt.Printf("Distance range: %.0f-%.0f px -> volume %.0f-%.0f%%\n",
		c.Mapping.DistMin, c.Mapping.DistMax, c.Mapping.VolMin, c.Mapping.VolMax)
	fmt.Printf("Volume sink: %s\n", sinkName)
	switch {
	case c.UI.Tray:
		fmt.Println("Use the tray menu to pause or quit.")
	case c.Headless():
		fmt.Println("Press Ctrl+C to quit.")
	default:
		fmt.Println("Press 'q' in the preview window to quit.")
	}
	if c.HTTP.Addr != "" {
		fmt.Printf("Live state: http://%s/api/state\n", c.HTTP.Addr)
	}
}

// runController wires the controller from c and runs it with the optional
// HTTP server and tray until one of them stops.
func runController(parent context.Context, c config.Config) error {
	volume, err := sink.New(c.ToSink())
	if err != nil {
		return fmt.Errorf("create volume sink: %w", err)
	}

	det, err := detector.NewMediaPipeDetector(c.ToDetector())
	if err != nil {
		return fmt.Errorf("create hand detector: %w", err)
	}

	var journal *store.Store
	var recorder *store.Recorder
	if c.Journal.Path != "" {
		journal, recorder, err = openJournal(c, volume.Name())
		if err != nil {
			det.Close()
			return err
		}
		defer func() {
			if err := journal.Sessions().End(recorder.SessionID(), time.Now()); err != nil {
				log.Warn("failed to end journal session", "err", err)
			}
			journal.Close()
		}()
	}

	var renderer overlay.Renderer = overlay.Nop{}
	if !c.Headless() {
		renderer = overlay.NewWindowRenderer(overlay.WindowTitle)
	}

	var frames *overlay.FrameBuffer
	if c.HTTP.Addr != "" {
		frames = overlay.NewFrameBuffer()
	}

	appCfg := app.Config{
		Camera:          capture.NewCamera(c.ToCamera()),
		Detector:        det,
		Sink:            volume,
		Mapping:         c.ToMapping(),
		Smoothing:       c.ToSmoother(),
		SinkTimeout:     c.SinkTimeout(),
		Mirror:          c.Camera.Mirror,
		MotionThreshold: c.Motion.Threshold,
		MaxReadFailures: c.Camera.MaxReadFailures,
		Renderer:        renderer,
		Frames:          frames,
	}
	if recorder != nil {
		appCfg.Journal = recorder
	}

	controller, err := app.New(appCfg)
	if err != nil {
		det.Close()
		renderer.Close()
		return err
	}

	printInstructions(c, volume.Name())

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if c.HTTP.Addr != "" {
		srv := server.New(server.Config{
			Publisher: controller.Publisher(),
			Frames:    frames,
			Store:     journal,
			Stats:     func() any { return controller.Stats() },
		})
		g.Go(func() error {
			return srv.Serve(gctx, c.HTTP.Addr)
		})
	}

	// The preview window and the tray both need the main goroutine. With a
	// tray the controller runs in the group; otherwise it runs here.
	var runErr error
	if c.UI.Tray {
		g.Go(func() error {
			defer cancel()
			return controller.Run(gctx)
		})

		t := tray.New(controller.Publisher())
		t.OnToggle(func(enabled bool) {
			controller.SetEnabled(enabled)
			log.Info("volume control toggled", "enabled", enabled)
		})
		t.OnQuit(cancel)
		t.Run(gctx)
	} else {
		runErr = controller.Run(gctx)
	}
	cancel()

	if err := errors.Join(runErr, g.Wait()); err != nil {
		return err
	}

	stats := controller.Stats()
	log.Info("run finished", "frames", stats.Frames, "commands", stats.Commands, "sink_failures", stats.SinkFailures)
	fmt.Println("Application closed successfully!")
	return nil
}

func openJournal(c config.Config, sinkName string) (*store.Store, *store.Recorder, error) {
	db, err := store.New(config.ExpandPath(c.Journal.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}

	snapshot, err := json.Marshal(c)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("encode config: %w", err)
	}

	sess := &store.Session{
		CameraIndex: c.Camera.Index,
		Sink:        sinkName,
		Config:      snapshot,
	}
	if err := db.Sessions().Create(sess); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create journal session: %w", err)
	}
	log.Info("journal session started", "id", sess.ID, "path", db.Path())
	return db, db.Recorder(sess.ID), nil
}
