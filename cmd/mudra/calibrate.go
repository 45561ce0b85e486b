package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/calibrate"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
)

var calibrateFrames int

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Sample pinch distances and suggest dist_min/dist_max",
	Long: `calibrate reads frames from the camera while you open and close a pinch,
then prints a distance range covering the 5th to 95th percentile of what it saw.
Copy the suggestion into the mapping section of your config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		det, err := detector.NewMediaPipeDetector(cfg.ToDetector())
		if err != nil {
			return fmt.Errorf("create hand detector: %w", err)
		}
		defer det.Close()

		fmt.Println("Slowly pinch and spread your thumb and index finger in front of the camera...")

		r := &calibrate.Runner{
			Camera:   capture.NewCamera(cfg.ToCamera()),
			Detector: det,
			Mirror:   cfg.Camera.Mirror,
			Frames:   calibrateFrames,
			Progress: os.Stderr,
		}
		distances, err := r.Run(cmd.Context())
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		st, err := calibrate.Summarize(distances)
		if err != nil {
			return fmt.Errorf("%w: keep one hand in view while calibrating", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Samples: %d of %d frames\n", st.Samples, calibrateFrames)
		fmt.Fprintf(out, "Distance px: min %.1f  p5 %.1f  mean %.1f  p95 %.1f  max %.1f\n",
			st.Min, st.P5, st.Mean, st.P95, st.Max)

		m, err := calibrate.Suggest(st, cfg.ToMapping())
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Suggested config:")
		fmt.Fprintln(out, "mapping:")
		fmt.Fprintf(out, "  dist_min: %.0f\n", m.DistMin)
		fmt.Fprintf(out, "  dist_max: %.0f\n", m.DistMax)
		return nil
	},
}

func init() {
	calibrateCmd.Flags().IntVarP(&calibrateFrames, "frames", "n", 150, "Number of frames to sample")
	rootCmd.AddCommand(calibrateCmd)
}
