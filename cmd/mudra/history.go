package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/store"
)

var (
	historyLimit   int
	historySession string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent journal sessions and volume events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Journal.Path == "" {
			return errors.New("no journal configured: pass --journal or set journal.path")
		}

		db, err := store.New(config.ExpandPath(cfg.Journal.Path))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()

		if historySession != "" {
			return printEvents(cmd, db, historySession)
		}
		return printSessions(cmd, db)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 10, "Number of sessions to show")
	historyCmd.Flags().StringVarP(&historySession, "session", "s", "", "Show the volume events of one session")
	rootCmd.AddCommand(historyCmd)
}

func printSessions(cmd *cobra.Command, db *store.Store) error {
	sessions, err := db.Sessions().List(historyLimit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tCAMERA\tSINK\tEVENTS")
	fmt.Fprintln(w, "--\t-------\t--------\t------\t----\t------")

	for _, s := range sessions {
		events, err := db.Events().ListBySession(s.ID)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), duration, s.CameraIndex, s.Sink, len(events))
	}
	return w.Flush()
}

func printEvents(cmd *cobra.Command, db *store.Store, id string) error {
	if _, err := db.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("session %s not found", id)
		}
		return err
	}

	events, err := db.Events().ListBySession(id)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No volume events in this session.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tFRAME\tDISTANCE\tVOLUME\tRESULT")
	fmt.Fprintln(w, "----\t-----\t--------\t------\t------")
	for _, e := range events {
		result := "ok"
		if !e.OK {
			result = e.Error
		}
		fmt.Fprintf(w, "%s\t%d\t%.1f\t%d%%\t%s\n",
			e.CreatedAt.Local().Format("15:04:05.000"), e.Seq, e.Distance, e.Volume, result)
	}
	return w.Flush()
}
