package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayusman/mudra/internal/store"
)

// execute runs the root command with args in an isolated home directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MUDRA_CONFIG", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "mudra "+Version) {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	db, err := store.New(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	sess := &store.Session{Sink: "pactl"}
	if err := db.Sessions().Create(sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := db.Recorder(sess.ID).Record(&store.Event{Seq: 9, Distance: 115, Volume: 50, OK: true}); err != nil {
		t.Fatalf("failed to record event: %v", err)
	}
	db.Close()

	t.Run("sessions", func(t *testing.T) {
		out, err := execute(t, "history", "--journal", path)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if !strings.Contains(out, sess.ID) || !strings.Contains(out, "pactl") {
			t.Errorf("session missing from output:\n%s", out)
		}
	})

	t.Run("events", func(t *testing.T) {
		out, err := execute(t, "history", "--journal", path, "--session", sess.ID)
		if err != nil {
			t.Fatalf("history --session: %v", err)
		}
		if !strings.Contains(out, "50%") || !strings.Contains(out, "115.0") {
			t.Errorf("event missing from output:\n%s", out)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		if _, err := execute(t, "history", "--journal", path, "--session", "nope"); err == nil {
			t.Error("expected error for unknown session")
		}
	})
}

func TestHistoryCommand_NoJournal(t *testing.T) {
	if _, err := execute(t, "history", "--journal", ""); err == nil {
		t.Error("expected error without a journal")
	}
}

func TestInvalidFlagsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	_, err := execute(t, "history", "--journal", path, "--dist-min", "300", "--dist-max", "200")
	if err == nil || !strings.Contains(err.Error(), "dist_min") {
		t.Errorf("expected mapping validation error, got %v", err)
	}
}
