package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/baton/internal/logging"
)

func TestSignalWatcherDeliversSignal(t *testing.T) {
	dir := t.TempDir()
	sw, err := NewSignalWatcher(dir, logging.Nop())
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sw.Run(ctx)

	payload := `{"phase_id":"2","status":"completed","reason":"all tasks done"}`
	if err := os.WriteFile(filepath.Join(dir, SignalFileName), []byte(payload), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case sig := <-sw.Signals:
		if sig.PhaseID != "2" {
			t.Errorf("PhaseID = %q, want %q", sig.PhaseID, "2")
		}
		if sig.Status != "completed" {
			t.Errorf("Status = %q, want completed", sig.Status)
		}
		if sig.SignaledAt.IsZero() {
			t.Error("SignaledAt should be stamped when absent from the file")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no signal delivered")
	}
}

func TestSignalWatcherIgnoresMalformedFile(t *testing.T) {
	dir := t.TempDir()
	sw, err := NewSignalWatcher(dir, logging.Nop())
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sw.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, SignalFileName), []byte("{broken"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case sig := <-sw.Signals:
		t.Fatalf("malformed signal file delivered a signal: %+v", sig)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestSignalWatcherPicksUpPreexistingFile(t *testing.T) {
	dir := t.TempDir()
	payload := `{"phase_id":"1","status":"completed"}`
	if err := os.WriteFile(filepath.Join(dir, SignalFileName), []byte(payload), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sw, err := NewSignalWatcher(dir, logging.Nop())
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sw.Run(ctx)

	select {
	case sig := <-sw.Signals:
		if sig.PhaseID != "1" {
			t.Errorf("PhaseID = %q, want %q", sig.PhaseID, "1")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("preexisting signal file not delivered")
	}
}
