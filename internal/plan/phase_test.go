package plan

import (
	"path/filepath"
	"testing"
)

const samplePhase = "# Phase 2: Core engine\n" +
	"\n" +
	"Depends On: 1, scaffolding\n" +
	"\n" +
	"Read notes from: notes/phase-1.md\n" +
	"\n" +
	"## Tasks\n" +
	"\n" +
	"- [ ] Implement the parser\n" +
	"- [x] Sketch the data model\n" +
	"- not a task\n" +
	"\n" +
	"## Gates\n" +
	"\n" +
	"- build: the project compiles (command: `go build ./...`)\n" +
	"- tests: unit tests pass (command: `go test ./...`)\n" +
	"- a bullet without a command\n" +
	"\n" +
	"Write notes to: notes/phase-2.md\n"

func TestParsePhase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phase-2.md")
	writeFile(t, path, samplePhase)

	ph, err := ParsePhase(path, "2")
	if err != nil {
		t.Fatalf("ParsePhase: %v", err)
	}

	if ph.ID != "2" {
		t.Errorf("ID = %q, want %q", ph.ID, "2")
	}
	if ph.Title != "Core engine" {
		t.Errorf("Title = %q, want %q", ph.Title, "Core engine")
	}
	if len(ph.DependsOn) != 2 || ph.DependsOn[0] != "1" || ph.DependsOn[1] != "scaffolding" {
		t.Errorf("DependsOn = %v, want [1 scaffolding]", ph.DependsOn)
	}
	if ph.NotesInput != "notes/phase-1.md" {
		t.Errorf("NotesInput = %q", ph.NotesInput)
	}
	if ph.NotesOutput != "notes/phase-2.md" {
		t.Errorf("NotesOutput = %q", ph.NotesOutput)
	}

	if len(ph.Gates) != 2 {
		t.Fatalf("len(Gates) = %d, want 2: %+v", len(ph.Gates), ph.Gates)
	}
	if ph.Gates[0].Name != "build" || ph.Gates[0].Command != "go build ./..." {
		t.Errorf("Gates[0] = %+v", ph.Gates[0])
	}
	if ph.Gates[1].Name != "tests" || ph.Gates[1].Command != "go test ./..." {
		t.Errorf("Gates[1] = %+v", ph.Gates[1])
	}

	if len(ph.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2: %+v", len(ph.Tasks), ph.Tasks)
	}
	if ph.Tasks[0].Completed {
		t.Error("Tasks[0] should be incomplete")
	}
	if !ph.Tasks[1].Completed {
		t.Error("Tasks[1] should be complete")
	}
}

func TestParsePhaseMinimal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bare.md")
	writeFile(t, path, "# Just a title\n\nFree-form prose only.\n")

	ph, err := ParsePhase(path, "bare")
	if err != nil {
		t.Fatalf("ParsePhase: %v", err)
	}
	if ph.Title != "Just a title" {
		t.Errorf("Title = %q", ph.Title)
	}
	if len(ph.Gates) != 0 || len(ph.Tasks) != 0 || len(ph.DependsOn) != 0 {
		t.Errorf("bare phase should have no structure: %+v", ph)
	}
}

func TestParsePhaseDependsOnNone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.md")
	writeFile(t, path, "# P\n\nDepends On: none\n")

	ph, err := ParsePhase(path, "1")
	if err != nil {
		t.Fatalf("ParsePhase: %v", err)
	}
	if len(ph.DependsOn) != 0 {
		t.Errorf("DependsOn = %v, want empty", ph.DependsOn)
	}
}

func TestParsePhaseMissingFile(t *testing.T) {
	if _, err := ParsePhase(filepath.Join(t.TempDir(), "nope.md"), "1"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPhaseStatusPredicates(t *testing.T) {
	tests := []struct {
		status   PhaseStatus
		terminal bool
		done     bool
	}{
		{StatusPending, false, false},
		{StatusRunning, false, false},
		{StatusAwaitingGates, false, false},
		{StatusRetryPending, false, false},
		{StatusCompleted, true, true},
		{StatusFailed, true, false},
		{StatusSkipped, true, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if got := tt.status.Done(); got != tt.done {
			t.Errorf("%s.Done() = %v, want %v", tt.status, got, tt.done)
		}
		if !tt.status.Valid() {
			t.Errorf("%s.Valid() = false", tt.status)
		}
	}
	if PhaseStatus("bogus").Valid() {
		t.Error("bogus status should not be valid")
	}
}
