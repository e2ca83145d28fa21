package report

import (
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/baton/internal/audit"
	"github.com/Iron-Ham/baton/internal/orchestrator"
	"github.com/Iron-Ham/baton/internal/plan"
	"github.com/Iron-Ham/baton/internal/runstate"
	"github.com/Iron-Ham/baton/internal/tracker"
)

func TestAuditRenderPlain(t *testing.T) {
	var buf strings.Builder
	r := NewRenderer(&buf)

	result := &audit.Result{
		Passed: false,
		Issues: []audit.Issue{
			{Severity: audit.SeverityError, Code: audit.CodeMissingGates,
				Message: "phase 1 has no gates defined", Location: "phase-1.md",
				Suggestion: "Add a '## Gates' section"},
			{Severity: audit.SeverityWarning, Code: audit.CodeNoNotesOutput,
				Message: "phase 2 has no notes output path specified"},
			{Severity: audit.SeverityInfo, Code: audit.CodeEmptyTasks,
				Message: "phase 2 has no task checklist"},
		},
		Summary: audit.Summary{PhasesFound: 2, PhasesValid: 1, GatesTotal: 1, Errors: 1, Warnings: 1, Infos: 1},
	}

	r.Audit(result, false)
	out := buf.String()

	for _, want := range []string{"ERROR", "MISSING_GATES", "phase 1 has no gates", "FAILED", "1 error"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// A non-TTY writer gets plain text, never ANSI escapes.
	if strings.Contains(out, "\x1b[") {
		t.Error("plain output contains ANSI escape sequences")
	}
	// Infos are hidden unless verbose.
	if strings.Contains(out, "task checklist") {
		t.Error("info finding shown without verbose")
	}

	buf.Reset()
	r.Audit(result, true)
	if !strings.Contains(buf.String(), "task checklist") {
		t.Error("info finding hidden with verbose")
	}
}

func TestPreviewRender(t *testing.T) {
	var buf strings.Builder
	r := NewRenderer(&buf)

	p := &plan.Plan{Title: "My Plan"}
	previews := []orchestrator.PhasePreview{
		{ID: "1", Title: "One", Status: plan.StatusCompleted, Gates: 2, WouldRun: false},
		{ID: "2", Title: "Two", Status: plan.StatusPending, Gates: 1, WouldRun: true},
	}
	r.Preview(p, previews)
	out := buf.String()

	if !strings.Contains(out, "skip (completed)") {
		t.Errorf("completed phase not marked as skipped:\n%s", out)
	}
	if !strings.Contains(out, "Dry run") {
		t.Errorf("missing dry-run notice:\n%s", out)
	}
}

func TestStatusRender(t *testing.T) {
	var buf strings.Builder
	r := NewRenderer(&buf)

	now := time.Now()
	state := &runstate.RunState{
		ID:        "run-123",
		PlanPath:  "/work/master_plan.md",
		StartedAt: now,
		Phases: map[string]runstate.PhaseState{
			"1": {Status: plan.StatusCompleted, Attempts: 2},
			"2": {Status: plan.StatusPending},
		},
	}
	p := &plan.Plan{Phases: []*plan.Phase{{ID: "1"}, {ID: "2"}}}

	r.Status(state, p)
	out := buf.String()

	if !strings.Contains(out, "run-123") {
		t.Errorf("missing run id:\n%s", out)
	}
	if !strings.Contains(out, "2 attempts") {
		t.Errorf("missing attempt count:\n%s", out)
	}
	// Plan order, not map order.
	idx1 := strings.Index(out, "\n  1")
	idx2 := strings.Index(out, "\n  2")
	if idx1 < 0 || idx2 < 0 || idx1 > idx2 {
		t.Errorf("phases out of order:\n%s", out)
	}
}

func TestCompletionCheckRender(t *testing.T) {
	var buf strings.Builder
	r := NewRenderer(&buf)

	r.CompletionCheck(&tracker.CheckResult{Match: tracker.MatchNone})
	if buf.Len() != 0 {
		t.Errorf("MatchNone should render nothing, got %q", buf.String())
	}

	r.CompletionCheck(&tracker.CheckResult{
		Match:   tracker.MatchPartial,
		Overlap: []plan.IssueRef{{Provider: plan.ProviderGitHub, ID: "42"}},
		Missing: []plan.IssueRef{{Provider: plan.ProviderGitHub, ID: "43"}},
	})
	out := buf.String()
	if !strings.Contains(out, "github:42") || !strings.Contains(out, "github:43") {
		t.Errorf("overlap and missing issues not listed:\n%s", out)
	}
}
