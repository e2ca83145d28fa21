package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// planBuilder writes a master plan and phase files into a temp dir.
type planBuilder struct {
	t   *testing.T
	dir string
}

func newPlanBuilder(t *testing.T) *planBuilder {
	t.Helper()
	return &planBuilder{t: t, dir: t.TempDir()}
}

func (b *planBuilder) master(rows ...string) string {
	content := "# Test Plan\n\n## Phases\n\n| id | phase |\n|----|-------|\n"
	for _, row := range rows {
		content += row + "\n"
	}
	path := filepath.Join(b.dir, "master_plan.md")
	b.write(path, content)
	return path
}

func (b *planBuilder) phase(name, content string) {
	b.write(filepath.Join(b.dir, name), content)
}

func (b *planBuilder) write(path, content string) {
	b.t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		b.t.Fatalf("WriteFile: %v", err)
	}
}

// fullPhase is a phase file that produces no audit findings.
func fullPhase(id string, deps string) string {
	content := fmt.Sprintf("# Phase %s\n\n", id)
	if deps != "" {
		content += "Depends On: " + deps + "\n\n"
	}
	content += "## Tasks\n\n- [ ] Do the work\n\n" +
		"## Gates\n\n- check: verify (command: `true`)\n\n" +
		fmt.Sprintf("Write notes to: notes/phase-%s.md\n", id)
	return content
}

func TestAuditCleanPlanPasses(t *testing.T) {
	b := newPlanBuilder(t)
	b.phase("phase-1.md", fullPhase("1", ""))
	b.phase("phase-2.md", fullPhase("2", "1"))
	master := b.master(
		"| 1 | [One](phase-1.md) |",
		"| 2 | [Two](phase-2.md) |",
	)

	result := NewEngine().Audit(master)
	if !result.Passed {
		t.Fatalf("audit failed: %+v", result.Issues)
	}
	if len(result.Issues) != 0 {
		t.Errorf("issues = %+v, want none", result.Issues)
	}
	if result.Summary.PhasesFound != 2 || result.Summary.PhasesValid != 2 || result.Summary.GatesTotal != 2 {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestAuditIsDeterministic(t *testing.T) {
	b := newPlanBuilder(t)
	b.phase("phase-1.md", "# One\n\nNo structure at all.\n")
	b.phase("phase-2.md", fullPhase("2", "ghost"))
	master := b.master(
		"| 1 | [One](phase-1.md) |",
		"| 2 | [Two](phase-2.md) |",
	)

	engine := NewEngine()
	first := engine.Audit(master)
	second := engine.Audit(master)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("audit results differ between runs:\n%+v\n%+v", first, second)
	}
}

func TestAuditMasterNotFound(t *testing.T) {
	result := NewEngine().Audit(filepath.Join(t.TempDir(), "missing.md"))

	if result.Passed {
		t.Fatal("audit of a missing master plan should fail")
	}
	if len(result.Issues) != 1 {
		t.Fatalf("issues = %+v, want exactly one", result.Issues)
	}
	if result.Issues[0].Code != CodeMasterNotFound {
		t.Errorf("code = %s, want %s", result.Issues[0].Code, CodeMasterNotFound)
	}
}

func TestAuditNoPhases(t *testing.T) {
	b := newPlanBuilder(t)
	master := b.master()

	result := NewEngine().Audit(master)
	if result.Passed {
		t.Fatal("empty plan should fail audit")
	}
	if got := result.Issues[0].Code; got != CodeNoPhases {
		t.Errorf("code = %s, want %s", got, CodeNoPhases)
	}
}

func TestAuditMissingGatesIsError(t *testing.T) {
	b := newPlanBuilder(t)
	b.phase("phase-1.md", "# One\n\n## Tasks\n\n- [ ] Work\n\nWrite notes to: notes/1.md\n")
	master := b.master("| 1 | [One](phase-1.md) |")

	result := NewEngine().Audit(master)
	if result.Passed {
		t.Fatal("a phase with zero gates must fail audit")
	}

	found := false
	for _, issue := range result.Issues {
		if issue.Code == CodeMissingGates {
			found = true
			if issue.Severity != SeverityError {
				t.Errorf("MISSING_GATES severity = %s, want error", issue.Severity)
			}
		}
	}
	if !found {
		t.Errorf("no MISSING_GATES issue in %+v", result.Issues)
	}
}

func TestAuditAdvisoryFindings(t *testing.T) {
	b := newPlanBuilder(t)
	// Gates present, but no notes output and no tasks.
	b.phase("phase-1.md", "# One\n\n## Gates\n\n- check: verify (command: `true`)\n")
	master := b.master("| 1 | [One](phase-1.md) |")

	result := NewEngine().Audit(master)
	if !result.Passed {
		t.Fatalf("warnings and infos alone must not fail the audit: %+v", result.Issues)
	}
	if result.PassedStrict() {
		t.Error("PassedStrict should be false with warnings present")
	}

	codes := map[Code]Severity{}
	for _, issue := range result.Issues {
		codes[issue.Code] = issue.Severity
	}
	if sev, ok := codes[CodeNoNotesOutput]; !ok || sev != SeverityWarning {
		t.Errorf("NO_NOTES_OUTPUT finding missing or wrong severity: %+v", result.Issues)
	}
	if sev, ok := codes[CodeEmptyTasks]; !ok || sev != SeverityInfo {
		t.Errorf("EMPTY_TASKS finding missing or wrong severity: %+v", result.Issues)
	}
}

func TestAuditCircularDependency(t *testing.T) {
	b := newPlanBuilder(t)
	b.phase("phase-1.md", fullPhase("1", ""))
	b.phase("phase-2.md", fullPhase("2", "3"))
	b.phase("phase-3.md", fullPhase("3", "2"))
	master := b.master(
		"| 1 | [One](phase-1.md) |",
		"| 2 | [Two](phase-2.md) |",
		"| 3 | [Three](phase-3.md) |",
	)

	result := NewEngine().Audit(master)
	if result.Passed {
		t.Fatal("cyclic plan should fail audit")
	}

	var cycles []Issue
	for _, issue := range result.Issues {
		if issue.Code == CodeCircularDependency {
			cycles = append(cycles, issue)
		}
	}
	if len(cycles) != 1 {
		t.Fatalf("got %d CIRCULAR_DEPENDENCY issues, want exactly 1: %+v", len(cycles), cycles)
	}
	if cycles[0].Severity != SeverityError {
		t.Errorf("cycle severity = %s, want error", cycles[0].Severity)
	}
}

func TestAuditUnknownDependencyIsWarning(t *testing.T) {
	b := newPlanBuilder(t)
	b.phase("phase-1.md", fullPhase("1", "ghost"))
	master := b.master("| 1 | [One](phase-1.md) |")

	result := NewEngine().Audit(master)
	if !result.Passed {
		t.Fatalf("unknown dependency alone should not fail audit: %+v", result.Issues)
	}

	found := false
	for _, issue := range result.Issues {
		if issue.Code == CodeUnknownDependency && issue.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("no UNKNOWN_DEPENDENCY warning in %+v", result.Issues)
	}
}

func TestAuditIssueOrdering(t *testing.T) {
	b := newPlanBuilder(t)
	// Phase 1 yields a warning, phase 2 an error and an info: ordering is
	// by phase, then severity within the phase.
	b.phase("phase-1.md", "# One\n\n## Tasks\n\n- [ ] W\n\n## Gates\n\n- g: v (command: `true`)\n")
	b.phase("phase-2.md", "# Two\n\nWrite notes to: notes/2.md\n")
	master := b.master(
		"| 1 | [One](phase-1.md) |",
		"| 2 | [Two](phase-2.md) |",
	)

	result := NewEngine().Audit(master)

	var codes []Code
	for _, issue := range result.Issues {
		codes = append(codes, issue.Code)
	}
	want := []Code{CodeNoNotesOutput, CodeMissingGates, CodeEmptyTasks}
	if !reflect.DeepEqual(codes, want) {
		t.Errorf("issue order = %v, want %v", codes, want)
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("MISSING_GATES"); got != CodeMissingGates {
		t.Errorf("NormalizeCode(MISSING_GATES) = %s", got)
	}
	if got := NormalizeCode("SOME_FUTURE_CODE"); got != CodeUnknown {
		t.Errorf("NormalizeCode(SOME_FUTURE_CODE) = %s, want %s", got, CodeUnknown)
	}
}
