package runstate

import (
	"testing"

	"github.com/Iron-Ham/baton/internal/plan"
)

func twoPhasePlan() *plan.Plan {
	return &plan.Plan{
		Title:  "Test",
		Path:   "/tmp/master_plan.md",
		Phases: []*plan.Phase{{ID: "1"}, {ID: "2"}},
	}
}

func TestNewState(t *testing.T) {
	s := New(twoPhasePlan(), ModeFlags{Yolo: true})

	if s.ID == "" {
		t.Error("run ID should be assigned")
	}
	if len(s.Phases) != 2 {
		t.Fatalf("len(Phases) = %d, want 2", len(s.Phases))
	}
	for id, ps := range s.Phases {
		if ps.Status != plan.StatusPending {
			t.Errorf("phase %s status = %s, want pending", id, ps.Status)
		}
	}
	if !s.Mode.Yolo {
		t.Error("mode flags not persisted")
	}
	if s.Complete() {
		t.Error("fresh state should not be complete")
	}
}

func TestApplyLifecycle(t *testing.T) {
	s := New(twoPhasePlan(), ModeFlags{})

	steps := []plan.PhaseStatus{
		plan.StatusRunning,
		plan.StatusAwaitingGates,
		plan.StatusRetryPending,
		plan.StatusRunning,
		plan.StatusAwaitingGates,
		plan.StatusCompleted,
	}
	for _, to := range steps {
		if err := s.Apply("1", to); err != nil {
			t.Fatalf("Apply(1, %s): %v", to, err)
		}
	}

	if got := s.Attempts("1"); got != 2 {
		t.Errorf("attempts = %d, want 2 (one per entry into running)", got)
	}
	if got := s.PhaseStatus("1"); got != plan.StatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
	if s.Complete() {
		t.Error("run should not be complete with phase 2 pending")
	}

	if err := s.Apply("2", plan.StatusSkipped); err != nil {
		t.Fatalf("Apply(2, skipped): %v", err)
	}
	if !s.Complete() {
		t.Error("run should be complete when all phases are done")
	}
	if s.CompletedAt == nil {
		t.Error("CompletedAt should be stamped on completion")
	}
}

func TestApplyRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from plan.PhaseStatus
		to   plan.PhaseStatus
	}{
		{"pending to completed", plan.StatusPending, plan.StatusCompleted},
		{"pending to awaiting_gates", plan.StatusPending, plan.StatusAwaitingGates},
		{"running to completed", plan.StatusRunning, plan.StatusCompleted},
		{"running to failed", plan.StatusRunning, plan.StatusFailed},
		{"awaiting_gates to running", plan.StatusAwaitingGates, plan.StatusRunning},
		{"completed to running", plan.StatusCompleted, plan.StatusRunning},
		{"failed to running", plan.StatusFailed, plan.StatusRunning},
		{"skipped to running", plan.StatusSkipped, plan.StatusRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(twoPhasePlan(), ModeFlags{})
			s.Phases["1"] = PhaseState{Status: tt.from}
			if err := s.Apply("1", tt.to); err == nil {
				t.Errorf("Apply(%s -> %s) should be rejected", tt.from, tt.to)
			}
		})
	}
}

func TestRecoverInterruptedPhases(t *testing.T) {
	s := New(twoPhasePlan(), ModeFlags{})
	s.Phases["1"] = PhaseState{Status: plan.StatusRunning, Attempts: 1}
	s.Phases["2"] = PhaseState{Status: plan.StatusAwaitingGates, Attempts: 3}

	recovered := s.Recover()
	if len(recovered) != 2 {
		t.Fatalf("recovered = %v, want both phases", recovered)
	}

	// First attempt interrupted: back to pending, attempt uncharged.
	if got := s.Phases["1"]; got.Status != plan.StatusPending || got.Attempts != 0 {
		t.Errorf("phase 1 = %+v, want pending with 0 attempts", got)
	}
	// Later attempt interrupted: earlier attempts stay on the record.
	if got := s.Phases["2"]; got.Status != plan.StatusRetryPending || got.Attempts != 2 {
		t.Errorf("phase 2 = %+v, want retry_pending with 2 attempts", got)
	}

	// The recovered statuses admit re-entry into running.
	for _, id := range []string{"1", "2"} {
		if err := s.Apply(id, plan.StatusRunning); err != nil {
			t.Errorf("Apply(%s, running) after recovery: %v", id, err)
		}
	}
}

func TestRecoverLeavesSettledPhasesAlone(t *testing.T) {
	s := New(twoPhasePlan(), ModeFlags{})
	s.Phases["1"] = PhaseState{Status: plan.StatusCompleted, Attempts: 1}

	if recovered := s.Recover(); recovered != nil {
		t.Errorf("recovered = %v, want none", recovered)
	}
	if got := s.Phases["1"]; got.Status != plan.StatusCompleted || got.Attempts != 1 {
		t.Errorf("phase 1 = %+v, want untouched", got)
	}
}

func TestApplyUnknownPhase(t *testing.T) {
	s := New(twoPhasePlan(), ModeFlags{})
	if err := s.Apply("ghost", plan.StatusRunning); err == nil {
		t.Error("Apply on unknown phase should error")
	}
}

func TestValidate(t *testing.T) {
	s := New(twoPhasePlan(), ModeFlags{})
	if err := s.Validate(); err != nil {
		t.Errorf("fresh state should validate: %v", err)
	}

	s.Phases["1"] = PhaseState{Status: "exploded"}
	if err := s.Validate(); err == nil {
		t.Error("unknown status should fail validation")
	}

	s = New(twoPhasePlan(), ModeFlags{})
	s.Phases["1"] = PhaseState{Status: plan.StatusPending, Attempts: -1}
	if err := s.Validate(); err == nil {
		t.Error("negative attempts should fail validation")
	}

	s = New(twoPhasePlan(), ModeFlags{})
	s.ID = ""
	if err := s.Validate(); err == nil {
		t.Error("missing run id should fail validation")
	}
}
