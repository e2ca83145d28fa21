// Package runstate persists orchestration progress so interrupted runs can
// resume. A RunState is checkpointed atomically after every phase
// transition; no reader ever observes a partially written state, and an
// advisory lock keeps two orchestrators from sharing one run.
package runstate

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/baton/internal/plan"
)

// ModeFlags records how a run was started. Persisted so resume behaves
// consistently with the original invocation.
type ModeFlags struct {
	DryRun    bool `json:"dry_run"`
	Yolo      bool `json:"yolo"`
	SkipAudit bool `json:"skip_audit"`
	Sandbox   bool `json:"sandbox"`
}

// PhaseState is the persisted per-phase progress record.
type PhaseState struct {
	Status   plan.PhaseStatus `json:"status"`
	Attempts int              `json:"attempts"`
}

// RunState is the durable record of one orchestration run.
type RunState struct {
	ID           string                `json:"id"`
	PlanPath     string                `json:"plan_path"`
	Phases       map[string]PhaseState `json:"phases"`
	Mode         ModeFlags             `json:"mode"`
	StartedAt    time.Time             `json:"started_at"`
	CheckpointAt time.Time             `json:"checkpoint_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

// New creates a fresh RunState for the given plan, with every phase PENDING.
func New(p *plan.Plan, mode ModeFlags) *RunState {
	phases := make(map[string]PhaseState, len(p.Phases))
	for _, ph := range p.Phases {
		phases[ph.ID] = PhaseState{Status: plan.StatusPending}
	}
	now := time.Now().UTC()
	return &RunState{
		ID:           uuid.NewString(),
		PlanPath:     p.Path,
		Phases:       phases,
		Mode:         mode,
		StartedAt:    now,
		CheckpointAt: now,
	}
}

// PhaseStatus returns the recorded status for a phase id, PENDING when the
// phase has never been recorded.
func (s *RunState) PhaseStatus(id string) plan.PhaseStatus {
	if ps, ok := s.Phases[id]; ok {
		return ps.Status
	}
	return plan.StatusPending
}

// Attempts returns the recorded attempt count for a phase id.
func (s *RunState) Attempts(id string) int {
	return s.Phases[id].Attempts
}

// Complete reports whether every phase reached COMPLETED or SKIPPED.
func (s *RunState) Complete() bool {
	if len(s.Phases) == 0 {
		return false
	}
	for _, ps := range s.Phases {
		if !ps.Status.Done() {
			return false
		}
	}
	return true
}

// Validate checks internal consistency: every status must be a known value
// and attempt counts must not be negative. Used to detect corruption on
// resume.
func (s *RunState) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("missing run id")
	}
	if s.PlanPath == "" {
		return fmt.Errorf("missing plan path")
	}
	for id, ps := range s.Phases {
		if !ps.Status.Valid() {
			return fmt.Errorf("phase %s has unknown status %q", id, ps.Status)
		}
		if ps.Attempts < 0 {
			return fmt.Errorf("phase %s has negative attempt count %d", id, ps.Attempts)
		}
	}
	return nil
}

// Recover normalizes phases a previous orchestrator left in flight. A quit
// or crash while a worker runs checkpoints the phase as RUNNING or
// AWAITING_GATES; neither has an edge back to RUNNING, so a resumed run
// could never re-enter it. The interrupted attempt never finished, so it is
// not charged: the attempt count is rolled back and the phase returns to
// PENDING (or RETRY_PENDING when earlier attempts already ran). Returns the
// ids of recovered phases.
func (s *RunState) Recover() []string {
	var recovered []string
	for id, ps := range s.Phases {
		switch ps.Status {
		case plan.StatusRunning, plan.StatusAwaitingGates:
			if ps.Attempts > 0 {
				ps.Attempts--
			}
			if ps.Attempts > 0 {
				ps.Status = plan.StatusRetryPending
			} else {
				ps.Status = plan.StatusPending
			}
			s.Phases[id] = ps
			recovered = append(recovered, id)
		}
	}
	if len(recovered) > 0 {
		sort.Strings(recovered)
		s.CheckpointAt = time.Now().UTC()
	}
	return recovered
}

// validTransitions is the phase lifecycle edge set. Transitions not listed
// here are rejected by Apply.
var validTransitions = map[plan.PhaseStatus][]plan.PhaseStatus{
	plan.StatusPending:       {plan.StatusRunning, plan.StatusSkipped},
	plan.StatusRunning:       {plan.StatusAwaitingGates},
	plan.StatusAwaitingGates: {plan.StatusCompleted, plan.StatusRetryPending},
	plan.StatusRetryPending:  {plan.StatusRunning, plan.StatusFailed},
}

// Apply moves a phase to the given status, enforcing the lifecycle edge
// set, and stamps the checkpoint time. It does not persist; the store's
// Checkpoint does, and the orchestrator funnels every mutation through
// both.
func (s *RunState) Apply(phaseID string, to plan.PhaseStatus) error {
	ps, ok := s.Phases[phaseID]
	if !ok {
		return fmt.Errorf("unknown phase %q", phaseID)
	}

	allowed := false
	for _, next := range validTransitions[ps.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("invalid transition for phase %s: %s -> %s", phaseID, ps.Status, to)
	}

	if to == plan.StatusRunning {
		ps.Attempts++
	}
	ps.Status = to
	s.Phases[phaseID] = ps
	s.CheckpointAt = time.Now().UTC()

	if s.Complete() {
		now := time.Now().UTC()
		s.CompletedAt = &now
	}
	return nil
}
