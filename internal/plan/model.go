// Package plan defines the plan data model and the markdown parsers that
// produce it. A master plan references an ordered set of phase files; each
// phase carries dependencies, tasks, validation gates, and notes paths.
//
// The types here are value objects: parsers create them, the orchestrator
// mutates phase status and attempt counts, everything else reads them.
package plan

import (
	"fmt"
	"time"
)

// PhaseStatus is the lifecycle state of a phase in the orchestration pipeline.
type PhaseStatus string

const (
	StatusPending       PhaseStatus = "pending"
	StatusRunning       PhaseStatus = "running"
	StatusAwaitingGates PhaseStatus = "awaiting_gates"
	StatusRetryPending  PhaseStatus = "retry_pending"
	StatusCompleted     PhaseStatus = "completed"
	StatusFailed        PhaseStatus = "failed"
	StatusSkipped       PhaseStatus = "skipped"
)

// Terminal reports whether the status is an end state for a phase.
func (s PhaseStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Done reports whether the phase no longer blocks its dependents.
// FAILED is terminal but still blocks: dependents must not start.
func (s PhaseStatus) Done() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Valid reports whether s is a known phase status.
func (s PhaseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusAwaitingGates,
		StatusRetryPending, StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// IssueProvider identifies the external tracker an issue reference points at.
type IssueProvider string

const (
	ProviderGitHub  IssueProvider = "github"
	ProviderJira    IssueProvider = "jira"
	ProviderUnknown IssueProvider = "unknown"
)

// IssueRef is a typed reference to an external tracker issue.
// For GitHub the ID is the issue number ("42"); for Jira it is the key
// ("PROJ-123").
type IssueRef struct {
	Provider IssueProvider `json:"provider"`
	ID       string        `json:"id"`
}

// String returns the canonical provider:id form used for set comparisons.
func (r IssueRef) String() string {
	return fmt.Sprintf("%s:%s", r.Provider, r.ID)
}

// Gate is an externally runnable command that independently verifies a
// phase's completion claim. A gate passes iff its command exits 0.
// Gates are immutable once parsed.
type Gate struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

// Task is a single checklist item from a phase file.
type Task struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Phase is a unit of orchestrated work. Only the orchestrator mutates
// Status and Attempts; everything else is set by the parser.
type Phase struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Path      string      `json:"path"`
	Status    PhaseStatus `json:"status"`
	DependsOn []string    `json:"depends_on,omitempty"`
	Gates     []Gate      `json:"gates,omitempty"`
	Tasks     []Task      `json:"tasks,omitempty"`

	// NotesInput is the notes file written by the prior phase, handed to
	// this phase's worker as context. NotesOutput is where this phase's
	// worker must write its own notes.
	NotesInput  string `json:"notes_input,omitempty"`
	NotesOutput string `json:"notes_output,omitempty"`

	Attempts int `json:"attempts"`
}

// Plan is a parsed master plan. Read-only to the orchestration core.
type Plan struct {
	Title     string     `json:"title"`
	Path      string     `json:"path"`
	Phases    []*Phase   `json:"phases"`
	Issues    []IssueRef `json:"issues,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// PhaseByID returns the phase with the given id, or nil.
func (p *Plan) PhaseByID(id string) *Phase {
	for _, ph := range p.Phases {
		if ph.ID == id {
			return ph
		}
	}
	return nil
}

// PhaseIndex returns the declaration-order index of a phase id, or -1.
func (p *Plan) PhaseIndex(id string) int {
	for i, ph := range p.Phases {
		if ph.ID == id {
			return i
		}
	}
	return -1
}
