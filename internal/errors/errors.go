// Package errors provides centralized error definitions and classification
// for baton. It defines sentinel errors for each subsystem, domain error
// types that carry context, and the helpers the CLI uses to map failures
// onto remediation hints and process exit codes.
//
// The error taxonomy follows the orchestration design: parse failures are
// aggregated into audit issues and never fatal; gate failures and worker
// timeouts drive retries; sandbox and state-corruption failures are fatal
// with a specific remediation message.
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience, so callers can
// import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Process exit codes for the CLI surface.
const (
	ExitOK         = 0 // success
	ExitFailure    = 1 // audit or gate failure
	ExitInvocation = 2 // invocation or configuration error
)

// Run and state sentinel errors
var (
	// ErrRunLocked indicates another orchestrator holds the run's advisory lock.
	ErrRunLocked = New("run is locked by another process")
	// ErrStateNotFound indicates no persisted run state exists to resume.
	ErrStateNotFound = New("no run state found")
	// ErrStateCorrupted indicates the persisted run state is unreadable or
	// inconsistent; the user must --restart.
	ErrStateCorrupted = New("run state corrupted")
	// ErrRunComplete indicates the run already finished.
	ErrRunComplete = New("run already complete")
)

// Worker sentinel errors
var (
	// ErrWorkerTimeout indicates the worker exceeded its wall-clock budget.
	ErrWorkerTimeout = New("worker timed out")
	// ErrWorkerNotFound indicates the agent binary is not installed.
	ErrWorkerNotFound = New("agent binary not found")
	// ErrSandboxUnavailable indicates container mode was requested but no
	// container runtime is usable. Never downgraded to unsandboxed execution.
	ErrSandboxUnavailable = New("container runtime unavailable")
	// ErrRisksNotAccepted indicates unsandboxed non-interactive execution
	// without the mandatory risk acknowledgment.
	ErrRisksNotAccepted = New("unsandboxed execution requires accepting risks")
)

// Orchestration sentinel errors
var (
	// ErrGateFailed indicates a verification gate exited nonzero.
	ErrGateFailed = New("gate failed")
	// ErrMaxAttempts indicates a phase exhausted its retry budget.
	ErrMaxAttempts = New("max attempts exhausted")
	// ErrAuditFailed indicates the plan audit produced errors.
	ErrAuditFailed = New("plan audit failed")
	// ErrCompletionConflict indicates requested work overlaps an already
	// completed feature.
	ErrCompletionConflict = New("requested work already completed")
	// ErrQuitRequested indicates the user asked the run to stop.
	ErrQuitRequested = New("quit requested")
)

// StateError wraps a run-state failure with the run directory for the
// remediation message.
type StateError struct {
	RunDir string
	Err    error
}

func (e *StateError) Error() string {
	if e.RunDir != "" {
		return fmt.Sprintf("state error [%s]: %v", e.RunDir, e.Err)
	}
	return fmt.Sprintf("state error: %v", e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// NewStateError creates a StateError for the given run directory.
func NewStateError(runDir string, err error) *StateError {
	return &StateError{RunDir: runDir, Err: err}
}

// WorkerError wraps a worker execution failure with the phase it ran for.
type WorkerError struct {
	PhaseID string
	Err     error
}

func (e *WorkerError) Error() string {
	if e.PhaseID != "" {
		return fmt.Sprintf("worker error [phase=%s]: %v", e.PhaseID, e.Err)
	}
	return fmt.Sprintf("worker error: %v", e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// NewWorkerError creates a WorkerError for the given phase.
func NewWorkerError(phaseID string, err error) *WorkerError {
	return &WorkerError{PhaseID: phaseID, Err: err}
}

// SandboxError wraps a sandbox configuration failure with a remediation
// hint. Always fatal.
type SandboxError struct {
	Hint string
	Err  error
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox error: %v", e.Err)
}

func (e *SandboxError) Unwrap() error { return e.Err }

// NewSandboxError creates a SandboxError with a remediation hint.
func NewSandboxError(hint string, err error) *SandboxError {
	return &SandboxError{Hint: hint, Err: err}
}

// IsRetryable reports whether the failure should consume a retry attempt
// rather than abort the run. Gate failures, worker timeouts, and worker
// crashes all retry; configuration and state failures do not.
func IsRetryable(err error) bool {
	switch {
	case Is(err, ErrGateFailed), Is(err, ErrWorkerTimeout):
		return true
	}
	var werr *WorkerError
	if As(err, &werr) {
		// A crash while executing retries; a missing binary never will.
		return !Is(err, ErrWorkerNotFound)
	}
	return false
}

// IsFatal reports whether the failure must abort the run immediately with
// a remediation message.
func IsFatal(err error) bool {
	var serr *SandboxError
	var sterr *StateError
	return As(err, &serr) || As(err, &sterr) ||
		Is(err, ErrStateCorrupted) || Is(err, ErrRunLocked) ||
		Is(err, ErrRisksNotAccepted)
}

// Remediation returns the user-facing hint for a fatal error, or "".
func Remediation(err error) string {
	var serr *SandboxError
	if As(err, &serr) && serr.Hint != "" {
		return serr.Hint
	}
	switch {
	case Is(err, ErrStateCorrupted):
		return "run state is unreadable; re-run with --restart to discard it and start from phase 1"
	case Is(err, ErrRunLocked):
		return "another orchestrator is using this run; stop it or remove the stale lock"
	case Is(err, ErrRisksNotAccepted):
		return "pass --yolo --accept-risks to run unsandboxed, or use --sandbox"
	case Is(err, ErrSandboxUnavailable):
		return "install docker (or podman with a docker shim) and ensure the daemon is running"
	case Is(err, ErrWorkerNotFound):
		return "install the agent CLI and ensure it is in PATH"
	}
	return ""
}

// ExitCode maps an error onto the CLI exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch {
	case Is(err, ErrAuditFailed), Is(err, ErrGateFailed), Is(err, ErrMaxAttempts),
		Is(err, ErrCompletionConflict):
		return ExitFailure
	}
	return ExitInvocation
}
