package orchestrator

import (
	"fmt"
	"os"
	"strings"

	"github.com/Iron-Ham/baton/internal/plan"
	"github.com/Iron-Ham/baton/internal/worker"
)

// attemptRecord captures what went wrong on one failed attempt so the
// next attempt's prompt can include it.
type attemptRecord struct {
	Attempt     int
	Gates       []GateResult
	WorkerNotes string // output tail or timeout/crash description
}

// buildPrompt assembles the full worker prompt for a phase attempt:
// the phase file verbatim, the prior phase's notes when present, the
// notes-output contract, and accumulated feedback from every failed
// attempt so far.
func buildPrompt(phase *plan.Phase, history []attemptRecord) (string, error) {
	body, err := os.ReadFile(phase.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read phase file: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are executing one phase of a multi-phase implementation plan.\n")
	b.WriteString("Complete every task in the phase description below.\n\n")

	if phase.NotesInput != "" {
		if notes, err := os.ReadFile(phase.NotesInput); err == nil {
			b.WriteString("## Notes from the previous phase\n\n")
			b.Write(notes)
			b.WriteString("\n\n")
		}
		// A missing notes file is not fatal: the prior phase may simply
		// not have produced notes.
	}

	b.WriteString("## Phase description\n\n")
	b.Write(body)
	b.WriteString("\n")

	if phase.NotesOutput != "" {
		fmt.Fprintf(&b, "\nWhen you finish, write a summary of what you did, key decisions, and anything the next phase needs to know to %s.\n", phase.NotesOutput)
	}

	if sig := completionContract(phase); sig != "" {
		b.WriteString(sig)
	}

	if len(history) > 0 {
		b.WriteString("\n## Previous attempts failed\n\n")
		b.WriteString("Earlier attempts at this phase did not pass verification. ")
		b.WriteString("Fix the problems below; do not repeat them.\n")
		for _, rec := range history {
			fmt.Fprintf(&b, "\n### Attempt %d\n", rec.Attempt)
			for _, g := range rec.Gates {
				if g.Passed {
					continue
				}
				fmt.Fprintf(&b, "\nGate %q failed (exit %d): `%s`\n", g.Name, g.ExitCode, g.Command)
				if g.Output != "" {
					b.WriteString("```\n")
					b.WriteString(g.Output)
					if !strings.HasSuffix(g.Output, "\n") {
						b.WriteString("\n")
					}
					b.WriteString("```\n")
				}
			}
			if rec.WorkerNotes != "" {
				b.WriteString("\n")
				b.WriteString(rec.WorkerNotes)
				b.WriteString("\n")
			}
		}
	}

	return b.String(), nil
}

// completionContract describes the optional advisory completion signal the
// worker may emit. The signal is informational; gates decide completion.
func completionContract(phase *plan.Phase) string {
	return fmt.Sprintf("\nWhen all tasks are done, you may write %s in the project's %s directory with "+
		"{\"phase_id\": %q, \"status\": \"done\"} to signal completion early. "+
		"Verification commands will run regardless.\n",
		worker.SignalFileName, ".baton", phase.ID)
}

// workerFailureNotes renders a non-gate failure for the retry prompt.
func workerFailureNotes(res *worker.ExecutionResult) string {
	switch res.Status {
	case worker.StatusTimedOut:
		return "The previous attempt hit its time limit before finishing. Prioritize the remaining tasks and avoid long exploratory work."
	case worker.StatusFailed:
		notes := fmt.Sprintf("The previous attempt's agent process exited with code %d before finishing.", res.ExitCode)
		if res.OutputTail != "" {
			notes += "\nIts final output was:\n```\n" + res.OutputTail + "\n```"
		}
		return notes
	}
	return ""
}
