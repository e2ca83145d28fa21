package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	baterr "github.com/Iron-Ham/baton/internal/errors"
	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/plan"
)

// gateOutputLimit bounds captured gate output per gate. Enough for retry
// feedback without ballooning the prompt.
const gateOutputLimit = 8 * 1024

// GateResult is the outcome of one gate command.
type GateResult struct {
	Name     string        `json:"name"`
	Command  string        `json:"command"`
	Passed   bool          `json:"passed"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// GateRunner executes a phase's verification gates. Implementations must
// run gates sequentially in declaration order and stop at the first
// failure.
type GateRunner interface {
	RunGates(ctx context.Context, phase *plan.Phase) ([]GateResult, error)
}

// shellGateRunner runs gate commands through the shell in the project
// root. Gate verdicts come only from exit codes; output is captured for
// diagnostics and retry feedback.
type shellGateRunner struct {
	projectRoot string
	timeout     time.Duration
	logger      *logging.Logger
}

// NewGateRunner creates the standard shell-based gate runner.
func NewGateRunner(projectRoot string, timeout time.Duration, logger *logging.Logger) GateRunner {
	return &shellGateRunner{
		projectRoot: projectRoot,
		timeout:     timeout,
		logger:      logger.WithComponent("gates"),
	}
}

// RunGates executes the phase's gates in order, fail-fast. The returned
// slice holds a result for every gate that ran; gates after the first
// failure never run. A failed gate returns the results alongside
// ErrGateFailed so the caller can build feedback.
func (r *shellGateRunner) RunGates(ctx context.Context, phase *plan.Phase) ([]GateResult, error) {
	log := r.logger.WithPhase(phase.ID)
	results := make([]GateResult, 0, len(phase.Gates))

	for _, gate := range phase.Gates {
		result := r.runGate(ctx, gate)
		results = append(results, result)

		if !result.Passed {
			log.Warn("gate failed",
				"gate", gate.Name,
				"exit_code", result.ExitCode,
				"duration", result.Duration.Round(time.Millisecond).String(),
			)
			return results, fmt.Errorf("gate %q: %w", gate.Name, baterr.ErrGateFailed)
		}
		log.Info("gate passed", "gate", gate.Name,
			"duration", result.Duration.Round(time.Millisecond).String())
	}
	return results, nil
}

func (r *shellGateRunner) runGate(ctx context.Context, gate plan.Gate) GateResult {
	gateCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(gateCtx, "sh", "-c", gate.Command)
	cmd.Dir = r.projectRoot

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := GateResult{
		Name:     gate.Name,
		Command:  gate.Command,
		Duration: duration,
		Output:   truncateOutput(output.String(), gateOutputLimit),
	}

	switch {
	case err == nil:
		result.Passed = true
	case gateCtx.Err() == context.DeadlineExceeded:
		result.ExitCode = -1
		result.Output += fmt.Sprintf("\n(gate timed out after %s)", r.timeout)
	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.Output += "\n(gate command could not run: " + err.Error() + ")"
		}
	}
	return result
}

func truncateOutput(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
