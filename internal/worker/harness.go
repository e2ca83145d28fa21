// Package worker spawns and supervises the coding-agent subprocess that
// executes a phase. The harness owns the child process for its whole
// lifetime: it feeds the prompt on stdin, streams line-delimited JSON
// events from stdout to an observer channel, enforces a hard wall-clock
// timeout, and tears the process group down on cancellation.
//
// The harness never trusts the worker's self-reported completion; the
// orchestrator's gate commands are the only path to COMPLETED.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/Iron-Ham/baton/internal/config"
	baterr "github.com/Iron-Ham/baton/internal/errors"
	"github.com/Iron-Ham/baton/internal/logging"
)

// Status is the outcome of one worker invocation.
type Status string

const (
	StatusCompleted Status = "completed" // process exited 0
	StatusFailed    Status = "failed"    // process exited nonzero or crashed
	StatusTimedOut  Status = "timed_out" // wall-clock limit hit
	StatusCanceled  Status = "canceled"  // context canceled (quit)
)

// ExecutionResult describes a finished worker invocation. OutputTail keeps
// the last portion of raw output for retry feedback and diagnostics.
type ExecutionResult struct {
	Status         Status        `json:"status"`
	ExitCode       int           `json:"exit_code"`
	Duration       time.Duration `json:"duration"`
	Events         int           `json:"events"`
	MalformedLines int           `json:"malformed_lines"`
	OutputTail     string        `json:"output_tail,omitempty"`
}

// outputTailLimit bounds how much raw output is retained on the result.
const outputTailLimit = 16 * 1024

// Harness executes worker subprocesses for phases. Safe for reuse across
// phases; each Execute call supervises exactly one process.
type Harness struct {
	cfg         config.WorkerConfig
	projectRoot string
	interactive bool
	logger      *logging.Logger

	// buildCommand is swapped in tests to run a stand-in process.
	buildCommand func(ctx context.Context, prompt string) (*exec.Cmd, error)
}

// NewHarness creates a Harness for the given project root. interactive
// reports whether a human is attached; unsandboxed execution without a
// human requires cfg.AcceptRisks.
func NewHarness(cfg config.WorkerConfig, projectRoot string, interactive bool, logger *logging.Logger) (*Harness, error) {
	h := &Harness{
		cfg:         cfg,
		projectRoot: projectRoot,
		interactive: interactive,
		logger:      logger.WithComponent("worker"),
	}
	h.buildCommand = h.agentCommand

	switch cfg.SandboxMode() {
	case config.SandboxContainer:
		if err := checkContainerRuntime(); err != nil {
			return nil, err
		}
	case config.SandboxNone:
		if !interactive && !cfg.AcceptRisks {
			return nil, baterr.ErrRisksNotAccepted
		}
	}

	return h, nil
}

// agentCommand builds the agent invocation for the configured sandbox
// mode. The prompt goes on stdin to avoid command-line length limits.
func (h *Harness) agentCommand(ctx context.Context, prompt string) (*exec.Cmd, error) {
	args := []string{
		"--print",
		"-p", "-",
		"--output-format", "stream-json",
		"--verbose",
	}
	if h.cfg.Model != "" {
		args = append(args, "--model", h.cfg.Model)
	}
	if h.cfg.SandboxMode() == config.SandboxNone && h.cfg.AcceptRisks {
		args = append(args, "--dangerously-skip-permissions")
	}

	var cmd *exec.Cmd
	if h.cfg.SandboxMode() == config.SandboxContainer {
		cmd = exec.CommandContext(ctx, "docker", containerArgs(h.cfg, h.projectRoot, args)...)
	} else {
		cmd = exec.CommandContext(ctx, h.cfg.Command, args...)
		cmd.Dir = h.projectRoot
	}
	cmd.Stdin = strings.NewReader(prompt)
	return cmd, nil
}

// Execute runs the worker for one phase attempt. Parsed events are sent to
// the events channel without blocking: if the consumer falls behind,
// events are dropped rather than stalling the child's stdout. The channel
// is not closed by Execute.
//
// A nil error with a non-Completed status is the normal failure shape;
// errors are reserved for the harness itself failing to run the process.
func (h *Harness) Execute(ctx context.Context, phaseID, prompt string, events chan<- Event) (*ExecutionResult, error) {
	log := h.logger.WithPhase(phaseID)

	runCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout())
	defer cancel()

	cmd, err := h.buildCommand(runCtx, prompt)
	if err != nil {
		return nil, baterr.NewWorkerError(phaseID, err)
	}

	// Own process group so timeout/cancel can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return terminateGroup(cmd, h.cfg.Grace()) }
	cmd.WaitDelay = h.cfg.Grace() + time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, baterr.NewWorkerError(phaseID, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		var execErr *exec.Error
		if baterr.As(err, &execErr) {
			return nil, baterr.NewWorkerError(phaseID, baterr.ErrWorkerNotFound)
		}
		return nil, baterr.NewWorkerError(phaseID, err)
	}
	log.Info("worker started", "pid", cmd.Process.Pid, "sandbox", h.cfg.Sandbox)

	result := &ExecutionResult{}
	var tail tailBuffer

	// The scanner goroutine owns stdout; it exits when the pipe closes.
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			tail.Write(line)
			event, ok := parseEvent(line)
			if !ok {
				result.MalformedLines++
				continue
			}
			result.Events++
			if events != nil {
				select {
				case events <- event:
				default:
					// Observer is behind; dropping beats blocking the child.
				}
			}
		}
	}()

	waitErr := cmd.Wait()
	<-scanDone
	result.Duration = time.Since(start)
	result.OutputTail = tail.String()
	if stderr.Len() > 0 {
		result.OutputTail += "\nstderr:\n" + truncate(stderr.String(), outputTailLimit/4)
	}

	switch {
	case waitErr == nil:
		result.Status = StatusCompleted
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		result.Status = StatusTimedOut
		result.ExitCode = -1
		log.Warn("worker timed out", "timeout", h.cfg.Timeout())
	case ctx.Err() != nil:
		result.Status = StatusCanceled
		result.ExitCode = -1
	default:
		result.Status = StatusFailed
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		log.Warn("worker failed", "exit_code", result.ExitCode)
	}

	log.Info("worker finished",
		"status", string(result.Status),
		"duration", result.Duration.Round(time.Millisecond).String(),
		"events", result.Events,
		"malformed", result.MalformedLines,
	)
	return result, nil
}

// terminateGroup sends SIGTERM to the worker's process group, then SIGKILL
// after the grace period if the group is still alive.
func terminateGroup(cmd *exec.Cmd, grace time.Duration) error {
	if cmd.Process == nil {
		return nil
	}
	pgid := -cmd.Process.Pid

	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		// Group may already be gone; fall back to the process itself.
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	timer := time.AfterFunc(grace, func() {
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		_ = cmd.Process.Kill()
	})
	_ = timer // Wait() reaps the process; the timer fires only if it lingers.
	return nil
}

// tailBuffer keeps the last outputTailLimit bytes of whatever is written.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(line []byte) {
	t.buf.Write(line)
	t.buf.WriteByte('\n')
	if t.buf.Len() > outputTailLimit {
		data := t.buf.Bytes()
		trimmed := data[len(data)-outputTailLimit:]
		// Drop the partial first line for readability.
		if i := bytes.IndexByte(trimmed, '\n'); i >= 0 {
			trimmed = trimmed[i+1:]
		}
		rest := append([]byte(nil), trimmed...)
		t.buf.Reset()
		t.buf.Write(rest)
	}
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
