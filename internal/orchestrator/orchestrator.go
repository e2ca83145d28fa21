// Package orchestrator drives a plan through the phase lifecycle: it runs
// phases serially in declaration order, invokes the worker harness for
// each, verifies completion through gates, retries failed phases with
// accumulated feedback, and checkpoints state after every transition so
// an interrupted run resumes exactly where it stopped.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Iron-Ham/baton/internal/config"
	baterr "github.com/Iron-Ham/baton/internal/errors"
	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/plan"
	"github.com/Iron-Ham/baton/internal/runstate"
	"github.com/Iron-Ham/baton/internal/worker"
)

// WorkerExecutor runs the agent subprocess for one phase attempt. The
// production implementation is worker.Harness; tests substitute stubs.
type WorkerExecutor interface {
	Execute(ctx context.Context, phaseID, prompt string, events chan<- worker.Event) (*worker.ExecutionResult, error)
}

// EventSink receives streamed worker events for display. May be nil.
type EventSink func(phaseID string, event worker.Event)

// Orchestrator executes one run of a plan. It is single-use: construct,
// Run, discard.
type Orchestrator struct {
	plan     *plan.Plan
	state    *runstate.RunState
	store    *runstate.Store
	cfg      config.OrchestratorConfig
	worker   WorkerExecutor
	gates    GateRunner
	controls *Controls
	sink     EventSink
	logger   *logging.Logger

	// sleep is replaced in tests to skip real backoff delays.
	sleep func(context.Context, time.Duration) error
}

// Options bundles the orchestrator's collaborators.
type Options struct {
	Plan     *plan.Plan
	State    *runstate.RunState
	Store    *runstate.Store
	Config   config.OrchestratorConfig
	Worker   WorkerExecutor
	Gates    GateRunner
	Controls *Controls
	Sink     EventSink
	Logger   *logging.Logger
}

// New creates an Orchestrator from its collaborators.
func New(opts Options) *Orchestrator {
	controls := opts.Controls
	if controls == nil {
		controls = &Controls{}
	}
	return &Orchestrator{
		plan:     opts.Plan,
		state:    opts.State,
		store:    opts.Store,
		cfg:      opts.Config,
		worker:   opts.Worker,
		gates:    opts.Gates,
		controls: controls,
		sink:     opts.Sink,
		logger:   opts.Logger.WithComponent("orchestrator").WithRun(opts.State.ID),
		sleep:    sleepCtx,
	}
}

// SetSleep replaces the retry delay sleeper. Test hook.
func (o *Orchestrator) SetSleep(fn func(context.Context, time.Duration) error) {
	o.sleep = fn
}

// Run executes every phase of the plan serially. Phases already COMPLETED
// or SKIPPED in the loaded state are never re-run; the worker is never
// re-invoked for a completed phase. Run returns nil when every phase is
// done, ErrQuitRequested on a cooperative stop, and ErrMaxAttempts when a
// phase exhausts its budget.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.state.Complete() {
		return baterr.ErrRunComplete
	}

	if recovered := o.state.Recover(); len(recovered) > 0 {
		o.logger.Info("recovered phases interrupted mid-attempt", "phases", recovered)
		if err := o.store.Checkpoint(o.state); err != nil {
			return err
		}
	}

	for _, phase := range o.plan.Phases {
		status := o.state.PhaseStatus(phase.ID)
		if status.Done() {
			o.logger.Info("phase already done, skipping", "phase", phase.ID, "status", string(status))
			continue
		}
		if status == plan.StatusFailed {
			return fmt.Errorf("phase %s already failed: %w", phase.ID, baterr.ErrMaxAttempts)
		}

		if o.controls.quitRequested() || ctx.Err() != nil {
			return baterr.ErrQuitRequested
		}
		if o.controls.pauseRequested() {
			o.logger.Info("run paused", "next_phase", phase.ID)
			return baterr.ErrQuitRequested
		}

		if err := o.checkDependencies(phase); err != nil {
			return err
		}

		if o.controls.takeSkip() {
			if err := o.transition(phase.ID, plan.StatusSkipped); err != nil {
				return err
			}
			o.logger.Info("phase skipped by request", "phase", phase.ID)
			continue
		}

		if err := o.runPhase(ctx, phase); err != nil {
			return err
		}
	}

	o.logger.Info("run complete", "phases", len(o.plan.Phases))
	return nil
}

// checkDependencies verifies every dependency of the phase is done. The
// audit engine catches unknown and cyclic dependencies before a run
// starts, so this guards only runtime ordering.
func (o *Orchestrator) checkDependencies(phase *plan.Phase) error {
	for _, dep := range phase.DependsOn {
		if status := o.state.PhaseStatus(dep); !status.Done() {
			return fmt.Errorf("phase %s depends on %s which is %s: %w",
				phase.ID, dep, status, baterr.ErrMaxAttempts)
		}
	}
	return nil
}

// runPhase drives one phase through the attempt loop until it completes,
// fails its budget, or the run is cancelled.
func (o *Orchestrator) runPhase(ctx context.Context, phase *plan.Phase) error {
	log := o.logger.WithPhase(phase.ID)
	var history []attemptRecord

	// A phase resumed in RETRY_PENDING keeps its recorded attempt count.
	for {
		if o.controls.quitRequested() || ctx.Err() != nil {
			return baterr.ErrQuitRequested
		}

		if err := o.transition(phase.ID, plan.StatusRunning); err != nil {
			return err
		}
		attempt := o.state.Attempts(phase.ID)
		log.Info("phase attempt starting", "attempt", attempt, "max_attempts", o.cfg.MaxAttempts)

		prompt, err := buildPrompt(phase, history)
		if err != nil {
			return err
		}

		result, err := o.executeWorker(ctx, phase.ID, prompt)
		if err != nil {
			return err
		}
		if result.Status == worker.StatusCanceled {
			return baterr.ErrQuitRequested
		}

		// Gates judge completion even after a timeout or crash: the
		// worker may have finished the actual work before dying.
		if err := o.transition(phase.ID, plan.StatusAwaitingGates); err != nil {
			return err
		}

		gateResults, gateErr := o.gates.RunGates(ctx, phase)
		if gateErr == nil {
			if err := o.transition(phase.ID, plan.StatusCompleted); err != nil {
				return err
			}
			log.Info("phase completed", "attempt", attempt, "gates", len(gateResults))
			return nil
		}
		if !baterr.Is(gateErr, baterr.ErrGateFailed) {
			return gateErr
		}

		history = append(history, attemptRecord{
			Attempt:     attempt,
			Gates:       gateResults,
			WorkerNotes: workerFailureNotes(result),
		})

		if err := o.transition(phase.ID, plan.StatusRetryPending); err != nil {
			return err
		}

		if attempt >= o.cfg.MaxAttempts {
			if err := o.transition(phase.ID, plan.StatusFailed); err != nil {
				return err
			}
			log.Error("phase failed, attempts exhausted", "attempts", attempt)
			return fmt.Errorf("phase %s failed after %d attempts: %w",
				phase.ID, attempt, baterr.ErrMaxAttempts)
		}

		delay := o.retryDelay(attempt)
		log.Warn("phase retrying", "attempt", attempt, "delay", delay.String())
		if err := o.sleep(ctx, delay); err != nil {
			return baterr.ErrQuitRequested
		}
	}
}

// executeWorker runs the worker with an event pump so logging and display
// keep up with the stream without blocking it.
func (o *Orchestrator) executeWorker(ctx context.Context, phaseID, prompt string) (*worker.ExecutionResult, error) {
	events := make(chan worker.Event, 64)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for ev := range events {
			if o.sink != nil {
				o.sink(phaseID, ev)
			}
			o.logger.Debug("worker event", "phase", phaseID, "kind", string(ev.Kind))
		}
	}()

	result, err := o.worker.Execute(ctx, phaseID, prompt, events)
	close(events)
	<-pumpDone
	if err != nil {
		return nil, err
	}
	return result, nil
}

// transition applies a lifecycle edge and checkpoints it. Every state
// mutation in a run flows through here; a transition that cannot be
// persisted is treated as if it never happened.
func (o *Orchestrator) transition(phaseID string, to plan.PhaseStatus) error {
	if err := o.state.Apply(phaseID, to); err != nil {
		return err
	}
	return o.store.Checkpoint(o.state)
}

// retryDelay computes the backoff delay before the given attempt's retry.
func (o *Orchestrator) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.RetryBackoff()
	b.MaxInterval = o.cfg.RetryBackoffMax()
	b.RandomizationFactor = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay == backoff.Stop || delay > o.cfg.RetryBackoffMax() {
		return o.cfg.RetryBackoffMax()
	}
	return delay
}

// PhasePreview is one row of a dry-run preview.
type PhasePreview struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Status   plan.PhaseStatus `json:"status"`
	Gates    int              `json:"gates"`
	WouldRun bool             `json:"would_run"`
}

// Preview reports what Run would do without invoking any worker or gate
// and without mutating persisted state. Used by --dry-run.
func (o *Orchestrator) Preview() []PhasePreview {
	previews := make([]PhasePreview, 0, len(o.plan.Phases))
	blocked := false
	for _, phase := range o.plan.Phases {
		status := o.state.PhaseStatus(phase.ID)
		previews = append(previews, PhasePreview{
			ID:       phase.ID,
			Title:    phase.Title,
			Status:   status,
			Gates:    len(phase.Gates),
			WouldRun: !blocked && !status.Done(),
		})
		if status == plan.StatusFailed {
			blocked = true
		}
	}
	return previews
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
