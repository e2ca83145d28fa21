package orchestrator

import "sync/atomic"

// Controls carries cooperative run-control requests into the orchestration
// loop. Requests take effect at the next phase boundary; a running worker
// is never interrupted by pause or skip, only by quit.
type Controls struct {
	pause atomic.Bool
	quit  atomic.Bool
	skip  atomic.Bool
}

// RequestPause asks the orchestrator to stop before starting the next
// phase. The run stays resumable.
func (c *Controls) RequestPause() { c.pause.Store(true) }

// RequestQuit asks the orchestrator to stop as soon as possible,
// cancelling any in-flight worker.
func (c *Controls) RequestQuit() { c.quit.Store(true) }

// RequestSkip asks the orchestrator to mark the next pending phase
// SKIPPED instead of running it. Consumed by the first phase it applies to.
func (c *Controls) RequestSkip() { c.skip.Store(true) }

// PauseRequested reports whether a pause is pending.
func (c *Controls) PauseRequested() bool { return c.pause.Load() }

// SkipArmed reports whether a skip is pending and not yet consumed.
func (c *Controls) SkipArmed() bool { return c.skip.Load() }

func (c *Controls) pauseRequested() bool { return c.pause.Load() }
func (c *Controls) quitRequested() bool  { return c.quit.Load() }

// takeSkip consumes a pending skip request.
func (c *Controls) takeSkip() bool { return c.skip.Swap(false) }
