package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/baton/internal/logging"
)

// SignalFileName is where a worker may drop its advisory completion
// signal, relative to the run's state directory.
const SignalFileName = "completion_signal.json"

// SignalWatcher watches the state directory for the completion-signal
// file and reports parsed signals. Signals are informational only; gate
// results alone decide whether a phase completed.
type SignalWatcher struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *logging.Logger

	Signals chan CompletionSignal
}

// NewSignalWatcher begins watching dir for the signal file. The directory
// must already exist.
func NewSignalWatcher(dir string, logger *logging.Logger) (*SignalWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	sw := &SignalWatcher{
		dir:     dir,
		watcher: w,
		logger:  logger.WithComponent("signal"),
		Signals: make(chan CompletionSignal, 4),
	}
	return sw, nil
}

// Run processes filesystem events until ctx is done. Malformed signal
// files are logged and ignored; a worker writing garbage must not affect
// the run.
func (sw *SignalWatcher) Run(ctx context.Context) {
	target := filepath.Join(sw.dir, SignalFileName)

	// Catch a signal written before the watch started.
	if sig, ok := sw.read(target); ok {
		sw.deliver(ctx, sig)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			// Writers are not atomic; give the file a beat to settle.
			time.Sleep(50 * time.Millisecond)
			if sig, ok := sw.read(target); ok {
				sw.deliver(ctx, sig)
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn("signal watcher error", "error", err)
		}
	}
}

// Close stops the underlying watcher.
func (sw *SignalWatcher) Close() error {
	return sw.watcher.Close()
}

func (sw *SignalWatcher) read(path string) (CompletionSignal, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CompletionSignal{}, false
	}
	var sig CompletionSignal
	if err := json.Unmarshal(data, &sig); err != nil {
		sw.logger.Warn("ignoring malformed completion signal", "path", path, "error", err)
		return CompletionSignal{}, false
	}
	if sig.SignaledAt.IsZero() {
		sig.SignaledAt = time.Now()
	}
	return sig, true
}

func (sw *SignalWatcher) deliver(ctx context.Context, sig CompletionSignal) {
	sw.logger.Info("completion signal received", "phase", sig.PhaseID, "status", sig.Status)
	select {
	case sw.Signals <- sig:
	case <-ctx.Done():
	}
}
