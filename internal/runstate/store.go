package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	baterr "github.com/Iron-Ham/baton/internal/errors"
)

// StateFileName is the name of the run state file within the state directory.
const StateFileName = "run.json"

// Store persists RunState as JSON in a state directory. Writes are atomic:
// a temp file in the same directory is written, synced, and renamed over
// the target, so a crash mid-write never leaves a torn state file.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at the given state directory, creating
// the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the state directory this store writes into.
func (s *Store) Dir() string { return s.dir }

func (s *Store) statePath() string {
	return filepath.Join(s.dir, StateFileName)
}

// Checkpoint durably persists the state. The orchestrator calls this
// synchronously after every transition; a transition is not complete until
// its checkpoint returns.
func (s *Store) Checkpoint(state *RunState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	if err := atomicWriteFile(s.statePath(), data, 0644); err != nil {
		return baterr.NewStateError(s.dir, err)
	}
	return nil
}

// Load reads the persisted state. Returns ErrStateNotFound when no run has
// been started, or a StateError wrapping ErrStateCorrupted when the file
// exists but cannot be understood (the caller should direct the user to
// --restart).
func (s *Store) Load() (*RunState, error) {
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, baterr.ErrStateNotFound
		}
		return nil, baterr.NewStateError(s.dir, err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, baterr.NewStateError(s.dir, fmt.Errorf("%w: %v", baterr.ErrStateCorrupted, err))
	}
	if err := state.Validate(); err != nil {
		return nil, baterr.NewStateError(s.dir, fmt.Errorf("%w: %v", baterr.ErrStateCorrupted, err))
	}

	return &state, nil
}

// Discard removes any persisted state. Used by --restart.
func (s *Store) Discard() error {
	if err := os.Remove(s.statePath()); err != nil && !os.IsNotExist(err) {
		return baterr.NewStateError(s.dir, err)
	}
	return nil
}

// Exists reports whether a persisted run state is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.statePath())
	return err == nil
}

// atomicWriteFile writes data to a file atomically by writing to a
// temporary file first, then renaming. The target file is never observed
// in a partially written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
