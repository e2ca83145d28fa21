package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	baterr "github.com/Iron-Ham/baton/internal/errors"
)

// LockFileName is the name of the advisory lock file within the state
// directory.
const LockFileName = "run.lock"

// Lock represents an acquired run lock. Only one orchestrator may hold a
// given run's lock; this prevents split-brain resume.
type Lock struct {
	RunDir     string    `json:"run_dir"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`

	lockFile string
}

// AcquireLock attempts to acquire an exclusive advisory lock on the state
// directory. Stale locks (owner process gone) are cleaned automatically;
// a live owner yields ErrRunLocked.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	lockPath := filepath.Join(stateDir, LockFileName)

	if existing, err := readLock(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			return nil, fmt.Errorf("%w: PID %d on %s", baterr.ErrRunLocked, existing.PID, existing.Hostname)
		}
		// Stale lock, owner is gone.
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	lock := &Lock{
		RunDir:     stateDir,
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now().UTC(),
		lockFile:   lockPath,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL closes the race between the staleness check and creation.
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if existing, readErr := readLock(lockPath); readErr == nil {
				return nil, fmt.Errorf("%w: PID %d on %s", baterr.ErrRunLocked, existing.PID, existing.Hostname)
			}
			return nil, baterr.ErrRunLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	return lock, nil
}

// Release releases the lock by removing the lock file. Safe to call
// multiple times; only removes a lock this process owns.
func (l *Lock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}

	existing, err := readLock(l.lockFile)
	if err != nil {
		return nil // already released
	}
	if existing.PID != l.PID {
		return nil // not ours anymore
	}

	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// readLock reads a lock file and returns the Lock info.
func readLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath
	return &lock, nil
}

// isProcessAlive checks if a process with the given PID is still running.
// On Unix, signal 0 checks existence without affecting the process.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
