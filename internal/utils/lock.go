package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	homedir "github.com/mitchellh/go-homedir"
)

const (
	lockFileName = "rankbot.lock"
)

// StateLock manages a file-based lock on the state directory, so that only one
// rankbot process owns the snapshot and subscriber files at a time.
type StateLock struct {
	lock *flock.Flock
	path string
}

// NewStateLock creates a new lock for the given state directory.
func NewStateLock(stateDir string) (*StateLock, error) {
	absDir, err := GetAbsStateDir(stateDir)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute state dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(absDir, lockFileName)
	return &StateLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock acquires the state lock, waiting if necessary.
// It will print a message if it has to wait.
func (l *StateLock) Lock() error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		fmt.Fprintf(os.Stderr, "Another rankbot process owns the state directory, waiting for it to finish...\n")
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// TryLock acquires the lock without waiting and reports whether it succeeded.
func (l *StateLock) TryLock() (bool, error) {
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	return locked, nil
}

// Unlock releases the state lock.
func (l *StateLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// GetAbsStateDir resolves the state directory.
func GetAbsStateDir(stateDir string) (string, error) {
	if stateDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "rankbot"), nil
	}
	return filepath.Abs(stateDir)
}
