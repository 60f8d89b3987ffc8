package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// ErrSessionLocked means another engine instance holds the session lock.
var ErrSessionLocked = errors.New("session locked by another engine instance")

// Lock is a file-level advisory lock guarding a session against two engine
// instances racing on the same project. It is the sole cross-process
// mutual-exclusion mechanism.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes an exclusive flock on the lock file at path. When the
// lock is already held, returns ErrSessionLocked unless override is set, in
// which case the lock is taken with a blocking acquire (the previous holder
// is assumed dead or being deliberately displaced).
func AcquireLock(path string, override bool) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	how := syscall.LOCK_EX | syscall.LOCK_NB
	if override {
		how = syscall.LOCK_EX
	}

	if err := syscall.Flock(int(file.Fd()), how); err != nil {
		file.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, ErrSessionLocked
		}
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}

	// Record the holder's pid for operator inspection; advisory only
	_ = file.Truncate(0)
	_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)

	return &Lock{path: path, file: file}, nil
}

// Release drops the lock and removes the lock file.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	os.Remove(l.path)

	if err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return closeErr
}
