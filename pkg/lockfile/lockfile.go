// Package lockfile provides the cross-process mutual-exclusion primitive
// guarding registry mutation. It is an advisory exclusive fcntl record lock
// over a well-known file, the POSIX equivalent of lockf(LOCK_EX): at most
// one process on the machine holds it at any instant, and acquisition
// blocks indefinitely until the holder releases.
//
// There is deliberately no in-process mutex layered on top. Every stratus
// invocation is a short-lived process that loads state, mutates, persists,
// and exits; the file lock is the sole concurrency mechanism.
package lockfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Manager acquires the exclusive lock for one lock file path.
type Manager struct {
	path string
}

// Lease represents a held lock. Release must run on every exit path of the
// protected scope; it is safe to call more than once.
type Lease struct {
	file     *os.File
	released bool
}

// New creates a lock manager for the given path. The file is created on
// first acquisition if it does not exist.
func New(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the lock file path.
func (m *Manager) Path() string {
	return m.path
}

// Acquire opens the lock file and blocks until the exclusive lock is held.
// There is no timeout and no cancellation: bounded waiting is a caller
// concern. Open or fcntl failures are returned immediately.
func (m *Manager) Acquire() (*Lease, error) {
	file, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", m.path, err)
	}

	// F_SETLKW blocks until the whole-file write lock is granted.
	flk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	if err := unix.FcntlFlock(file.Fd(), unix.F_SETLKW, &flk); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", m.path, err)
	}

	return &Lease{file: file}, nil
}

// Release drops the lock by closing the file descriptor. fcntl locks are
// released on close, so no explicit unlock call is needed.
func (l *Lease) Release() error {
	if l.released {
		return nil
	}
	l.released = true
	return l.file.Close()
}
