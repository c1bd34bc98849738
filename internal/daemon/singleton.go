// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package daemon holds the process-level plumbing shared by the warden
// processes: singleton enforcement through file locks and detached spawning
// of sibling processes.
//
// There is no client-side locking. Any process may spawn a sibling at any
// time; the spawned process enforces the singleton itself and a loser exits
// cleanly, so concurrent relaunches converge on a single survivor.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/tomtom215/warden/internal/proctable"
)

// ErrAlreadyRunning is returned by Acquire when another process holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Singleton enforces one process per lock file and records its pid.
type Singleton struct {
	name    string
	lock    *flock.Flock
	pidFile string
}

// NewSingleton creates a singleton guarding lockPath. pidFile may be empty.
func NewSingleton(name, lockPath, pidFile string) *Singleton {
	return &Singleton{name: name, lock: flock.New(lockPath), pidFile: pidFile}
}

// Acquire takes the lock without blocking and writes the pid file. It
// returns ErrAlreadyRunning when another process won.
func (s *Singleton) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(s.lock.Path()), 0o750); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire %s lock: %w", s.name, err)
	}
	if !locked {
		return fmt.Errorf("%s: %w", s.name, ErrAlreadyRunning)
	}
	if s.pidFile != "" {
		if err := proctable.WritePIDFile(s.pidFile, os.Getpid()); err != nil {
			_ = s.lock.Unlock()
			return err
		}
	}
	return nil
}

// Release removes the pid file and drops the lock.
func (s *Singleton) Release() error {
	if s.pidFile != "" {
		_ = proctable.RemovePIDFile(s.pidFile, os.Getpid())
	}
	if !s.lock.Locked() {
		return nil
	}
	return s.lock.Unlock()
}

// Held reports whether another process currently holds the lock at path,
// without taking it.
func Held(path string) (bool, error) {
	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("probe lock %s: %w", path, err)
	}
	if locked {
		_ = l.Unlock()
		return false, nil
	}
	return true, nil
}
