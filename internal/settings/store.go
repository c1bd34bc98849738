// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package settings persists the two supervision flags, AutoStartPolicy and
// ManualOverrideFlag, in a JSON file shared by the serve, watchdog and jobs
// processes.
//
// Every read goes to disk so a flag written by one process is seen by the
// next check in every other process. Readers take a shared flock, writers an
// exclusive one, and writes replace the file by rename so a reader never sees
// a torn document.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/logging"
)

// Flags is the persisted document.
type Flags struct {
	// AutoStart is the keep-alive / start-at-boot policy.
	AutoStart bool `json:"auto_start"`

	// ManualOverride records that the user stopped the service explicitly.
	ManualOverride bool `json:"manual_override"`

	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// Store is the file-backed flag store.
type Store struct {
	path   string
	lock   *flock.Flock
	writer string

	// mu serializes all file access within this process. A flock.Flock is
	// one open file description, so concurrent users in one process would
	// share and release each other's lock. flock covers other processes.
	mu sync.Mutex

	// last holds the most recent successful read, served when the file is
	// temporarily unreadable.
	autoStart atomic.Bool
	override  atomic.Bool

	logger zerolog.Logger
}

// Open returns a store for path, creating the parent directory. writer tags
// every write (e.g. "serve", "watchdog", "cli").
func Open(path, writer string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}
	s := &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		writer: writer,
		logger: logging.WithComponent("settings"),
	}
	if _, err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current flags. A missing file yields the defaults
// (both false).
func (s *Store) Load() (Flags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return Flags{}, fmt.Errorf("lock settings: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	f, err := s.read()
	if err != nil {
		return Flags{}, err
	}
	s.autoStart.Store(f.AutoStart)
	s.override.Store(f.ManualOverride)
	return f, nil
}

func (s *Store) read() (Flags, error) {
	var f Flags
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("read settings: %w", err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decode settings %s: %w", s.path, err)
	}
	return f, nil
}

// AutoStart reports the persisted policy. On a read error the last value
// read successfully is returned.
func (s *Store) AutoStart() bool {
	f, err := s.Load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("settings unreadable, using last known auto-start")
		return s.autoStart.Load()
	}
	return f.AutoStart
}

// ManualOverride reports the persisted override. On a read error the last
// value read successfully is returned.
func (s *Store) ManualOverride() bool {
	f, err := s.Load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("settings unreadable, using last known manual override")
		return s.override.Load()
	}
	return f.ManualOverride
}

// SetManualOverride persists the override flag.
func (s *Store) SetManualOverride(v bool) error {
	return s.Update(func(f *Flags) { f.ManualOverride = v })
}

// SetAutoStart persists the auto-start policy.
func (s *Store) SetAutoStart(v bool) error {
	return s.Update(func(f *Flags) { f.AutoStart = v })
}

// Update applies fn to the current flags under an exclusive lock and
// persists the result.
func (s *Store) Update(fn func(*Flags)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock settings: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	f, err := s.read()
	if err != nil {
		// A corrupt document is replaced rather than blocking every write.
		s.logger.Warn().Err(err).Msg("rewriting unreadable settings")
		f = Flags{}
	}
	fn(&f)
	f.UpdatedAt = time.Now().UTC()
	f.UpdatedBy = s.writer

	if err := s.write(f); err != nil {
		return err
	}
	s.autoStart.Store(f.AutoStart)
	s.override.Store(f.ManualOverride)

	s.logger.Debug().
		Bool("auto_start", f.AutoStart).
		Bool("manual_override", f.ManualOverride).
		Msg("settings updated")
	return nil
}

func (s *Store) write(f Flags) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
