// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package settings

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives the flags before and after a change made by any process.
type ChangeFunc func(prev, next Flags)

// Watcher reports flag changes written to the settings file. It implements
// suture.Service.
type Watcher struct {
	store    *Store
	onChange ChangeFunc
}

// NewWatcher creates a watcher for store.
func NewWatcher(store *Store, onChange ChangeFunc) *Watcher {
	return &Watcher{store: store, onChange: onChange}
}

// Serve watches the settings directory until ctx is cancelled. The directory
// is watched instead of the file because writes replace the file by rename.
func (w *Watcher) Serve(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(filepath.Dir(w.store.path)); err != nil {
		return fmt.Errorf("watch settings directory: %w", err)
	}

	prev, err := w.store.Load()
	if err != nil {
		w.store.logger.Warn().Err(err).Msg("initial settings read failed")
	}

	base := filepath.Base(w.store.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("settings watcher closed")
			}
			if filepath.Base(ev.Name) != base || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			next, err := w.store.Load()
			if err != nil {
				w.store.logger.Warn().Err(err).Msg("settings reload failed")
				continue
			}
			if next.AutoStart != prev.AutoStart || next.ManualOverride != prev.ManualOverride {
				w.onChange(prev, next)
			}
			prev = next
		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("settings watcher closed")
			}
			w.store.logger.Warn().Err(err).Msg("settings watcher error")
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (w *Watcher) String() string {
	return "settings-watcher"
}
