// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestStore_DefaultsWhenMissing(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "settings.json"), "test")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.AutoStart() {
		t.Error("AutoStart should default to false")
	}
	if s.ManualOverride() {
		t.Error("ManualOverride should default to false")
	}
}

func TestStore_SharedAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	serve, err := Open(path, "serve")
	if err != nil {
		t.Fatal(err)
	}
	watchdog, err := Open(path, "watchdog")
	if err != nil {
		t.Fatal(err)
	}

	if err := serve.SetAutoStart(true); err != nil {
		t.Fatal(err)
	}
	if err := serve.SetManualOverride(true); err != nil {
		t.Fatal(err)
	}

	if !watchdog.AutoStart() || !watchdog.ManualOverride() {
		t.Fatal("second handle should observe flags written by the first")
	}

	f, err := watchdog.Load()
	if err != nil {
		t.Fatal(err)
	}
	if f.UpdatedBy != "serve" {
		t.Errorf("UpdatedBy = %q, want serve", f.UpdatedBy)
	}
}

func TestStore_CorruptFileKeepsLastKnown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Open(path, "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetAutoStart(true); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if !s.AutoStart() {
		t.Error("AutoStart should fall back to the last value read")
	}

	// A write repairs the document.
	if err := s.SetManualOverride(false); err != nil {
		t.Fatalf("SetManualOverride() error = %v", err)
	}
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load() after repair error = %v", err)
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "settings.json"), "test")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = s.SetAutoStart(true)
			} else {
				_ = s.ManualOverride()
			}
		}(i)
	}
	wg.Wait()

	if !s.AutoStart() {
		t.Error("expected AutoStart true after concurrent writes")
	}
}

func TestWatcher_ReportsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Open(path, "test")
	if err != nil {
		t.Fatal(err)
	}

	changes := make(chan Flags, 4)
	w := NewWatcher(s, func(_, next Flags) { changes <- next })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	other, err := Open(path, "cli")
	if err != nil {
		t.Fatal(err)
	}
	if err := other.SetAutoStart(true); err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-changes:
		if !f.AutoStart {
			t.Errorf("expected AutoStart true in change, got %+v", f)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve() returned %v after cancel", err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory(true, false)
	var seen Flags
	m.OnChange(func(f Flags) { seen = f })

	if err := m.SetManualOverride(true); err != nil {
		t.Fatal(err)
	}
	if !seen.ManualOverride || !seen.AutoStart {
		t.Errorf("OnChange saw %+v", seen)
	}
	if m.SetCalls.Load() != 1 {
		t.Errorf("SetCalls = %d, want 1", m.SetCalls.Load())
	}
}

func TestMemory_HooksRunInOrder(t *testing.T) {
	m := NewMemory(false, false)
	var order []string
	m.OnChange(func(Flags) { order = append(order, "a") })
	m.OnChange(func(f Flags) {
		order = append(order, "b")
		if !f.AutoStart {
			t.Errorf("hook saw %+v after SetAutoStart(true)", f)
		}
	})

	if err := m.SetAutoStart(true); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("hooks ran %v, want [a b]", order)
	}
}
