// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build unix

package managed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/warden/internal/clock"
)

type fakeSyncer struct {
	running atomic.Bool
	checks  atomic.Int32
	calls   atomic.Int32
	err     error
}

func (f *fakeSyncer) IsRunning() bool {
	f.checks.Add(1)
	return f.running.Load()
}

func (f *fakeSyncer) RunSync(context.Context) error {
	f.calls.Add(1)
	return f.err
}

func TestSyncLoop_FlushesOnlyWhileRunning(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	svc := &fakeSyncer{err: errors.New("database is locked")}
	l := NewSyncLoop(svc, 5*time.Minute, fc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	if !fc.BlockUntil(1, time.Second) {
		t.Fatal("sync ticker never registered")
	}

	// Stopped server: the tick is a no-op.
	fc.Advance(5 * time.Minute)
	waitFor(t, time.Second, func() bool { return svc.checks.Load() == 1 })
	if n := svc.calls.Load(); n != 0 {
		t.Fatalf("sync calls while stopped = %d, want 0", n)
	}

	svc.running.Store(true)
	fc.Advance(5 * time.Minute)
	waitFor(t, time.Second, func() bool { return svc.calls.Load() == 1 })

	// A failed flush does not stop the loop.
	fc.Advance(5 * time.Minute)
	waitFor(t, time.Second, func() bool { return svc.calls.Load() == 2 })
	if l.Runs() != 2 {
		t.Errorf("Runs() = %d, want 2", l.Runs())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}
