// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeService is a controllable ManagedService.
type fakeService struct {
	running atomic.Bool

	startCalls    atomic.Int32
	shutdownCalls atomic.Int32
	inFlight      atomic.Int32
	maxInFlight   atomic.Int32

	mu sync.Mutex
	// startErr is returned by Start; startPanic makes Start panic.
	startErr   error
	startPanic any
	// runOnFail marks the service running even when Start fails (a race).
	runOnFail bool
	// startGate, when non-nil, blocks Start until closed.
	startGate chan struct{}
	// shutdownGate, when non-nil, blocks RequestShutdown until closed.
	shutdownGate chan struct{}
	// onShutdown runs at the top of RequestShutdown.
	onShutdown func()
}

func (f *fakeService) IsRunning() bool { return f.running.Load() }

func (f *fakeService) Start(ctx context.Context) error {
	f.startCalls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	gate, err, p, runOnFail := f.startGate, f.startErr, f.startPanic, f.runOnFail
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p != nil {
		panic(p)
	}
	if err != nil {
		if runOnFail {
			f.running.Store(true)
		}
		return err
	}
	f.running.Store(true)
	return nil
}

func (f *fakeService) RequestShutdown(ctx context.Context, _ time.Duration) error {
	f.shutdownCalls.Add(1)
	f.mu.Lock()
	gate, hook := f.shutdownGate, f.onShutdown
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.running.Store(false)
	return nil
}

// orderedFlags records the order of override writes relative to other events.
type orderedFlags struct {
	autoStart atomic.Bool
	override  atomic.Bool
	failSet   error

	mu  sync.Mutex
	log []string
}

func newFlags(autoStart, override bool) *orderedFlags {
	f := &orderedFlags{}
	f.autoStart.Store(autoStart)
	f.override.Store(override)
	return f
}

func (f *orderedFlags) AutoStart() bool      { return f.autoStart.Load() }
func (f *orderedFlags) ManualOverride() bool { return f.override.Load() }

func (f *orderedFlags) SetManualOverride(v bool) error {
	if f.failSet != nil {
		return f.failSet
	}
	f.override.Store(v)
	if v {
		f.record("override=true")
	} else {
		f.record("override=false")
	}
	return nil
}

func (f *orderedFlags) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, s)
}

func (f *orderedFlags) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

// eventSink collects status events.
type eventSink struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (s *eventSink) listen(ev StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) all() []StatusEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StatusEvent(nil), s.events...)
}

var errResourceBusy = errors.New("resource temporarily unavailable")

func newTestEngine(svc *fakeService, flags *orderedFlags) (*Engine, *eventSink) {
	bus := NewBroadcaster()
	sink := &eventSink{}
	bus.Subscribe("test", sink.listen)
	e := New(svc, flags, bus, Config{
		StartSettleDelay: 0,
		ShutdownTimeout:  time.Second,
	})
	return e, sink
}
