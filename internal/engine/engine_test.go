// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestReconcile_StartsStoppedService(t *testing.T) {
	svc := &fakeService{}
	e, sink := newTestEngine(svc, newFlags(true, false))

	out := e.Reconcile(context.Background(), ReasonHeartbeat)

	if out != OutcomeStarted {
		t.Fatalf("outcome = %s, want %s", out, OutcomeStarted)
	}
	if n := svc.startCalls.Load(); n != 1 {
		t.Errorf("start calls = %d, want 1", n)
	}
	if !e.State().Running() {
		t.Error("ServiceState.running should be true")
	}
	if e.State().Instance() == nil {
		t.Error("running implies a live instance")
	}
	evs := sink.all()
	if len(evs) != 1 || !evs[0].Running || evs[0].Reason != ReasonHeartbeat {
		t.Errorf("events = %+v, want one running=true heartbeat event", evs)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	svc := &fakeService{}
	e, sink := newTestEngine(svc, newFlags(true, false))

	first := e.Reconcile(context.Background(), ReasonHeartbeat)
	if first != OutcomeStarted {
		t.Fatalf("first outcome = %s", first)
	}
	for i := 0; i < 5; i++ {
		if out := e.Reconcile(context.Background(), ReasonHeartbeat); out != OutcomeHealthy {
			t.Fatalf("call %d outcome = %s, want healthy", i+2, out)
		}
		if !e.State().Running() {
			t.Fatalf("state changed on call %d", i+2)
		}
	}
	if n := svc.startCalls.Load(); n != 1 {
		t.Errorf("start calls = %d, want 1", n)
	}
	if n := len(sink.all()); n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
}

func TestReconcile_PolicyGates(t *testing.T) {
	tests := []struct {
		name      string
		autoStart bool
		override  bool
	}{
		{"policy disabled", false, false},
		{"override set", true, true},
		{"both", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, reason := range Reasons {
				svc := &fakeService{}
				e, sink := newTestEngine(svc, newFlags(tt.autoStart, tt.override))

				if out := e.Reconcile(context.Background(), reason); out != OutcomePolicyNoOp {
					t.Errorf("%s: outcome = %s, want policy-noop", reason, out)
				}
				if n := svc.startCalls.Load(); n != 0 {
					t.Errorf("%s: start calls = %d, want 0", reason, n)
				}
				if n := len(sink.all()); n != 0 {
					t.Errorf("%s: events = %d, want 0", reason, n)
				}
			}
		})
	}
}

func TestReconcile_OverrideWinsUnderConcurrency(t *testing.T) {
	svc := &fakeService{}
	e, _ := newTestEngine(svc, newFlags(true, true))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Reconcile(context.Background(), Reasons[i%len(Reasons)])
		}(i)
	}
	wg.Wait()

	if n := svc.startCalls.Load(); n != 0 {
		t.Fatalf("start calls = %d, want 0 with override set", n)
	}
}

func TestReconcile_AtMostOneInFlightStart(t *testing.T) {
	gate := make(chan struct{})
	svc := &fakeService{startGate: gate}
	e, _ := newTestEngine(svc, newFlags(true, false))

	sources := []Reason{ReasonHeartbeat, ReasonNetworkAvailable, ReasonProcessCheck, ReasonScheduledFallback}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(r Reason) {
			defer wg.Done()
			e.Reconcile(context.Background(), r)
		}(sources[i%len(sources)])
	}

	// Let every goroutine reach the start mutex before releasing the start.
	deadline := time.Now().Add(2 * time.Second)
	for svc.startCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if n := svc.startCalls.Load(); n != 1 {
		t.Fatalf("start calls before completion = %d, want 1", n)
	}
	close(gate)
	wg.Wait()

	if n := svc.startCalls.Load(); n != 1 {
		t.Errorf("total start calls = %d, want 1", n)
	}
	if m := svc.maxInFlight.Load(); m != 1 {
		t.Errorf("max concurrent starts = %d, want 1", m)
	}
}

func TestReconcile_TransientFailure(t *testing.T) {
	svc := &fakeService{startErr: errResourceBusy}
	e, sink := newTestEngine(svc, newFlags(true, false))

	out := e.Reconcile(context.Background(), ReasonNetworkAvailable)

	if out != OutcomeStartFailed {
		t.Fatalf("outcome = %s, want start-failed", out)
	}
	if e.State().Running() {
		t.Error("running should be false after failure")
	}
	evs := sink.all()
	if len(evs) != 1 || evs[0].Running || evs[0].Error == "" {
		t.Fatalf("events = %+v, want one running=false event with error", evs)
	}
	if n := svc.startCalls.Load(); n != 1 {
		t.Errorf("start calls = %d, want 1 (no inline retry)", n)
	}

	// The next signal retries.
	svc.mu.Lock()
	svc.startErr = nil
	svc.mu.Unlock()
	if out := e.Reconcile(context.Background(), ReasonHeartbeat); out != OutcomeStarted {
		t.Errorf("retry outcome = %s, want started", out)
	}
}

func TestReconcile_FatalStartFault(t *testing.T) {
	svc := &fakeService{startPanic: "SIGSEGV in native layer"}
	e, sink := newTestEngine(svc, newFlags(true, false))

	out := e.Reconcile(context.Background(), ReasonHeartbeat)

	if out != OutcomeFatalFault {
		t.Fatalf("outcome = %s, want fatal-fault", out)
	}
	if e.State().Running() {
		t.Error("running should be false after fatal fault")
	}
	evs := sink.all()
	if len(evs) != 1 || evs[0].Running || evs[0].Outcome != OutcomeFatalFault {
		t.Fatalf("events = %+v, want one running=false fatal event", evs)
	}
	if snap := e.Snapshot(); snap.LastError == "" {
		t.Error("snapshot should carry the fault")
	}
}

func TestReconcile_RaceDetected(t *testing.T) {
	svc := &fakeService{startErr: errors.New("address already in use"), runOnFail: true}
	e, sink := newTestEngine(svc, newFlags(true, false))

	out := e.Reconcile(context.Background(), ReasonProcessCheck)

	if out != OutcomeRaceDetected {
		t.Fatalf("outcome = %s, want race-detected", out)
	}
	if !e.State().Running() {
		t.Error("race-detected counts as running")
	}
	evs := sink.all()
	if len(evs) != 1 || !evs[0].Running {
		t.Errorf("events = %+v, want one running=true event", evs)
	}
}

func TestReconcile_CancelledContext(t *testing.T) {
	svc := &fakeService{}
	e, _ := newTestEngine(svc, newFlags(true, false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if out := e.Reconcile(ctx, ReasonHeartbeat); out != OutcomeCancelled {
		t.Fatalf("outcome = %s, want cancelled", out)
	}
	if n := svc.startCalls.Load(); n != 0 {
		t.Errorf("start calls = %d, want 0", n)
	}
}

func TestRequestManualStart_ClearsOverrideFirst(t *testing.T) {
	svc := &fakeService{}
	flags := newFlags(true, true)
	e, _ := newTestEngine(svc, flags)

	out, err := e.RequestManualStart(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out != OutcomeStarted {
		t.Fatalf("outcome = %s, want started", out)
	}
	if flags.ManualOverride() {
		t.Error("override should be cleared")
	}
	if got := flags.events(); len(got) != 1 || got[0] != "override=false" {
		t.Errorf("flag writes = %v", got)
	}
}

func TestRequestManualStart_PolicyStillApplies(t *testing.T) {
	svc := &fakeService{}
	flags := newFlags(false, true)
	e, _ := newTestEngine(svc, flags)

	out, err := e.RequestManualStart(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out != OutcomePolicyNoOp {
		t.Errorf("outcome = %s, want policy-noop", out)
	}
	if flags.ManualOverride() {
		t.Error("override is cleared even when the policy blocks the start")
	}
}

func TestRequestManualStop_SetsOverrideBeforeShutdown(t *testing.T) {
	svc := &fakeService{}
	svc.running.Store(true)
	flags := newFlags(true, false)
	svc.onShutdown = func() { flags.record("shutdown") }
	e, sink := newTestEngine(svc, flags)

	if err := e.RequestManualStop(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := flags.events()
	if len(got) != 2 || got[0] != "override=true" || got[1] != "shutdown" {
		t.Fatalf("order = %v, want [override=true shutdown]", got)
	}
	if n := svc.shutdownCalls.Load(); n != 1 {
		t.Errorf("shutdown calls = %d, want 1", n)
	}
	evs := sink.all()
	if len(evs) != 1 || evs[0].Running || evs[0].Outcome != OutcomeStopped {
		t.Errorf("events = %+v", evs)
	}
}

func TestRequestManualStop_HeartbeatDuringShutdown(t *testing.T) {
	gate := make(chan struct{})
	svc := &fakeService{shutdownGate: gate}
	svc.running.Store(true)
	flags := newFlags(true, false)
	e, _ := newTestEngine(svc, flags)

	// The service is observed running first.
	if out := e.Reconcile(context.Background(), ReasonHeartbeat); out != OutcomeHealthy {
		t.Fatalf("outcome = %s", out)
	}

	done := make(chan error, 1)
	go func() { done <- e.RequestManualStop(context.Background()) }()

	for svc.shutdownCalls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	// Shutdown is in progress; mark the process gone as a slow stop would.
	svc.running.Store(false)
	if out := e.Reconcile(context.Background(), ReasonHeartbeat); out != OutcomePolicyNoOp {
		t.Errorf("heartbeat during stop = %s, want policy-noop", out)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if n := svc.startCalls.Load(); n != 0 {
		t.Errorf("start calls = %d, want 0", n)
	}
}

func TestRequestManualStop_OverridePersistFailure(t *testing.T) {
	svc := &fakeService{}
	svc.running.Store(true)
	flags := newFlags(true, false)
	flags.failSet = errors.New("read-only file system")
	e, _ := newTestEngine(svc, flags)

	err := e.RequestManualStop(context.Background())
	if !errors.Is(err, ErrOverridePersist) {
		t.Fatalf("err = %v, want ErrOverridePersist", err)
	}
	if n := svc.shutdownCalls.Load(); n != 0 {
		t.Errorf("shutdown must not run without the override, got %d calls", n)
	}
}

func TestHandleTrigger_BootClearsOverride(t *testing.T) {
	tests := []struct {
		name         string
		reason       Reason
		autoStart    bool
		wantOverride bool
		wantOutcome  Outcome
	}{
		{"boot with policy", ReasonBoot, true, false, OutcomeStarted},
		{"package update with policy", ReasonPackageUpdate, true, false, OutcomeStarted},
		{"boot without policy", ReasonBoot, false, true, OutcomePolicyNoOp},
		{"heartbeat keeps override", ReasonHeartbeat, true, true, OutcomePolicyNoOp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			flags := newFlags(tt.autoStart, true)
			e, _ := newTestEngine(svc, flags)

			out, err := e.HandleTrigger(context.Background(), tt.reason)
			if err != nil {
				t.Fatal(err)
			}
			if out != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", out, tt.wantOutcome)
			}
			if flags.ManualOverride() != tt.wantOverride {
				t.Errorf("override = %v, want %v", flags.ManualOverride(), tt.wantOverride)
			}
		})
	}
}

func TestHandleExit(t *testing.T) {
	svc := &fakeService{}
	e, sink := newTestEngine(svc, newFlags(true, false))
	e.Reconcile(context.Background(), ReasonBoot)

	svc.running.Store(false)
	e.HandleExit(errors.New("exit status 2"))
	e.HandleExit(nil) // already stopped: no second event

	evs := sink.all()
	if len(evs) != 2 {
		t.Fatalf("events = %+v, want start then exit", evs)
	}
	if evs[1].Running || evs[1].Outcome != OutcomeExited || evs[1].Error == "" {
		t.Errorf("exit event = %+v", evs[1])
	}
	if e.State().Running() {
		t.Error("running should be false after exit")
	}
}

func TestParseReason(t *testing.T) {
	for _, r := range Reasons {
		got, err := ParseReason(string(r))
		if err != nil || got != r {
			t.Errorf("ParseReason(%q) = %q, %v", r, got, err)
		}
	}
	if _, err := ParseReason("screen-on"); !errors.Is(err, ErrUnknownReason) {
		t.Errorf("expected ErrUnknownReason, got %v", err)
	}
}

func TestRequestManualStop_DuringInFlightStart(t *testing.T) {
	gate := make(chan struct{})
	svc := &fakeService{startGate: gate}
	flags := newFlags(true, false)
	e, sink := newTestEngine(svc, flags)

	reconciled := make(chan Outcome, 1)
	go func() { reconciled <- e.Reconcile(context.Background(), ReasonHeartbeat) }()
	for svc.inFlight.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- e.RequestManualStop(context.Background()) }()

	select {
	case err := <-stopped:
		t.Fatalf("RequestManualStop returned %v before the start finished", err)
	case <-time.After(50 * time.Millisecond):
	}
	if n := svc.shutdownCalls.Load(); n != 0 {
		t.Fatalf("shutdown ran %d times while the start was in flight", n)
	}

	close(gate)
	if out := <-reconciled; out != OutcomeStarted {
		t.Errorf("reconcile outcome = %s, want started", out)
	}
	if err := <-stopped; err != nil {
		t.Fatalf("RequestManualStop() error = %v", err)
	}

	if svc.IsRunning() || e.State().Running() {
		t.Error("service running after manual stop")
	}
	if n := svc.shutdownCalls.Load(); n != 1 {
		t.Errorf("shutdown calls = %d, want 1", n)
	}
	evs := sink.all()
	if len(evs) == 0 || evs[len(evs)-1].Outcome != OutcomeStopped {
		t.Errorf("last event = %+v, want stopped", evs)
	}
}
