// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build unix

package engine_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/managed"
	"github.com/tomtom215/warden/internal/settings"
)

func TestManualStopDuringVerifyWindow(t *testing.T) {
	dir := t.TempDir()
	svc := managed.New(managed.Config{
		Command:     []string{"/bin/sh", "-c", "exec sleep 30"},
		DataDir:     filepath.Join(dir, "data"),
		PIDFile:     filepath.Join(dir, "openlist.pid"),
		VerifyDelay: time.Second,
		LogLines:    16,
	})
	t.Cleanup(func() { _ = svc.Close(context.Background(), time.Second) })

	flags := settings.NewMemory(true, false)
	e := engine.New(svc, flags, nil, engine.Config{ShutdownTimeout: 2 * time.Second})
	svc.OnShutdown("engine", e.HandleExit)

	reconciled := make(chan engine.Outcome, 1)
	go func() { reconciled <- e.Reconcile(context.Background(), engine.ReasonHeartbeat) }()

	deadline := time.Now().Add(2 * time.Second)
	for svc.State() != managed.StateStarting {
		if time.Now().After(deadline) {
			t.Fatal("service never entered the starting state")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := e.RequestManualStop(context.Background()); err != nil {
		t.Fatalf("RequestManualStop() error = %v", err)
	}
	if out := <-reconciled; out != engine.OutcomeStarted {
		t.Errorf("reconcile outcome = %s, want started", out)
	}
	if svc.IsRunning() || e.State().Running() {
		t.Fatalf("server still running after manual stop (state %s)", svc.State())
	}
	if !flags.ManualOverride() {
		t.Error("manual override not set")
	}
	if out := e.Reconcile(context.Background(), engine.ReasonHeartbeat); out != engine.OutcomePolicyNoOp {
		t.Errorf("heartbeat after stop = %s, want policy-noop", out)
	}
}
