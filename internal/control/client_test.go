// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build unix

package control

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/scheduler"
	"github.com/tomtom215/warden/internal/websocket"
)

// socketPath keeps the path under the unix socket length limit.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "w.sock")
}

func serve(t *testing.T, path string, h http.Handler) {
	t.Helper()
	svc := NewService(config.ControlConfig{Socket: path, ReadTimeout: 5 * time.Second}, h, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("control socket not created")
}

func TestClient_RoundTrips(t *testing.T) {
	path := socketPath(t)
	eng := &fakeEngine{outcome: engine.OutcomeStarted, running: true}
	serve(t, path, newTestRouter(eng))

	c := NewClient(ClientConfig{Socket: path, Timeout: 2 * time.Second})
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	rep, err := c.Status(ctx)
	if err != nil || !rep.Engine.Running || rep.Service.PID != 4242 {
		t.Fatalf("Status() = %+v, %v", rep, err)
	}
	res, err := c.Reconcile(ctx, engine.ReasonProcessCheck)
	if err != nil || res.Outcome != engine.OutcomeStarted {
		t.Fatalf("Reconcile() = %+v, %v", res, err)
	}
	if _, err := c.Trigger(ctx, engine.ReasonPackageUpdate); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if _, err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stop, err := c.Stop(ctx)
	if err != nil || !stop.Override {
		t.Fatalf("Stop() = %+v, %v", stop, err)
	}
	lines, err := c.Logs(ctx, 1)
	if err != nil || len(lines) != 1 || lines[0].Text != "three" {
		t.Fatalf("Logs() = %+v, %v", lines, err)
	}
}

func TestClient_APIErrorDoesNotTripBreaker(t *testing.T) {
	path := socketPath(t)
	serve(t, path, newTestRouter(&fakeEngine{}))

	c := NewClient(ClientConfig{Socket: path, BreakerName: "test-api-errors", BreakerFailures: 1})
	for i := 0; i < 3; i++ {
		_, err := c.Reconcile(context.Background(), engine.Reason("screen-on"))
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.HTTPStatus != http.StatusBadRequest || apiErr.Code != "UNKNOWN_REASON" {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if IsUnavailable(err) {
			t.Error("API error reported as unavailable")
		}
	}
	if c.BreakerState() != gobreaker.StateClosed {
		t.Errorf("breaker = %s, want closed", c.BreakerState())
	}
}

func TestClient_UnavailableOpensBreaker(t *testing.T) {
	c := NewClient(ClientConfig{
		Socket:          socketPath(t),
		BreakerName:     "test-unavailable",
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := c.Health(ctx); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("Health() error = %v, want ErrUnavailable", err)
		}
	}
	if c.BreakerState() != gobreaker.StateOpen {
		t.Fatalf("breaker = %s, want open", c.BreakerState())
	}
	err := c.Health(ctx)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsUnavailable(err) {
		t.Errorf("Health() with open breaker = %v", err)
	}
}

func TestClient_Events(t *testing.T) {
	path := socketPath(t)
	hub := websocket.NewHub(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx) }()

	serve(t, path, NewRouter(Deps{Engine: &fakeEngine{}, Hub: hub}))

	c := NewClient(ClientConfig{Socket: path})
	got := make(chan engine.StatusEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Events(ctx, func(ev engine.StatusEvent) {
			select {
			case got <- ev:
			default:
			}
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.BroadcastStatus(engine.StatusEvent{Running: false, Outcome: engine.OutcomeExited, Reason: engine.ReasonProcessCheck})

	select {
	case ev := <-got:
		if ev.Outcome != engine.OutcomeExited || ev.Reason != engine.ReasonProcessCheck {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status event received")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Events() = %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Events() did not return after cancel")
	}
}

func TestListen_StaleAndBusySocket(t *testing.T) {
	path := socketPath(t)
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	ln, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen() over stale file error = %v", err)
	}
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	info, err := os.Stat(path)
	if err != nil || info.Mode().Perm() != 0o660 {
		t.Errorf("socket mode = %v, %v", info, err)
	}

	if _, err := Listen(path); !errors.Is(err, ErrSocketInUse) {
		t.Errorf("second Listen() error = %v, want ErrSocketInUse", err)
	}
}

func TestClient_Jobs(t *testing.T) {
	path := socketPath(t)
	jobs := &fakeJobs{jobs: []scheduler.Job{{Name: scheduler.JobKeepAlive, Interval: 15 * time.Minute}}}
	serve(t, path, NewRouter(Deps{Engine: &fakeEngine{}, Jobs: jobs}))

	c := NewClient(ClientConfig{Socket: path, BreakerName: "test-jobs"})
	ctx := context.Background()

	listed, err := c.Jobs(ctx)
	if err != nil || len(listed) != 1 || listed[0].Interval != 15*time.Minute {
		t.Fatalf("Jobs() = %+v, %v", listed, err)
	}
	if err := c.CancelJob(ctx, scheduler.JobKeepAlive); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	var apiErr *APIError
	if err := c.CancelJob(ctx, scheduler.JobKeepAlive); !errors.As(err, &apiErr) || apiErr.HTTPStatus != http.StatusNotFound {
		t.Errorf("second CancelJob() error = %v, want 404", err)
	}
}
