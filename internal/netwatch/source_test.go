// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package netwatch

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/warden/internal/clock"
	"github.com/tomtom215/warden/internal/config"
)

func TestPoll_BacksOffAfterProbeError(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	var calls atomic.Int32
	var emitted atomic.Int32
	p := &Poll{
		Probe: func(context.Context) (bool, error) {
			if calls.Add(1) == 1 {
				return false, errors.New("netlink dump failed")
			}
			return true, nil
		},
		Interval:     5 * time.Second,
		ErrorBackoff: 10 * time.Second,
		Clock:        fc,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, func(bool) { emitted.Add(1) }) }()
	defer func() { cancel(); <-done }()

	fc.BlockUntil(1, time.Second)
	fc.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("probed %d times before backoff elapsed", calls.Load())
	}

	fc.Advance(5 * time.Second)
	deadline := time.Now().Add(time.Second)
	for emitted.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if calls.Load() != 2 || emitted.Load() != 1 {
		t.Errorf("calls = %d, emitted = %d; want 2, 1", calls.Load(), emitted.Load())
	}
}

func TestDialProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	up, err := DialProbe(addr, time.Second)(context.Background())
	if err != nil || !up {
		t.Fatalf("DialProbe(open) = %v, %v", up, err)
	}

	_ = ln.Close()
	up, err = DialProbe(addr, time.Second)(context.Background())
	if err != nil || up {
		t.Fatalf("DialProbe(closed) = %v, %v; want false, nil", up, err)
	}
}

func TestNewSource(t *testing.T) {
	cfg := config.NetworkConfig{Source: "poll", PollInterval: time.Second, ErrorBackoff: time.Second}
	src, err := NewSource(cfg)
	if err != nil || src.String() != "poll" {
		t.Fatalf("NewSource(poll) = %v, %v", src, err)
	}

	cfg.Source = "auto"
	src, err = NewSource(cfg)
	if err != nil || src == nil {
		t.Fatalf("NewSource(auto) = %v, %v", src, err)
	}
}

func TestInterfaceProbe(t *testing.T) {
	if _, err := InterfaceProbe(context.Background()); err != nil {
		t.Fatalf("InterfaceProbe() error = %v", err)
	}
}
