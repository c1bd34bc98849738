// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package netwatch turns connectivity changes into reconciles. An Observer
// follows a Source (netlink push notifications, or polling) through a two
// state machine and reconciles once the network has been up for a settle
// delay. Losing the network only cancels a pending settle.
package netwatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/clock"
	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// State is the observed connectivity.
type State int32

// Connectivity states.
const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Reconciler is satisfied by *engine.Engine.
type Reconciler interface {
	Reconcile(ctx context.Context, reason engine.Reason) engine.Outcome
}

// Observer is the network-state observer. It implements suture.Service.
type Observer struct {
	rec    Reconciler
	src    Source
	settle time.Duration
	clk    clock.Clock
	logger zerolog.Logger

	state      atomic.Int32
	reconciles atomic.Int64
}

// NewObserver creates an observer. A nil clk uses the wall clock.
func NewObserver(rec Reconciler, src Source, settle time.Duration, clk clock.Clock) *Observer {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Observer{
		rec:    rec,
		src:    src,
		settle: settle,
		clk:    clk,
		logger: logging.WithComponent("netwatch"),
	}
}

// State returns the last observed connectivity.
func (o *Observer) State() State {
	return State(o.state.Load())
}

// Reconciles returns how many network-available reconciles ran.
func (o *Observer) Reconciles() int64 {
	return o.reconciles.Load()
}

// Serve follows the source until ctx is cancelled or the source fails.
func (o *Observer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan bool, 16)
	srcErr := make(chan error, 1)
	go func() {
		srcErr <- o.src.Run(ctx, func(up bool) {
			select {
			case updates <- up:
			case <-ctx.Done():
			}
		})
	}()

	var settle clock.Timer
	var settleC <-chan time.Time
	stopSettle := func() {
		if settle != nil {
			settle.Stop()
			settle, settleC = nil, nil
		}
	}
	defer stopSettle()

	o.logger.Info().Str("source", o.src.String()).Dur("settle", o.settle).Msg("network observer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-srcErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("network source %s: %w", o.src, err)

		case up := <-updates:
			next := Disconnected
			if up {
				next = Connected
			}
			prev := State(o.state.Swap(int32(next)))
			if prev == next {
				continue
			}
			metrics.RecordNetworkTransition(next.String())
			o.logger.Info().Str("from", prev.String()).Str("to", next.String()).Msg("connectivity changed")

			stopSettle()
			if next == Connected {
				settle = o.clk.NewTimer(o.settle)
				settleC = settle.C()
			}

		case <-settleC:
			settle, settleC = nil, nil
			if o.State() != Connected {
				continue
			}
			o.reconciles.Add(1)
			o.rec.Reconcile(ctx, engine.ReasonNetworkAvailable)
		}
	}
}

func (o *Observer) String() string { return "netwatch" }
