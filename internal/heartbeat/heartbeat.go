// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package heartbeat runs the fixed-interval reconcile loop of the main
// process. A tick that fires while the previous one is still running is
// skipped, never queued.
package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/clock"
	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// Reconciler is satisfied by *engine.Engine.
type Reconciler interface {
	Reconcile(ctx context.Context, reason engine.Reason) engine.Outcome
}

// PeerCheck runs after every reconcile. The main process uses it to keep
// the watchdog alive.
type PeerCheck func(ctx context.Context) error

// Config tunes a Loop.
type Config struct {
	Interval time.Duration
	Peer     PeerCheck
	Clock    clock.Clock
}

// Loop is the heartbeat. It implements suture.Service.
type Loop struct {
	rec      Reconciler
	cfg      Config
	inFlight atomic.Bool
	ticks    atomic.Int64
	skipped  atomic.Int64
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

// New creates a heartbeat loop.
func New(rec Reconciler, cfg Config) *Loop {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Loop{rec: rec, cfg: cfg, logger: logging.WithComponent("heartbeat")}
}

// Serve ticks until ctx is cancelled and joins the last tick before
// returning.
func (l *Loop) Serve(ctx context.Context) error {
	t := l.cfg.Clock.NewTicker(l.cfg.Interval)
	defer t.Stop()
	defer l.wg.Wait()

	l.logger.Info().Dur("interval", l.cfg.Interval).Msg("heartbeat started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	if !l.inFlight.CompareAndSwap(false, true) {
		l.skipped.Add(1)
		metrics.RecordHeartbeat(true)
		l.logger.Debug().Msg("previous heartbeat still running, tick skipped")
		return
	}
	l.ticks.Add(1)
	metrics.RecordHeartbeat(false)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.inFlight.Store(false)

		if ctx.Err() != nil {
			return
		}
		l.rec.Reconcile(ctx, engine.ReasonHeartbeat)

		if l.cfg.Peer == nil || ctx.Err() != nil {
			return
		}
		if err := l.cfg.Peer(ctx); err != nil {
			l.logger.Warn().Err(err).Msg("watchdog peer check failed")
		}
	}()
}

// Ticks returns the number of ticks that ran.
func (l *Loop) Ticks() int64 { return l.ticks.Load() }

// Skipped returns the number of ticks dropped because one was in flight.
func (l *Loop) Skipped() int64 { return l.skipped.Load() }

func (l *Loop) String() string { return "heartbeat" }
