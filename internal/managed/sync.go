// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package managed

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/clock"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// Syncer is satisfied by *Service.
type Syncer interface {
	IsRunning() bool
	RunSync(ctx context.Context) error
}

// SyncLoop flushes the server's database every interval while the server
// runs. It implements suture.Service.
type SyncLoop struct {
	svc      Syncer
	interval time.Duration
	clk      clock.Clock
	runs     atomic.Int64
	logger   zerolog.Logger
}

// NewSyncLoop creates a sync loop. clk may be nil.
func NewSyncLoop(svc Syncer, interval time.Duration, clk clock.Clock) *SyncLoop {
	if clk == nil {
		clk = clock.Real{}
	}
	return &SyncLoop{svc: svc, interval: interval, clk: clk, logger: logging.WithComponent("db-sync")}
}

// Serve ticks until ctx is cancelled. A slow flush delays the next tick
// instead of overlapping it.
func (l *SyncLoop) Serve(ctx context.Context) error {
	t := l.clk.NewTicker(l.interval)
	defer t.Stop()

	l.logger.Info().Dur("interval", l.interval).Msg("database sync started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
			l.sync(ctx)
		}
	}
}

func (l *SyncLoop) sync(ctx context.Context) {
	if !l.svc.IsRunning() {
		return
	}
	err := l.svc.RunSync(ctx)
	l.runs.Add(1)
	metrics.RecordDBSync(err)
	if err != nil {
		l.logger.Warn().Err(err).Msg("database sync failed")
		return
	}
	l.logger.Debug().Msg("database synced")
}

// Runs returns the number of flushes attempted.
func (l *SyncLoop) Runs() int64 { return l.runs.Load() }

func (l *SyncLoop) String() string { return "db-sync" }
