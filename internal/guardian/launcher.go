// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package guardian

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/warden/internal/daemon"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// ErrThrottled is returned when a relaunch exceeds the rate limit.
var ErrThrottled = errors.New("relaunch throttled")

// Launcher starts a warden process of the given role, detached from the caller.
type Launcher interface {
	Launch(ctx context.Context, role Role) error
}

// DaemonLauncher spawns the warden binary with daemon.Spawn. Output of the
// spawned process goes to <LogDir>/<role>.log.
type DaemonLauncher struct {
	Executable string
	ConfigFile string
	LogDir     string
	Env        []string
}

// Launch implements Launcher.
func (l *DaemonLauncher) Launch(_ context.Context, role Role) error {
	args := []string{string(role)}
	if l.ConfigFile != "" {
		args = append(args, "--config", l.ConfigFile)
	}
	cfg := daemon.SpawnConfig{Executable: l.Executable, Args: args, Env: l.Env}
	if l.LogDir != "" {
		cfg.LogFile = filepath.Join(l.LogDir, string(role)+".log")
	}

	pid, err := daemon.Spawn(cfg)
	if err != nil {
		return fmt.Errorf("launch %s: %w", role, err)
	}
	logging.Info().Str("role", string(role)).Int("pid", pid).Msg("launched warden process")
	return nil
}

// Throttled rate-limits launches per role.
type Throttled struct {
	next  Launcher
	every time.Duration
	burst int

	mu       sync.Mutex
	limiters map[Role]*rate.Limiter
}

// NewThrottled allows burst launches per role, refilling one every interval.
func NewThrottled(next Launcher, every time.Duration, burst int) *Throttled {
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{next: next, every: every, burst: burst, limiters: make(map[Role]*rate.Limiter)}
}

// Launch implements Launcher.
func (t *Throttled) Launch(ctx context.Context, role Role) error {
	if !t.limiter(role).Allow() {
		return fmt.Errorf("%s: %w", role, ErrThrottled)
	}
	err := t.next.Launch(ctx, role)
	metrics.RecordRelaunch(string(role), err)
	return err
}

func (t *Throttled) limiter(role Role) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[role]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.every), t.burst)
		t.limiters[role] = l
	}
	return l
}
