// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/control"
	"github.com/tomtom215/warden/internal/daemon"
	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/guardian"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/proctable"
	"github.com/tomtom215/warden/internal/scheduler"
)

// executable is the warden binary that relaunches spawn.
func executable(cfg *config.Config) string {
	if cfg.Runtime.Executable != "" {
		return cfg.Runtime.Executable
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return exe
}

func newLauncher(cfg *config.Config) guardian.Launcher {
	return guardian.NewThrottled(&guardian.DaemonLauncher{
		Executable: executable(cfg),
		ConfigFile: cfg.Runtime.ConfigFile,
		LogDir:     cfg.Runtime.StateDir,
	}, cfg.Guardian.RelaunchEvery, cfg.Guardian.RelaunchBurst)
}

func newClient(cfg *config.Config) *control.Client {
	return control.NewClient(control.ClientConfig{
		Socket:          cfg.Control.Socket,
		Timeout:         cfg.Guardian.RPCTimeout,
		BreakerFailures: cfg.Guardian.BreakerFailures,
		BreakerTimeout:  cfg.Guardian.BreakerTimeout,
	})
}

func serveMatch(cfg *config.Config) proctable.Match {
	return guardian.ProcessMatch(guardian.RoleServe, cfg.StatePath(config.ServePIDName), executable(cfg))
}

func watchdogMatch(cfg *config.Config) proctable.Match {
	return guardian.ProcessMatch(guardian.RoleWatchdog, cfg.StatePath(config.WatchdogPIDName), executable(cfg))
}

func newGuardian(cfg *config.Config, flags guardian.FlagReader, client guardian.MainClient, launcher guardian.Launcher) *guardian.Guardian {
	return guardian.New(proctable.New(), launcher, client, flags, serveMatch(cfg))
}

func newKeeper(cfg *config.Config, flags guardian.FlagReader, launcher guardian.Launcher) *guardian.Keeper {
	return &guardian.Keeper{
		Inspector:  proctable.New(),
		Launcher:   launcher,
		Flags:      flags,
		Match:      watchdogMatch(cfg),
		StampPath:  cfg.StatePath(config.LivenessName),
		StaleAfter: cfg.Guardian.StaleAfter,
	}
}

// newScheduler wires the two periodic jobs. keep-alive ensures the service
// and, with the guardian enabled, the watchdog; service-check ensures the
// service only.
func newScheduler(cfg *config.Config, store *scheduler.Store, ensureService, ensureWatchdog scheduler.Check) (*scheduler.Scheduler, error) {
	bo, err := scheduler.NewBackOffFactory(cfg.Scheduler.Backoff, cfg.Scheduler.MinBackoff, cfg.Scheduler.MaxBackoff)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(store, scheduler.Config{BackOff: bo, JobTimeout: cfg.Scheduler.JobTimeout})

	keepAlive := []scheduler.Check{ensureService}
	if cfg.Guardian.Enabled && ensureWatchdog != nil {
		keepAlive = append(keepAlive, ensureWatchdog)
	}
	sched.Handle(scheduler.JobKeepAlive, scheduler.Checks(keepAlive...))
	sched.Handle(scheduler.JobServiceCheck, scheduler.Checks(ensureService))
	return sched, nil
}

// ownJobs takes the jobs lock and opens the job store. ok is false when
// another warden process holds the lock.
func ownJobs(cfg *config.Config) (store *scheduler.Store, release func(), ok bool, err error) {
	lock := daemon.NewSingleton("jobs", cfg.StatePath(config.JobsLockName), "")
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}
	store, err = scheduler.Open(cfg.Scheduler.Dir)
	if err != nil {
		_ = lock.Release()
		return nil, nil, false, err
	}
	release = func() {
		if err := store.Close(); err != nil {
			logging.Warn().Err(err).Msg("closing job store")
		}
		_ = lock.Release()
	}
	return store, release, true, nil
}

// guardianCheck adapts EnsureMain to a scheduler check. The main process
// reconciles with ReasonScheduledFallback.
func guardianCheck(g *guardian.Guardian) scheduler.Check {
	return func(ctx context.Context) error {
		_, err := g.EnsureMainFor(ctx, engine.ReasonScheduledFallback)
		return err
	}
}

func printJSON(w io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}
