// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package guardian keeps the two warden processes alive for each other.
//
// The watchdog process runs a Watchdog: every tick it stamps its liveness
// file and makes sure the main (serve) process exists, launching it when it
// is missing and asking it to reconcile when it is present. The main process
// runs a Keeper from its heartbeat that does the reverse for the watchdog.
// Neither process ever relaunches itself.
package guardian

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/clock"
	"github.com/tomtom215/warden/internal/control"
	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/proctable"
)

// Role is a warden process kind; its value is the CLI subcommand.
type Role string

const (
	RoleServe    Role = "serve"
	RoleWatchdog Role = "watchdog"
)

// Result of one guardian check.
type Result string

const (
	ResultHealthy    Result = "healthy"
	ResultPolicyNoOp Result = "policy_noop"
	ResultRPC        Result = "rpc"
	ResultRelaunched Result = "relaunched"
	ResultTerminated Result = "terminated"
	ResultThrottled  Result = "throttled"
	ResultError      Result = "error"
)

// ProcessInspector is satisfied by *proctable.Inspector.
type ProcessInspector interface {
	Lookup(ctx context.Context, m proctable.Match) (proctable.Proc, bool, error)
}

// MainClient is satisfied by *control.Client.
type MainClient interface {
	Reconcile(ctx context.Context, reason engine.Reason) (control.ReconcileResult, error)
}

// FlagReader is satisfied by *settings.Store.
type FlagReader interface {
	AutoStart() bool
	ManualOverride() bool
}

// ProcessMatch describes the warden process of role. exe may be empty, in
// which case any executable name matches.
func ProcessMatch(role Role, pidFile, exe string) proctable.Match {
	m := proctable.Match{PIDFile: pidFile, Args: []string{string(role)}}
	if exe != "" {
		m.Names = []string{filepath.Base(exe)}
	}
	return m
}

// Guardian ensures the main process from any other process.
type Guardian struct {
	inspector ProcessInspector
	launcher  Launcher
	client    MainClient
	flags     FlagReader
	main      proctable.Match
	logger    zerolog.Logger
}

// New creates a guardian for the main process described by main.
func New(inspector ProcessInspector, launcher Launcher, client MainClient, flags FlagReader, main proctable.Match) *Guardian {
	return &Guardian{
		inspector: inspector,
		launcher:  launcher,
		client:    client,
		flags:     flags,
		main:      main,
		logger:    logging.WithComponent("guardian"),
	}
}

// EnsureMain applies the policy gates, then launches the main process when
// it is missing or asks it to reconcile with ReasonProcessCheck when it is
// present. A non-nil error is a plausibly transient failure.
func (g *Guardian) EnsureMain(ctx context.Context) (Result, error) {
	return g.EnsureMainFor(ctx, engine.ReasonProcessCheck)
}

// EnsureMainFor is EnsureMain with the reason the main process reconciles
// with, e.g. ReasonScheduledFallback from a periodic job.
func (g *Guardian) EnsureMainFor(ctx context.Context, reason engine.Reason) (Result, error) {
	res, err := g.ensureMain(ctx, reason)
	metrics.RecordGuardianCheck(string(res))
	return res, err
}

func (g *Guardian) ensureMain(ctx context.Context, reason engine.Reason) (Result, error) {
	if !g.flags.AutoStart() || g.flags.ManualOverride() {
		g.logger.Debug().Msg("auto-start disabled or manual override set, nothing to do")
		return ResultPolicyNoOp, nil
	}

	proc, found, err := g.inspector.Lookup(ctx, g.main)
	if err != nil {
		return ResultError, fmt.Errorf("inspect main process: %w", err)
	}
	if !found {
		g.logger.Info().Msg("main process not running, launching")
		if err := g.launcher.Launch(ctx, RoleServe); err != nil {
			if errors.Is(err, ErrThrottled) {
				return ResultThrottled, err
			}
			return ResultError, err
		}
		return ResultRelaunched, nil
	}

	out, err := g.client.Reconcile(ctx, reason)
	if err != nil {
		g.logger.Warn().Err(err).Int32("pid", proc.PID).Msg("main process did not answer")
		return ResultError, fmt.Errorf("reconcile main process %d: %w", proc.PID, err)
	}
	g.logger.Debug().Str("outcome", string(out.Outcome)).Bool("running", out.Running).Msg("main process reconciled")
	return ResultRPC, nil
}

// Watchdog is the watchdog process's loop. It implements suture.Service.
type Watchdog struct {
	guardian  *Guardian
	stampPath string
	interval  time.Duration
	clock     clock.Clock
	logger    zerolog.Logger
}

// NewWatchdog creates the loop. The first check runs immediately.
func NewWatchdog(g *Guardian, stampPath string, interval time.Duration, clk clock.Clock) *Watchdog {
	if clk == nil {
		clk = clock.Real{}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watchdog{
		guardian:  g,
		stampPath: stampPath,
		interval:  interval,
		clock:     clk,
		logger:    logging.WithComponent("watchdog"),
	}
}

// Serve checks every interval until ctx is cancelled.
func (w *Watchdog) Serve(ctx context.Context) error {
	t := w.clock.NewTicker(w.interval)
	defer t.Stop()

	w.logger.Info().Dur("interval", w.interval).Msg("watchdog started")
	w.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
			w.check(ctx)
		}
	}
}

func (w *Watchdog) check(ctx context.Context) {
	if err := WriteStamp(w.stampPath, Stamp{PID: os.Getpid(), At: w.clock.Now()}); err != nil {
		w.logger.Warn().Err(err).Msg("failed to write liveness stamp")
	}
	if ctx.Err() != nil {
		return
	}
	if res, err := w.guardian.EnsureMain(ctx); err != nil {
		w.logger.Warn().Err(err).Str("result", string(res)).Msg("main process check failed")
	}
}

func (w *Watchdog) String() string { return "watchdog" }

// Keeper ensures the watchdog process. The main process runs it as the
// heartbeat's peer check; scheduled jobs run it from any process.
type Keeper struct {
	Inspector  ProcessInspector
	Launcher   Launcher
	Flags      FlagReader
	Match      proctable.Match
	StampPath  string
	StaleAfter time.Duration
	Clock      clock.Clock

	// Terminate stops a hung watchdog. Defaults to SIGTERM.
	Terminate func(pid int32) error
}

// EnsureWatchdog launches a missing watchdog and terminates one whose
// liveness stamp went stale so the next check relaunches it.
func (k *Keeper) EnsureWatchdog(ctx context.Context) error {
	res, err := k.ensure(ctx)
	metrics.RecordGuardianCheck(string(res))
	return err
}

func (k *Keeper) ensure(ctx context.Context) (Result, error) {
	if !k.Flags.AutoStart() {
		return ResultPolicyNoOp, nil
	}
	clk := k.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	proc, found, err := k.Inspector.Lookup(ctx, k.Match)
	if err != nil {
		return ResultError, fmt.Errorf("inspect watchdog process: %w", err)
	}
	if !found {
		logging.Info().Str("component", "guardian").Msg("watchdog not running, launching")
		if err := k.Launcher.Launch(ctx, RoleWatchdog); err != nil {
			if errors.Is(err, ErrThrottled) {
				return ResultThrottled, err
			}
			return ResultError, err
		}
		return ResultRelaunched, nil
	}

	now := clk.Now()
	stamp, err := ReadStamp(k.StampPath)
	if err != nil && !errors.Is(err, ErrNoStamp) {
		return ResultError, err
	}
	if err == nil && stamp.PID == int(proc.PID) {
		if stamp.Age(now) < k.StaleAfter {
			return ResultHealthy, nil
		}
	} else if proc.Started.IsZero() || now.Sub(proc.Started) < k.StaleAfter {
		// A watchdog that just started has not stamped yet; a stamp from
		// another pid belongs to an earlier watchdog.
		return ResultHealthy, nil
	}

	logging.Warn().Str("component", "guardian").Int32("pid", proc.PID).
		Time("stamp", stamp.At).Msg("watchdog liveness stamp stale, terminating")
	terminate := k.Terminate
	if terminate == nil {
		terminate = terminateProcess
	}
	if err := terminate(proc.PID); err != nil {
		return ResultError, fmt.Errorf("terminate watchdog %d: %w", proc.PID, err)
	}
	return ResultTerminated, nil
}
