// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/control"
	"github.com/tomtom215/warden/internal/daemon"
	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/events"
	"github.com/tomtom215/warden/internal/guardian"
	"github.com/tomtom215/warden/internal/heartbeat"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/managed"
	"github.com/tomtom215/warden/internal/netwatch"
	"github.com/tomtom215/warden/internal/scheduler"
	"github.com/tomtom215/warden/internal/settings"
	"github.com/tomtom215/warden/internal/supervisor"
	"github.com/tomtom215/warden/internal/supervisor/services"
	"github.com/tomtom215/warden/internal/websocket"
)

// controlShutdownTimeout bounds draining the control API on exit.
const controlShutdownTimeout = 10 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the main supervision process",
		Long: `Run the main supervision process. It owns the OpenList server, serves the
control API on a unix socket and keeps the watchdog process alive. A second
serve for the same state directory exits immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load(string(guardian.RoleServe))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

// runServe runs the serve process until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config) error {
	lock := daemon.NewSingleton(string(guardian.RoleServe), cfg.StatePath(config.ServeLockName), cfg.StatePath(config.ServePIDName))
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			logging.Info().Msg("serve process already running, exiting")
			return nil
		}
		return err
	}
	defer func() { _ = lock.Release() }()

	flags, err := settings.Open(cfg.Settings.Path, string(guardian.RoleServe))
	if err != nil {
		return err
	}

	svc := managed.New(managed.Config{
		Command:        cfg.Service.Command,
		WorkDir:        cfg.Service.WorkDir,
		DataDir:        cfg.Service.DataDir,
		Env:            cfg.Service.Env,
		PIDFile:        cfg.StatePath(config.ServicePIDName),
		PreStartDelay:  cfg.Service.PreStartDelay,
		VerifyDelay:    cfg.Service.VerifyDelay,
		PreStopCommand: cfg.Service.PreStopCommand,
		PreStopTimeout: cfg.Service.PreStopTimeout,
		SyncCommand:    cfg.Service.SyncCommand,
		LogLines:       cfg.Service.LogBufferLines,
	})

	bus := engine.NewBroadcaster()
	eng := engine.New(svc, flags, bus, engine.Config{
		StartSettleDelay: cfg.Supervision.StartSettleDelay,
		ShutdownTimeout:  cfg.Supervision.ShutdownTimeout,
		PreStop:          svc.RunPreStop,
	})
	svc.OnShutdown("engine", eng.HandleExit)

	if adopted, err := svc.Adopt(ctx); err != nil {
		logging.Warn().Err(err).Msg("could not inspect a previous server process")
	} else if adopted {
		logging.Info().Int("pid", svc.Status().PID).Msg("adopted running OpenList server")
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	// === Supervision layer ===
	launcher := newLauncher(cfg)
	hb := heartbeat.Config{Interval: cfg.Supervision.HeartbeatInterval}
	var keeper *guardian.Keeper
	if cfg.Guardian.Enabled {
		keeper = newKeeper(cfg, flags, launcher)
		hb.Peer = keeper.EnsureWatchdog
	}
	tree.AddSupervisionService(heartbeat.New(eng, hb))

	var network func() string
	if cfg.Network.Enabled {
		src, err := netwatch.NewSource(cfg.Network)
		if err != nil {
			return fmt.Errorf("connectivity source: %w", err)
		}
		obs := netwatch.NewObserver(eng, src, cfg.Network.SettleDelay, nil)
		tree.AddSupervisionService(obs)
		network = func() string { return obs.State().String() }
	}

	if cfg.Supervision.WatchSettings {
		tree.AddSupervisionService(settings.NewWatcher(flags, func(prev, next settings.Flags) {
			if next.AutoStart && !next.ManualOverride && (!prev.AutoStart || prev.ManualOverride) {
				logging.Info().Msg("settings now allow the server to run, reconciling")
				eng.Reconcile(ctx, engine.ReasonUserAction)
			}
		}))
	}

	var jobs control.JobTable
	if cfg.Scheduler.Enabled {
		ensureService := func(ctx context.Context) error {
			if out := eng.Reconcile(ctx, engine.ReasonScheduledFallback); out.Failed() {
				return fmt.Errorf("scheduled reconcile: %s", out)
			}
			return nil
		}
		var ensureWatchdog scheduler.Check
		if keeper != nil {
			ensureWatchdog = keeper.EnsureWatchdog
		}
		host := &jobHost{cfg: cfg, ensureService: ensureService, ensureWatchdog: ensureWatchdog}
		tree.AddSupervisionService(host)
		jobs = host
	}

	if cfg.Service.SyncInterval > 0 && svc.HasSync() {
		tree.AddSupervisionService(managed.NewSyncLoop(svc, cfg.Service.SyncInterval, nil))
	}

	tree.AddSupervisionService(services.NewChildService(svc, cfg.Supervision.ShutdownTimeout))

	// === Messaging layer ===
	hub := websocket.NewHub(func() any { return eng.Snapshot() })
	bus.Subscribe("websocket", hub.BroadcastStatus)
	tree.AddMessagingService(hub)

	if cfg.Events.NATSEnabled {
		pub, err := events.NewPublisher(cfg.Events)
		if err != nil {
			logging.Warn().Err(err).Msg("status events to NATS disabled")
		} else {
			bus.Subscribe("nats", pub.Listener())
			tree.AddMessagingService(pub)
		}
	}

	// === Control layer ===
	router := control.NewRouter(control.Deps{
		Engine:       eng,
		Service:      svc,
		Hub:          hub,
		Jobs:         jobs,
		Network:      network,
		LocalAddress: managed.LocalAddress,
		RateLimit:    cfg.Control.RateLimit,
		RateWindow:   cfg.Control.RateWindow,
		Started:      time.Now(),
	})
	tree.AddControlService(control.NewService(cfg.Control, router, controlShutdownTimeout))

	if path := cfg.Runtime.ConfigFile; path != "" {
		if err := config.WatchConfigFile(path, func() { reloadLogLevel(path) }); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("config file watch unavailable")
		}
	}

	logging.Info().Str("socket", cfg.Control.Socket).Str("state_dir", cfg.Runtime.StateDir).Msg("starting serve process")
	errCh := tree.ServeBackground(ctx)
	go eng.Reconcile(ctx, engine.ReasonProcessCheck)

	var result error
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
			result = err
		}
	}
	eng.Wait()

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, u := range unstopped {
			logging.Warn().Str("service", u.Name).Msg("service failed to stop within timeout")
		}
	}
	logging.Info().Msg("serve process stopped")
	return result
}

// reloadLogLevel applies a changed logging.level. Every other setting takes
// effect on the next start.
func reloadLogLevel(path string) {
	next, err := config.Load(path)
	if err != nil {
		logging.Warn().Err(err).Msg("changed config file is invalid, keeping the running configuration")
		return
	}
	logging.SetLevelString(next.Logging.Level)
	logging.Info().Str("level", next.Logging.Level).Msg("config file changed, log level applied; restart to apply other settings")
}

var errJobsElsewhere = errors.New("job store is held by another warden process")

// jobHost owns the durable job store for the lifetime of the serve process,
// waiting for a concurrent `warden jobs run` to release it. It implements
// suture.Service and control.JobTable.
type jobHost struct {
	cfg            *config.Config
	ensureService  scheduler.Check
	ensureWatchdog scheduler.Check

	current atomic.Pointer[scheduler.Scheduler]
}

func (h *jobHost) Serve(ctx context.Context) error {
	store, release, err := h.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	sched, err := newScheduler(h.cfg, store, h.ensureService, h.ensureWatchdog)
	if err != nil {
		return err
	}
	if _, err := sched.Register(scheduler.Specs(h.cfg.Scheduler)...); err != nil {
		logging.Warn().Err(err).Msg("periodic job registration failed")
	}
	h.current.Store(sched)
	defer h.current.Store(nil)

	return scheduler.NewRunner(sched, h.cfg.Scheduler.PollInterval).Serve(ctx)
}

func (h *jobHost) acquire(ctx context.Context) (*scheduler.Store, func(), error) {
	for {
		store, release, ok, err := ownJobs(h.cfg)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			return store, release, nil
		}
		logging.Debug().Msg("job store busy, retrying")
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(h.cfg.Scheduler.PollInterval):
		}
	}
}

func (h *jobHost) List() ([]scheduler.Job, error) {
	sched := h.current.Load()
	if sched == nil {
		return nil, errJobsElsewhere
	}
	return sched.List()
}

func (h *jobHost) Cancel(name string) error {
	sched := h.current.Load()
	if sched == nil {
		return errJobsElsewhere
	}
	return sched.Cancel(name)
}

func (h *jobHost) String() string { return "job-host" }
