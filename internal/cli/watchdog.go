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
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/daemon"
	"github.com/tomtom215/warden/internal/guardian"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/settings"
	"github.com/tomtom215/warden/internal/supervisor"
)

func (a *app) newWatchdogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watchdog",
		Short: "Run the companion watchdog process",
		Long: `Run the companion watchdog process. Every guardian interval it stamps its
liveness file, launches the serve process when it is missing and otherwise
asks it to reconcile over the control socket.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load(string(guardian.RoleWatchdog))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatchdog(ctx, cfg)
		},
	}
}

func runWatchdog(ctx context.Context, cfg *config.Config) error {
	lock := daemon.NewSingleton(string(guardian.RoleWatchdog), cfg.StatePath(config.WatchdogLockName), cfg.StatePath(config.WatchdogPIDName))
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			logging.Info().Msg("watchdog already running, exiting")
			return nil
		}
		return err
	}
	defer func() { _ = lock.Release() }()

	flags, err := settings.Open(cfg.Settings.Path, string(guardian.RoleWatchdog))
	if err != nil {
		return err
	}

	g := newGuardian(cfg, flags, newClient(cfg), newLauncher(cfg))

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddSupervisionService(guardian.NewWatchdog(g, cfg.StatePath(config.LivenessName), cfg.Guardian.Interval, nil))

	logging.Info().Str("state_dir", cfg.Runtime.StateDir).Msg("starting watchdog process")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("watchdog process stopped")
	return nil
}
