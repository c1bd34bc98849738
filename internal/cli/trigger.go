// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/control"
	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/scheduler"
	"github.com/tomtom215/warden/internal/settings"
)

// triggers maps OS event names onto reconcile reasons. wake stands for
// screen-on, user-present and alarm events.
var triggers = map[string]engine.Reason{
	"boot":            engine.ReasonBoot,
	"package-updated": engine.ReasonPackageUpdate,
	"wake":            engine.ReasonProcessCheck,
}

func triggerNames() []string {
	names := make([]string, 0, len(triggers))
	for n := range triggers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (a *app) newTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <" + strings.Join(triggerNames(), "|") + ">",
		Short: "Deliver an OS-level event",
		Long: `Deliver an OS-level event, for example from a systemd unit or a package
manager hook.

  boot             clear the manual override (auto-start on), reconcile, ensure
                   the watchdog and register the periodic jobs
  package-updated  clear the manual override (auto-start on) and reconcile
  wake             make sure serve and the watchdog are running

When serve is down the event is applied locally and serve is launched.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: triggerNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, ok := triggers[args[0]]
			if !ok {
				return fmt.Errorf("unknown trigger %q (want one of %s)", args[0], strings.Join(triggerNames(), ", "))
			}
			cfg, err := a.load("cli")
			if err != nil {
				return err
			}
			return runTrigger(cmd.Context(), cfg, reason, cmd.OutOrStdout())
		},
	}
}

func runTrigger(ctx context.Context, cfg *config.Config, reason engine.Reason, out io.Writer) error {
	flags, err := settings.Open(cfg.Settings.Path, "cli")
	if err != nil {
		return err
	}
	client := newClient(cfg)
	launcher := newLauncher(cfg)

	res, err := client.Trigger(ctx, reason)
	switch {
	case err == nil:
		if err := printResult(out, res); err != nil {
			return err
		}
	case control.IsUnavailable(err):
		clears := reason == engine.ReasonBoot || reason == engine.ReasonPackageUpdate
		if clears && flags.AutoStart() && flags.ManualOverride() {
			if err := flags.SetManualOverride(false); err != nil {
				return err
			}
		}
		gres, err := newGuardian(cfg, flags, client, launcher).EnsureMain(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: serve not answering: %s\n", reason, gres)
	default:
		return err
	}

	if reason == engine.ReasonBoot && cfg.Scheduler.Enabled {
		registerJobs(cfg, out)
	}
	if reason != engine.ReasonPackageUpdate && cfg.Guardian.Enabled {
		if err := newKeeper(cfg, flags, launcher).EnsureWatchdog(ctx); err != nil {
			logging.Warn().Err(err).Msg("watchdog check failed")
		}
	}
	return nil
}

// registerJobs registers the periodic jobs unless serve holds the store, in
// which case it has registered them already.
func registerJobs(cfg *config.Config, out io.Writer) {
	store, release, ok, err := ownJobs(cfg)
	if err != nil {
		logging.Warn().Err(err).Msg("job store unavailable, periodic jobs not registered")
		return
	}
	if !ok {
		return
	}
	defer release()
	created, err := scheduler.New(store, scheduler.Config{}).Register(scheduler.Specs(cfg.Scheduler)...)
	if err != nil {
		logging.Warn().Err(err).Msg("periodic job registration failed")
		return
	}
	if created > 0 {
		fmt.Fprintf(out, "registered %d periodic job(s)\n", created)
	}
}
