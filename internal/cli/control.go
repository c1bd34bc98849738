// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/control"
	"github.com/tomtom215/warden/internal/daemon"
	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/proctable"
	"github.com/tomtom215/warden/internal/settings"
)

// localStatus is reported when the serve process does not answer.
type localStatus struct {
	Serve          bool   `json:"serve_running"`
	Watchdog       bool   `json:"watchdog_running"`
	ServerPID      int    `json:"server_pid,omitempty"`
	AutoStart      bool   `json:"auto_start"`
	ManualOverride bool   `json:"manual_override"`
	Error          string `json:"error"`
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show supervision and server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load("cli")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rep, err := newClient(cfg).Status(cmd.Context())
			if err == nil {
				if a.jsonOut {
					return printJSON(out, rep)
				}
				return printStatus(out, rep)
			}
			if !control.IsUnavailable(err) {
				return err
			}
			st, lerr := readLocalStatus(cmd.Context(), cfg)
			if lerr != nil {
				return lerr
			}
			st.Error = err.Error()
			if a.jsonOut {
				return printJSON(out, st)
			}
			return printLocalStatus(out, st)
		},
	}
}

func readLocalStatus(ctx context.Context, cfg *config.Config) (localStatus, error) {
	var st localStatus
	flags, err := settings.Open(cfg.Settings.Path, "cli")
	if err != nil {
		return st, err
	}
	f, err := flags.Load()
	if err != nil {
		return st, err
	}
	st.AutoStart, st.ManualOverride = f.AutoStart, f.ManualOverride

	if st.Serve, err = daemon.Held(cfg.StatePath(config.ServeLockName)); err != nil {
		return st, err
	}
	if st.Watchdog, err = daemon.Held(cfg.StatePath(config.WatchdogLockName)); err != nil {
		return st, err
	}
	if pid, err := proctable.ReadPIDFile(cfg.StatePath(config.ServicePIDName)); err == nil && proctable.New().Alive(ctx, int32(pid)) {
		st.ServerPID = pid
	}
	return st, nil
}

func printStatus(w io.Writer, rep control.StatusReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "serve\trunning (pid %d, up %s)\n", rep.PID, rep.Uptime)
	fmt.Fprintf(tw, "server\t%s", rep.Service.State)
	if rep.Service.PID != 0 {
		fmt.Fprintf(tw, " (pid %d", rep.Service.PID)
		if rep.Service.Adopted {
			fmt.Fprint(tw, ", adopted")
		}
		fmt.Fprint(tw, ")")
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "auto-start\t%t\n", rep.Engine.AutoStart)
	fmt.Fprintf(tw, "manual override\t%t\n", rep.Engine.ManualOverride)
	if rep.Engine.LastOutcome != "" {
		fmt.Fprintf(tw, "last reconcile\t%s by %s at %s\n", rep.Engine.LastOutcome, rep.Engine.LastReason,
			rep.Engine.LastReconcile.Format("2006-01-02 15:04:05"))
	}
	if rep.Engine.LastError != "" {
		fmt.Fprintf(tw, "last error\t%s\n", rep.Engine.LastError)
	}
	if rep.Service.LastExit != "" {
		fmt.Fprintf(tw, "last exit\t%s\n", rep.Service.LastExit)
	}
	if rep.Network != "" {
		fmt.Fprintf(tw, "network\t%s\n", rep.Network)
	}
	if rep.LocalAddress != "" {
		fmt.Fprintf(tw, "local address\t%s\n", rep.LocalAddress)
	}
	return tw.Flush()
}

func printLocalStatus(w io.Writer, st localStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	serve := "not running"
	if st.Serve {
		serve = "running, not answering"
	}
	fmt.Fprintf(tw, "serve\t%s\n", serve)
	fmt.Fprintf(tw, "watchdog\t%s\n", runningWord(st.Watchdog))
	if st.ServerPID != 0 {
		fmt.Fprintf(tw, "server\trunning (pid %d, unsupervised)\n", st.ServerPID)
	} else {
		fmt.Fprintln(tw, "server\tnot running")
	}
	fmt.Fprintf(tw, "auto-start\t%t\n", st.AutoStart)
	fmt.Fprintf(tw, "manual override\t%t\n", st.ManualOverride)
	return tw.Flush()
}

func runningWord(b bool) string {
	if b {
		return "running"
	}
	return "not running"
}

func printResult(w io.Writer, res control.ReconcileResult) error {
	_, err := fmt.Fprintf(w, "%s: %s (running: %t)\n", res.Reason, res.Outcome, res.Running)
	return err
}

func (a *app) newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Clear the manual stop and start the server",
		Long: `Clear the manual override and reconcile. The auto-start policy still
applies. When serve is down the override is cleared locally and serve is
launched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load("cli")
			if err != nil {
				return err
			}
			ctx, out := cmd.Context(), cmd.OutOrStdout()
			client := newClient(cfg)
			res, err := client.Start(ctx)
			if err == nil {
				if a.jsonOut {
					return printJSON(out, res)
				}
				return printResult(out, res)
			}
			if !control.IsUnavailable(err) {
				return err
			}

			flags, err := settings.Open(cfg.Settings.Path, "cli")
			if err != nil {
				return err
			}
			if err := flags.SetManualOverride(false); err != nil {
				return err
			}
			g := newGuardian(cfg, flags, client, newLauncher(cfg))
			gres, err := g.EnsureMain(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "serve not answering, manual override cleared: %s\n", gres)
			return err
		},
	}
}

func (a *app) newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the server and keep it stopped",
		Long: `Save the manual override, then ask the serve process to stop the server.
No automatic signal restarts it until "warden start" or a boot or
package-update trigger. When serve is down only the override is saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load("cli")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			res, err := newClient(cfg).Stop(cmd.Context())
			if err == nil {
				if a.jsonOut {
					return printJSON(out, res)
				}
				_, err = fmt.Fprintf(out, "stopped (running: %t, manual override: %t)\n", res.Running, res.Override)
				return err
			}
			if !control.IsUnavailable(err) {
				return err
			}

			flags, err := settings.Open(cfg.Settings.Path, "cli")
			if err != nil {
				return err
			}
			if err := flags.SetManualOverride(true); err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, "serve not answering, manual override saved; the server will not be restarted")
			return err
		},
	}
}

func (a *app) newReconcileCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Ask the serve process for one reconcile pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := engine.ParseReason(reason)
			if err != nil {
				return err
			}
			cfg, err := a.load("cli")
			if err != nil {
				return err
			}
			res, err := newClient(cfg).Reconcile(cmd.Context(), r)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", string(engine.ReasonProcessCheck), "reconcile reason")
	return cmd
}

func (a *app) newLogsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent OpenList server output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load("cli")
			if err != nil {
				return err
			}
			got, err := newClient(cfg).Logs(cmd.Context(), lines)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), got)
			}
			for _, l := range got {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", l.At.Format("15:04:05.000"), l.Stream, l.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "number of lines (0 for the whole buffer)")
	return cmd
}

func (a *app) newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream status events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load("cli")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return newClient(cfg).Events(cmd.Context(), func(ev engine.StatusEvent) {
				if a.jsonOut {
					_ = printJSON(out, ev)
					return
				}
				line := fmt.Sprintf("%s %s %s running=%t", ev.At.Format("15:04:05"), ev.Reason, ev.Outcome, ev.Running)
				if ev.Error != "" {
					line += " error=" + ev.Error
				}
				fmt.Fprintln(out, line)
			})
		},
	}
}
