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
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/control"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/scheduler"
	"github.com/tomtom215/warden/internal/settings"
)

func (a *app) newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage the durable periodic jobs",
		Long: `Manage the durable periodic jobs (keep-alive and service-check).

The job table lives in a badger store under the state directory and survives
reboots until cancelled. Point cron or a systemd timer at "warden jobs run" so
the jobs fire even when no warden process is alive.`,
	}
	cmd.AddCommand(a.newJobsRunCmd(), a.newJobsListCmd(), a.newJobsCancelCmd())
	return cmd
}

func (a *app) newJobsRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Register the jobs and run the ones that are due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load("jobs")
			if err != nil {
				return err
			}
			return runJobs(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

// runJobs executes due jobs once from a short-lived process. When the serve
// process holds the job store it runs them itself and this is a no-op.
func runJobs(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if !cfg.Scheduler.Enabled {
		_, err := fmt.Fprintln(out, "scheduler disabled")
		return err
	}
	store, release, ok, err := ownJobs(cfg)
	if err != nil {
		return err
	}
	if !ok {
		_, err := fmt.Fprintln(out, "jobs are run by the serve process")
		return err
	}
	defer release()

	flags, err := settings.Open(cfg.Settings.Path, "jobs")
	if err != nil {
		return err
	}
	launcher := newLauncher(cfg)
	g := newGuardian(cfg, flags, newClient(cfg), launcher)
	keeper := newKeeper(cfg, flags, launcher)

	sched, err := newScheduler(cfg, store, guardianCheck(g), keeper.EnsureWatchdog)
	if err != nil {
		return err
	}
	created, err := sched.Register(scheduler.Specs(cfg.Scheduler)...)
	if err != nil {
		return err
	}
	ran, err := sched.RunDue(ctx)
	if err != nil {
		return err
	}
	logging.Debug().Int("registered", created).Int("ran", ran).Msg("job pass finished")
	_, err = fmt.Fprintf(out, "registered %d, ran %d due job(s)\n", created, ran)
	return err
}

// jobTable is the local store or, when serve owns it, the control API.
type jobTable interface {
	List(ctx context.Context) ([]scheduler.Job, error)
	Cancel(ctx context.Context, name string) error
}

type localJobs struct{ sched *scheduler.Scheduler }

func (l localJobs) List(context.Context) ([]scheduler.Job, error) { return l.sched.List() }
func (l localJobs) Cancel(_ context.Context, name string) error { return l.sched.Cancel(name) }

type remoteJobs struct{ client *control.Client }

func (r remoteJobs) List(ctx context.Context) ([]scheduler.Job, error) { return r.client.Jobs(ctx) }
func (r remoteJobs) Cancel(ctx context.Context, name string) error {
	return r.client.CancelJob(ctx, name)
}

func withJobs(cfg *config.Config, fn func(jobTable) error) error {
	store, release, ok, err := ownJobs(cfg)
	if err != nil {
		return err
	}
	if !ok {
		return fn(remoteJobs{client: newClient(cfg)})
	}
	defer release()
	return fn(localJobs{sched: scheduler.New(store, scheduler.Config{})})
}

func (a *app) newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the periodic jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load("cli")
			if err != nil {
				return err
			}
			return withJobs(cfg, func(t jobTable) error {
				jobs, err := t.List(cmd.Context())
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), jobs)
				}
				return printJobs(cmd.OutOrStdout(), jobs, time.Now())
			})
		},
	}
}

func (a *app) newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job>",
		Short: "Cancel a periodic job",
		Long: `Cancel a periodic job. The next "warden jobs run", boot trigger or serve
start registers it again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load("cli")
			if err != nil {
				return err
			}
			return withJobs(cfg, func(t jobTable) error {
				if err := t.Cancel(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
				return err
			})
		},
	}
}

func printJobs(w io.Writer, jobs []scheduler.Job, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tINTERVAL\tNEXT RUN\tATTEMPTS\tLAST RESULT")
	for _, j := range jobs {
		next := "due"
		if d := j.NextRun.Sub(now); d > 0 {
			next = "in " + d.Round(time.Second).String()
		}
		last := string(j.LastResult)
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", j.Name, j.Interval, next, j.Attempts, last)
	}
	return tw.Flush()
}
