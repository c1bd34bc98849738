// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/settings"
)

func (a *app) newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show or change the auto-start policy",
		Long: `Show or change the auto-start policy. With auto-start on, warden starts the
server at boot and keeps it alive; the serve process picks changes up from the
settings file.`,
	}
	cmd.AddCommand(
		a.newPolicySetCmd("on", true),
		a.newPolicySetCmd("off", false),
		&cobra.Command{
			Use:   "show",
			Short: "Print the persisted flags",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := a.load("cli")
				if err != nil {
					return err
				}
				store, err := settings.Open(cfg.Settings.Path, "cli")
				if err != nil {
					return err
				}
				f, err := store.Load()
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(cmd.OutOrStdout(), f)
				}
				return printFlags(cmd.OutOrStdout(), f)
			},
		},
	)
	return cmd
}

func (a *app) newPolicySetCmd(use string, on bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Turn auto-start %s", use),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load("cli")
			if err != nil {
				return err
			}
			store, err := settings.Open(cfg.Settings.Path, "cli")
			if err != nil {
				return err
			}
			if err := store.SetAutoStart(on); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "auto-start %s\n", use)
			if !on {
				return nil
			}
			// Launch serve if it is down; a running serve reacts to the file change.
			res, err := newGuardian(cfg, store, newClient(cfg), newLauncher(cfg)).EnsureMain(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "serve: %s\n", res)
			return err
		},
	}
}

func printFlags(w io.Writer, f settings.Flags) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "auto-start\t%t\n", f.AutoStart)
	fmt.Fprintf(tw, "manual override\t%t\n", f.ManualOverride)
	if !f.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "updated\t%s by %s\n", f.UpdatedAt.Format(time.RFC3339), f.UpdatedBy)
	}
	return tw.Flush()
}
