// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionLine(b BuildInfo) string {
	return fmt.Sprintf("warden %s (commit %s, built %s, %s)", b.Version, b.Commit, b.BuildDate, runtime.Version())
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version":    a.build.Version,
					"commit":     a.build.Commit,
					"build_date": a.build.BuildDate,
					"go":         runtime.Version(),
				})
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), versionLine(a.build))
			return err
		},
	}
}
