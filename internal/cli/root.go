// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package cli provides the Cobra command tree of the warden binary.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/logging"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// app carries the global flags to every subcommand.
type app struct {
	configPath string
	jsonOut    bool
	build      BuildInfo
}

// NewRootCmd creates the root command.
func NewRootCmd(build BuildInfo) *cobra.Command {
	a := &app{build: build}

	root := &cobra.Command{
		Use:   "warden",
		Short: "Keep-alive supervision for the OpenList server",
		Long: `warden - keep-alive supervision for the OpenList server

The serve process owns the OpenList server and reconciles it from a heartbeat,
connectivity changes, settings changes and durable periodic jobs. The watchdog
process and the serve process relaunch each other. Every other subcommand talks
to serve over its control socket and falls back to local state when serve is
down.`,
		Version:       build.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetVersionTemplate(versionLine(build) + "\n")

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"config file (default: $"+config.ConfigPathEnvVar+" or the first of "+defaultPathsHint()+")")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print machine-readable JSON")

	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		a.newServeCmd(),
		a.newWatchdogCmd(),
		a.newJobsCmd(),
		a.newStatusCmd(),
		a.newStartCmd(),
		a.newStopCmd(),
		a.newReconcileCmd(),
		a.newTriggerCmd(),
		a.newLogsCmd(),
		a.newEventsCmd(),
		a.newPolicyCmd(),
		a.newVersionCmd(),
	)
	return root
}

// Execute runs the command tree with the given output writers.
func Execute(build BuildInfo, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd(build)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

// load reads the configuration and initializes logging for role.
func (a *app) load(role string) (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Process:   role,
		Output:    os.Stderr,
	})
	return cfg, nil
}

func defaultPathsHint() string {
	if len(config.DefaultConfigPaths) == 0 {
		return "none"
	}
	return config.DefaultConfigPaths[0] + ", ..."
}
