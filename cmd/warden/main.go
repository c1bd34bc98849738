// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package main is the entry point of the warden binary.
//
// Warden keeps one OpenList server alive under a best-effort model where any
// process may die at any time. The same binary runs every role:
//
//	warden serve            main process: owns the server, control socket, heartbeat
//	warden watchdog         companion process: relaunches serve, stamps liveness
//	warden jobs run         durable periodic jobs, for cron or a systemd timer
//	warden trigger boot     OS events: boot, package-updated, wake
//	warden start|stop       user actions, honoured across processes
//	warden policy on|off    the auto-start policy
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (WARDEN_<SECTION>_<KEY>, e.g. WARDEN_SUPERVISION_HEARTBEAT_INTERVAL)
//   - Config file (--config, $WARDEN_CONFIG, ./warden.yaml or /etc/warden/config.yaml)
//   - Built-in defaults
//
// # Build Tags
//
//	go build -tags "nats" ./cmd/warden      # Publish status events to NATS
package main

import (
	"fmt"
	"os"

	"github.com/tomtom215/warden/internal/cli"
)

// Set by -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=...".
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	build := cli.BuildInfo{Version: version, Commit: commit, BuildDate: buildDate}
	if err := cli.Execute(build, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "warden:", err)
		os.Exit(1)
	}
}
