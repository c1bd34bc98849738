// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package supervisor runs the long-lived goroutines of the serve process under
a suture v4 tree.

# Overview

Services are grouped into three layers so a crash in one does not restart
the others:

	RootSupervisor ("warden")
	├── SupervisionSupervisor ("supervision-layer")
	│   ├── ChildService (managed OpenList process)
	│   ├── heartbeat.Loop
	│   ├── netwatch.Observer (if network.enabled)
	│   ├── guardian keeper (if guardian.enabled)
	│   ├── settings.Watcher (if supervision.watch_settings)
	│   └── scheduler.Runner (if scheduler.enabled)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket.Hub
	│   └── events.Publisher (if events.nats_enabled, build tag: nats)
	└── ControlSupervisor ("control-layer")
	    └── HTTPServerService (unix-socket control API)

Supervisor events (service failures, backoff, restarts) are logged through
sutureslog into the zerolog-backed slog handler from internal/logging.

# Usage Example

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	if err != nil {
	    return err
	}
	tree.AddSupervisionService(heartbeatLoop)
	tree.AddMessagingService(hub)
	tree.AddControlService(apiService)
	return tree.Serve(ctx)

Services return ctx.Err() on normal shutdown. Returning any other error
causes a restart with suture's backoff; returning suture.ErrDoNotRestart
retires the service.
*/
package supervisor
