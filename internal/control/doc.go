// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package control is the local HTTP API of the serve process, served on a unix
socket, and the client every other warden process uses to reach it.

Routes:

	GET  /healthz                      liveness of the serve process
	GET  /api/v1/status                engine snapshot, server status, local address
	POST /api/v1/reconcile?reason=R    one Reconcile pass with reason R
	POST /api/v1/trigger?reason=R      an OS-level trigger (boot, package-update, ...)
	POST /api/v1/start                 user start: clears the manual override
	POST /api/v1/stop                  user stop: sets the manual override, then stops
	GET  /api/v1/logs?lines=N          recent server output
	GET  /api/v1/events                websocket stream of status events
	GET  /api/v1/jobs                  periodic jobs, when serve owns the job store
	DELETE /api/v1/jobs/{name}         cancel a periodic job
	GET  /metrics                      Prometheus metrics

Every JSON response uses the Response envelope. The client wraps calls in a
circuit breaker so a wedged serve process costs the watchdog one timeout per
breaker window instead of one per tick.
*/
package control
