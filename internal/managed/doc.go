// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package managed runs the OpenList server as a child process and exposes
// the start, stop and status primitives the reconciliation engine drives.
//
// The child runs in its own process group and records its pid in a pid
// file. It is deliberately not tied to the serve process's lifetime: when
// serve dies and is relaunched by the watchdog, the new serve adopts the
// still-running server instead of starting a second copy.
//
// Start follows the server's startup sequence:
//
//  1. Create the data directory.
//  2. Return if already running; wait PreStartDelay and check again.
//  3. Launch, then require the child to survive VerifyDelay.
//
// RequestShutdown sends SIGTERM to the process group and SIGKILL once the
// timeout passes. Listeners registered with OnShutdown run whenever the
// child exits, whatever the cause.
package managed
