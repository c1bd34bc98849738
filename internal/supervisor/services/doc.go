// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package services provides suture.Service wrappers for warden components
whose lifecycle is not already a Serve(ctx) loop.

# Available Services

HTTP Server (HTTPServerService):
  - Binds its listener on every Serve, so a restart rebinds the socket
  - Converts the blocking Serve(listener) pattern to Serve(ctx)
  - Shuts down gracefully within a configurable timeout

Managed Child (ChildService):
  - Holds the managed server process for the lifetime of the tree
  - Stops a child this process launched when the tree shuts down

Components that already implement Serve(ctx) and String() (the heartbeat
loop, the network observer, the websocket hub, the job runner, the settings
watcher) are added to the tree directly.
*/
package services
