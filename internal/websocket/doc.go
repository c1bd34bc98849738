// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package websocket streams supervision status events to connected clients.

The Hub owns the client set and runs as a suture service through
RunWithContext. The engine's Broadcaster feeds it through BroadcastStatus,
and every connected client receives:

	{"type": "snapshot", "data": {...}}   once, on connect
	{"type": "status",   "data": {...}}   for every StatusEvent

Clients may send {"type": "ping"} and get {"type": "pong"} back. A client
whose send buffer is full is dropped rather than slowing the hub down.

Selection in the hub loop is priority based: shutdown first, then client
lifecycle, then broadcasts, so a client registered before a broadcast is
guaranteed to receive it.
*/
package websocket
