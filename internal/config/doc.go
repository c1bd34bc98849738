// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package config loads warden configuration with Koanf v2.
//
// Sources are layered defaults, then an optional YAML file, then WARDEN_*
// environment variables. Every supervision delay (start settle, post-start
// verify, network settle, poll error backoff, shutdown timeout) is a tunable
// here rather than a constant in the package that uses it.
//
// # Example
//
//	service:
//	  command: ["/opt/openlist/openlist", "server", "--data", "/srv/openlist"]
//	  data_dir: /srv/openlist
//	supervision:
//	  heartbeat_interval: 30s
//	scheduler:
//	  backoff: exponential
//
// Environment overrides follow the section names:
//
//	WARDEN_SUPERVISION_HEARTBEAT_INTERVAL=15s
//	WARDEN_OPENLIST_CMD=/opt/openlist/openlist,server
//	WARDEN_LOG_LEVEL=debug
package config
