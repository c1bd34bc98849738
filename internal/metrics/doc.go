// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package metrics defines the Prometheus instrumentation of the supervision
// loops. Metrics are registered on the default registry via promauto and
// scraped from GET /metrics on the control socket of the serve process.
//
// Callers use the Record* helpers rather than touching the vectors so label
// values stay consistent:
//
//	metrics.RecordReconcile("heartbeat", "healthy", time.Since(start))
//	metrics.RecordRelaunch("watchdog", err)
package metrics
