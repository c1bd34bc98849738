// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package logging provides the zerolog-based structured logger shared by the
// warden processes (serve, watchdog, jobs).
//
// Both supervision processes write to the same sink format so their lines can
// be interleaved and filtered by the "process" and "component" fields.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("reason", "heartbeat").Msg("reconcile")
//
//	// Component loggers
//	log := logging.WithComponent("netwatch")
//	log.Debug().Str("state", "connected").Msg("transition")
//
//	// Correlated passes
//	ctx = logging.ContextWithNewCorrelationID(ctx)
//	logging.Ctx(ctx).Info().Msg("start issued")
//
// # Supervisor Integration
//
// Suture reports service failures through an slog.Handler. SlogHandler adapts
// zerolog to that interface:
//
//	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
//
// # Configuration
//
// The config package maps logging.level, logging.format and logging.caller
// (or WARDEN_LOG_LEVEL, WARDEN_LOG_FORMAT, WARDEN_LOG_CALLER) onto Config.
package logging
