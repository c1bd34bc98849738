// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package engine implements the reconciliation engine: the single idempotent
// decision function every signal source calls to answer "should the managed
// service be running, and is it?".
//
// # Reconcile
//
// Reconcile(ctx, reason) evaluates, in order:
//
//  1. AutoStartPolicy false: PolicyNoOp.
//  2. ManualOverrideFlag true: PolicyNoOp. User intent wins over every signal.
//  3. ManagedService.IsRunning(), queried live, never the cached state.
//  4. Not running: Start under the process-wide start mutex. A failed start
//     is re-checked after a settle delay; a service found running then is
//     RaceDetected and counts as success.
//  5. Running: Healthy.
//
// Failures reset ServiceState.running to false and publish a status event.
// Nothing is retried inline; the next signal retries. Panics from the start
// primitive are recovered as FatalStartFault, so Reconcile never crashes the
// supervising process.
//
// Reconcile never stops the service. RequestManualStop persists the manual
// override before asking for shutdown, so a heartbeat firing in between sees
// the override and stands down.
//
// # Status Events
//
// Broadcaster is a tagged observer list. Listeners are called synchronously
// in subscription order; publishing with no listeners is a no-op.
package engine
