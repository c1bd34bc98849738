// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package scheduler is the durable periodic fallback: unique named jobs kept in
a BadgerDB directory so that their schedule survives process death and
reboots until they are cancelled.

Two jobs are registered by the boot trigger and by every serve start:

	keep-alive     every 15m, flex 5m   ensures the watchdog and the managed service
	service-check  every 30m, flex 10m  ensures the managed service

Registration has KEEP semantics: a job that already exists keeps its next
run time. A job runs at a random point inside the last flex window of its
interval, like a platform job scheduler would.

The serve process owns the store while it runs and executes due jobs from a
Runner. When serve is gone, an OS timer invoking `warden jobs run` takes the
store and runs whatever is due; the jobs lock decides who owns it.

A run returns ResultSuccess (policy no-ops included), ResultRetry for a
plausibly transient failure, which reschedules with the configured backoff,
or ResultFailure, which waits for the next period.
*/
package scheduler
