// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package engine

import "errors"

var (
	// ErrFatalStartFault wraps a panic recovered from the start primitive.
	ErrFatalStartFault = errors.New("fatal start fault")

	// ErrUnknownReason is returned by ParseReason.
	ErrUnknownReason = errors.New("unknown reconcile reason")

	// ErrOverridePersist is returned when the manual override could not be
	// written; the requested stop or start is not attempted.
	ErrOverridePersist = errors.New("persist manual override")
)
