// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package engine

import "fmt"

// Reason tags the signal source behind a reconcile request.
type Reason string

// Trigger reasons.
const (
	ReasonBoot              Reason = "boot"
	ReasonPackageUpdate     Reason = "package-update"
	ReasonHeartbeat         Reason = "heartbeat"
	ReasonNetworkAvailable  Reason = "network-available"
	ReasonProcessCheck      Reason = "process-check"
	ReasonScheduledFallback Reason = "scheduled-fallback"
	ReasonUserAction        Reason = "user-action"
)

// Reasons lists every valid reason.
var Reasons = []Reason{
	ReasonBoot,
	ReasonPackageUpdate,
	ReasonHeartbeat,
	ReasonNetworkAvailable,
	ReasonProcessCheck,
	ReasonScheduledFallback,
	ReasonUserAction,
}

// ParseReason validates s.
func ParseReason(s string) (Reason, error) {
	for _, r := range Reasons {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReason, s)
}

// Outcome is the result of one reconcile pass.
type Outcome string

// Reconcile outcomes.
const (
	// OutcomePolicyNoOp: auto-start disabled or manual override set.
	OutcomePolicyNoOp Outcome = "policy-noop"
	// OutcomeHealthy: the service was already running.
	OutcomeHealthy Outcome = "healthy"
	// OutcomeStarted: this pass started the service.
	OutcomeStarted Outcome = "started"
	// OutcomeRaceDetected: start failed but the service was running on recheck.
	OutcomeRaceDetected Outcome = "race-detected"
	// OutcomeStartFailed: TransientStartFailure.
	OutcomeStartFailed Outcome = "start-failed"
	// OutcomeFatalFault: FatalStartFault (recovered panic).
	OutcomeFatalFault Outcome = "fatal-fault"
	// OutcomeCancelled: the caller's context ended before the pass ran.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeStopped: a manual stop completed.
	OutcomeStopped Outcome = "stopped"
	// OutcomeExited: the managed process exited on its own.
	OutcomeExited Outcome = "exited"
)

// Failed reports whether the outcome is a start failure of either kind.
func (o Outcome) Failed() bool {
	return o == OutcomeStartFailed || o == OutcomeFatalFault
}

// Succeeded reports whether the service is known to be running after the pass.
func (o Outcome) Succeeded() bool {
	return o == OutcomeHealthy || o == OutcomeStarted || o == OutcomeRaceDetected
}
