// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package scheduler

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Linear is a backoff.BackOff whose n-th delay is n*Min, capped at Max.
type Linear struct {
	Min     time.Duration
	Max     time.Duration
	attempt int64
}

// NextBackOff implements backoff.BackOff.
func (l *Linear) NextBackOff() time.Duration {
	l.attempt++
	d := time.Duration(l.attempt) * l.Min
	if l.Max > 0 && (d > l.Max || d < 0) {
		return l.Max
	}
	return d
}

// Reset implements backoff.BackOff.
func (l *Linear) Reset() { l.attempt = 0 }

// BackOffFactory returns a fresh policy for each retry computation.
type BackOffFactory func() backoff.BackOff

// NewBackOffFactory builds the retry policy named by policy: linear or
// exponential.
func NewBackOffFactory(policy string, minDelay, maxDelay time.Duration) (BackOffFactory, error) {
	switch policy {
	case "", "linear":
		return func() backoff.BackOff { return &Linear{Min: minDelay, Max: maxDelay} }, nil
	case "exponential":
		return func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = minDelay
			b.MaxInterval = maxDelay
			b.RandomizationFactor = 0
			b.MaxElapsedTime = 0
			b.Reset()
			return b
		}, nil
	default:
		return nil, fmt.Errorf("unknown backoff policy %q", policy)
	}
}

// delayFor returns the delay before retry number attempts (1-based).
func (f BackOffFactory) delayFor(attempts int) time.Duration {
	b := f()
	d := b.NextBackOff()
	for i := 1; i < attempts && d != backoff.Stop; i++ {
		d = b.NextBackOff()
	}
	return d
}
