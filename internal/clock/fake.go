// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced clock. Timers and tickers fire during Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
	added   chan struct{}
}

type fakeWaiter struct {
	at      time.Time
	period  time.Duration
	ch      chan time.Time
	stopped bool
}

// NewFake returns a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, added: make(chan struct{}, 64)}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker registers a periodic waiter.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	return &fakeTicker{f: f, w: f.add(d, d)}
}

// NewTimer registers a one-shot waiter.
func (f *Fake) NewTimer(d time.Duration) Timer {
	return &fakeTimer{f: f, w: f.add(d, 0)}
}

func (f *Fake) add(d, period time.Duration) *fakeWaiter {
	f.mu.Lock()
	w := &fakeWaiter{at: f.now.Add(d), period: period, ch: make(chan time.Time, 1)}
	f.waiters = append(f.waiters, w)
	f.mu.Unlock()

	select {
	case f.added <- struct{}{}:
	default:
	}
	return w
}

// Advance moves time forward by d, firing every due waiter. A waiter whose
// channel is still full drops the tick, like time.Ticker.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
	live := f.waiters[:0]
	for _, w := range f.waiters {
		if w.stopped {
			continue
		}
		for !w.at.After(f.now) {
			select {
			case w.ch <- w.at:
			default:
			}
			if w.period == 0 {
				w.stopped = true
				break
			}
			w.at = w.at.Add(w.period)
		}
		if !w.stopped {
			live = append(live, w)
		}
	}
	f.waiters = live
}

// BlockUntil waits until at least n waiters are registered and not stopped,
// or timeout elapses. It returns whether the condition was met.
func (f *Fake) BlockUntil(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		f.mu.Lock()
		count := 0
		for _, w := range f.waiters {
			if !w.stopped {
				count++
			}
		}
		f.mu.Unlock()
		if count >= n {
			return true
		}
		select {
		case <-f.added:
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			return false
		}
	}
}

type fakeTicker struct {
	f *Fake
	w *fakeWaiter
}

func (t *fakeTicker) C() <-chan time.Time { return t.w.ch }

func (t *fakeTicker) Stop() {
	t.f.mu.Lock()
	t.w.stopped = true
	t.f.mu.Unlock()
}

type fakeTimer struct {
	f *Fake
	w *fakeWaiter
}

func (t *fakeTimer) C() <-chan time.Time { return t.w.ch }

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	was := !t.w.stopped
	t.w.stopped = true
	return was
}
