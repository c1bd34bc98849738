// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package engine

import (
	"sync"
	"time"

	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// StatusEvent announces a change of (or a failed attempt to change) the
// managed service's running state.
type StatusEvent struct {
	Running bool      `json:"running"`
	Reason  Reason    `json:"reason"`
	Outcome Outcome   `json:"outcome"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Listener receives status events. It must not block; listeners that do I/O
// hand the event to their own goroutine.
type Listener func(StatusEvent)

type subscription struct {
	tag string
	fn  Listener
}

// Broadcaster fans status events out to tagged listeners.
type Broadcaster struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers fn under tag, replacing any listener with the same tag.
func (b *Broadcaster) Subscribe(tag string, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.subs {
		if b.subs[i].tag == tag {
			b.subs[i].fn = fn
			return
		}
	}
	b.subs = append(b.subs, subscription{tag: tag, fn: fn})
}

// Unsubscribe removes the listener registered under tag and reports whether
// one was present.
func (b *Broadcaster) Unsubscribe(tag string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.subs {
		if b.subs[i].tag == tag {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of listeners.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers ev to every listener. A panicking listener is logged and
// skipped.
func (b *Broadcaster) Publish(ev StatusEvent) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	metrics.StatusEvents.Inc()
	for _, s := range subs {
		deliver(s, ev)
	}
}

func deliver(s subscription, ev StatusEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("component", "broadcaster").
				Str("listener", s.tag).
				Interface("panic", r).
				Msg("status listener panicked")
		}
	}()
	s.fn(ev)
}
