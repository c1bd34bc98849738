// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package events forwards engine status events to a NATS subject through a
// Watermill publisher. The transport is only compiled with the nats build
// tag; without it NewPublisher returns ErrNATSUnavailable.
package events

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/logging"
)

// ErrNATSUnavailable is returned when the binary was built without NATS.
var ErrNATSUnavailable = errors.New("NATS publisher not available: build with -tags=nats")

// queueSize bounds the events waiting for the broker.
const queueSize = 256

// Metadata keys set on every message.
const (
	MetadataReason  = "reason"
	MetadataOutcome = "outcome"
	MetadataRunning = "running"
)

// queue decouples the engine's synchronous listeners from the broker.
type queue struct {
	ch chan engine.StatusEvent
}

func newQueue() queue {
	return queue{ch: make(chan engine.StatusEvent, queueSize)}
}

// Listener returns the engine.Listener that feeds the queue. It never
// blocks; events are dropped when the broker falls behind.
func (q queue) Listener() engine.Listener {
	return func(ev engine.StatusEvent) {
		select {
		case q.ch <- ev:
		default:
			logging.Warn().Str("outcome", string(ev.Outcome)).Msg("event queue full, dropping status event")
		}
	}
}

// NewMessage encodes ev as a Watermill message with a fresh UUID.
func NewMessage(ev engine.StatusEvent) (*message.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode status event: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(MetadataReason, string(ev.Reason))
	msg.Metadata.Set(MetadataOutcome, string(ev.Outcome))
	msg.Metadata.Set(MetadataRunning, fmt.Sprintf("%t", ev.Running))
	return msg, nil
}
