// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build !nats

package events

import (
	"context"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/warden/internal/config"
)

// Publisher is a stub when NATS dependencies are not compiled in.
type Publisher struct {
	queue
}

// NewPublisher returns ErrNATSUnavailable.
func NewPublisher(config.EventsConfig) (*Publisher, error) {
	return nil, ErrNATSUnavailable
}

// Serve retires the service.
func (p *Publisher) Serve(context.Context) error {
	return suture.ErrDoNotRestart
}

func (p *Publisher) String() string { return "nats-publisher" }
