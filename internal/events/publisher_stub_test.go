// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build !nats

package events

import (
	"errors"
	"testing"

	"github.com/tomtom215/warden/internal/config"
)

func TestNewPublisherWithoutNATS(t *testing.T) {
	if _, err := NewPublisher(config.EventsConfig{NATSEnabled: true, NATSURL: "nats://localhost:4222", Subject: "warden.status"}); !errors.Is(err, ErrNATSUnavailable) {
		t.Errorf("NewPublisher() error = %v, want ErrNATSUnavailable", err)
	}
}
