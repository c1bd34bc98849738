// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build nats

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/logging"
)

// Publisher publishes status events to cfg.Subject. It implements
// suture.Service; each Serve run owns one NATS connection.
type Publisher struct {
	queue
	url     string
	subject string
}

// NewPublisher validates cfg. The connection is made by Serve.
func NewPublisher(cfg config.EventsConfig) (*Publisher, error) {
	if cfg.NATSURL == "" || cfg.Subject == "" {
		return nil, errors.New("events: nats_url and subject are required")
	}
	return &Publisher{queue: newQueue(), url: cfg.NATSURL, subject: cfg.Subject}, nil
}

// Serve connects and publishes queued events until ctx is cancelled.
func (p *Publisher) Serve(ctx context.Context) error {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())

	natsOpts := []natsgo.Option{
		natsgo.Name("warden"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         p.url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		// Status events are advisory, so plain core NATS is enough.
		JetStream: wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return fmt.Errorf("create watermill publisher: %w", err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logging.Warn().Err(err).Msg("closing NATS publisher")
		}
	}()

	logging.Info().Str("url", p.url).Str("subject", p.subject).Msg("status events publisher started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.ch:
			msg, err := NewMessage(ev)
			if err != nil {
				logging.Warn().Err(err).Msg("dropping undecodable status event")
				continue
			}
			if err := pub.Publish(p.subject, msg); err != nil {
				logging.Warn().Err(err).Str("subject", p.subject).Msg("failed to publish status event")
			}
		}
	}
}

func (p *Publisher) String() string { return "nats-publisher" }
