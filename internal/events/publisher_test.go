// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build nats

package events

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/engine"
)

func startEmbeddedNATS(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		ServerName: "warden-test",
		Host:       "127.0.0.1",
		Port:       -1,
		NoLog:      true,
		NoSigs:     true,
	})
	if err != nil {
		t.Fatalf("create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestPublisher_DeliversStatusEvents(t *testing.T) {
	url := startEmbeddedNATS(t)

	nc, err := natsgo.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	sub, err := nc.SubscribeSync("warden.status")
	if err != nil {
		t.Fatal(err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	pub, err := NewPublisher(config.EventsConfig{NATSEnabled: true, NATSURL: url, Subject: "warden.status"})
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pub.Serve(ctx) }()

	bus := engine.NewBroadcaster()
	bus.Subscribe("nats", pub.Listener())
	bus.Publish(engine.StatusEvent{Running: false, Reason: engine.ReasonProcessCheck, Outcome: engine.OutcomeExited})

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("no message on subject: %v", err)
	}
	var ev engine.StatusEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("decode payload %q: %v", msg.Data, err)
	}
	if ev.Outcome != engine.OutcomeExited || ev.Reason != engine.ReasonProcessCheck {
		t.Errorf("event = %+v", ev)
	}
	if msg.Header.Get(MetadataOutcome) != string(engine.OutcomeExited) {
		t.Errorf("headers = %v", msg.Header)
	}

	cancel()
	<-done
}

func TestNewPublisher_RequiresURLAndSubject(t *testing.T) {
	if _, err := NewPublisher(config.EventsConfig{NATSEnabled: true}); err == nil {
		t.Error("NewPublisher() accepted empty config")
	}
}
