// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package netwatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/tomtom215/warden/internal/clock"
	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// ErrUnsupported is returned when a push source is unavailable on this platform.
var ErrUnsupported = errors.New("netlink source not supported on this platform")

// Source reports connectivity. Run calls emit with the current state at
// least once and again whenever it may have changed, until ctx ends.
type Source interface {
	Run(ctx context.Context, emit func(up bool)) error
	String() string
}

// Probe reports whether the host currently has usable connectivity.
type Probe func(ctx context.Context) (bool, error)

// InterfaceProbe reports whether any non-loopback interface that is up
// carries a global unicast address.
func InterfaceProbe(context.Context) (bool, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false, fmt.Errorf("list interfaces: %w", err)
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.IsGlobalUnicast() {
				return true, nil
			}
		}
	}
	return false, nil
}

// DialProbe reports connectivity by opening a TCP connection to addr. A
// failed dial means "down", not a probe error.
func DialProbe(addr string, timeout time.Duration) Probe {
	return func(ctx context.Context) (bool, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		}
		_ = conn.Close()
		return true, nil
	}
}

// Poll is the polling fallback source.
type Poll struct {
	Probe        Probe
	Interval     time.Duration
	ErrorBackoff time.Duration
	Clock        clock.Clock
}

// Run probes every Interval, waiting ErrorBackoff after a failed probe.
func (p *Poll) Run(ctx context.Context, emit func(up bool)) error {
	clk := p.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := logging.WithComponent("netwatch")
	for {
		wait := p.Interval
		up, err := p.Probe(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			metrics.NetworkProbeErrors.Inc()
			logger.Warn().Err(err).Dur("backoff", p.ErrorBackoff).Msg("connectivity probe failed")
			wait = p.ErrorBackoff
		default:
			emit(up)
		}
		if clock.Sleep(ctx, clk, wait) != nil {
			return nil
		}
	}
}

func (p *Poll) String() string { return "poll" }

// NewSource builds the source selected by cfg.Source. "auto" prefers netlink
// and falls back to polling when it is unavailable.
func NewSource(cfg config.NetworkConfig) (Source, error) {
	probe := Probe(InterfaceProbe)
	if cfg.ProbeAddress != "" {
		probe = DialProbe(cfg.ProbeAddress, cfg.ProbeTimeout)
	}
	poll := &Poll{Probe: probe, Interval: cfg.PollInterval, ErrorBackoff: cfg.ErrorBackoff}

	switch cfg.Source {
	case "poll":
		return poll, nil
	case "netlink":
		return newNetlink(probe)
	default:
		src, err := newNetlink(probe)
		if err != nil {
			logging.Info().Err(err).Msg("netlink unavailable, polling for connectivity")
			return poll, nil
		}
		return src, nil
	}
}
