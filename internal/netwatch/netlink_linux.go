// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build linux

package netwatch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/tomtom215/warden/internal/logging"
)

const netlinkGroups = unix.RTMGRP_LINK |
	unix.RTMGRP_IPV4_IFADDR | unix.RTMGRP_IPV6_IFADDR |
	unix.RTMGRP_IPV4_ROUTE | unix.RTMGRP_IPV6_ROUTE

// netlinkSource re-probes connectivity whenever the kernel reports a link,
// address or route change.
type netlinkSource struct {
	probe Probe
}

func newNetlink(probe Probe) (Source, error) {
	fd, err := openNetlink()
	if err != nil {
		return nil, err
	}
	_ = unix.Close(fd)
	return &netlinkSource{probe: probe}, nil
}

func openNetlink() (int, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return -1, fmt.Errorf("netlink socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: netlinkGroups}); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("netlink bind: %w", err)
	}
	// A receive timeout lets Run notice cancellation.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("netlink timeout: %w", err)
	}
	return fd, nil
}

func (n *netlinkSource) Run(ctx context.Context, emit func(up bool)) error {
	fd, err := openNetlink()
	if err != nil {
		return err
	}
	defer func() { _ = unix.Close(fd) }()

	logger := logging.WithComponent("netwatch")
	report := func() {
		up, err := n.probe(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("connectivity probe failed")
			return
		}
		emit(up)
	}

	report()
	buf := make([]byte, 1<<16)
	for {
		if ctx.Err() != nil {
			return nil
		}
		nr, _, err := unix.Recvfrom(fd, buf, 0)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ENOBUFS):
			// Notifications were dropped; the state may have changed.
			report()
			continue
		case err != nil:
			return fmt.Errorf("netlink receive: %w", err)
		}
		if nr >= unix.NLMSG_HDRLEN {
			report()
		}
	}
}

func (n *netlinkSource) String() string { return "netlink" }
