// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package control

import (
	"net"
	"net/http"
	"time"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/supervisor/services"
)

// NewService returns the supervised control API server bound to cfg.Socket.
func NewService(cfg config.ControlConfig, handler http.Handler, shutdownTimeout time.Duration) *services.HTTPServerService {
	newServer := func() services.HTTPServer {
		return &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadTimeout,
			ReadTimeout:       cfg.ReadTimeout,
		}
	}
	listen := func() (net.Listener, error) {
		return Listen(cfg.Socket)
	}
	return services.NewHTTPServerService("control-api", newServer, listen, shutdownTimeout)
}
