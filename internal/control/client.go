// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/managed"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/scheduler"
	"github.com/tomtom215/warden/internal/websocket"
)

// ErrUnavailable means the serve process could not be reached.
var ErrUnavailable = errors.New("serve process unavailable")

// IsUnavailable reports whether err means "nobody is serving", including a
// breaker that is refusing calls.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Socket          string
	Timeout         time.Duration
	BreakerName     string
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client calls the control API over its unix socket.
type Client struct {
	socket string
	http   *http.Client
	cb     *gobreaker.CircuitBreaker[any]
}

// host is a placeholder; the transport always dials the socket.
const host = "http://warden"

// NewClient creates a client for the socket in cfg.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "control-api"
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	socket := cfg.Socket
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		},
		MaxIdleConns:    2,
		IdleConnTimeout: 30 * time.Second,
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.BreakerName).Set(0)
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Requests the server rejected are not infrastructure failures.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.HTTPStatus < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Client{
		socket: socket,
		http:   &http.Client{Transport: transport, Timeout: cfg.Timeout},
		cb:     cb,
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.cb.State()
}

// Health checks that the serve process answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Status fetches the status report.
func (c *Client) Status(ctx context.Context) (StatusReport, error) {
	var rep StatusReport
	err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &rep)
	return rep, err
}

// Reconcile asks the serve process for one reconcile pass.
func (c *Client) Reconcile(ctx context.Context, reason engine.Reason) (ReconcileResult, error) {
	var res ReconcileResult
	err := c.do(ctx, http.MethodPost, "/api/v1/reconcile", url.Values{"reason": {string(reason)}}, &res)
	return res, err
}

// Trigger delivers an OS-level trigger.
func (c *Client) Trigger(ctx context.Context, reason engine.Reason) (ReconcileResult, error) {
	var res ReconcileResult
	err := c.do(ctx, http.MethodPost, "/api/v1/trigger", url.Values{"reason": {string(reason)}}, &res)
	return res, err
}

// Start performs a user start.
func (c *Client) Start(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	err := c.do(ctx, http.MethodPost, "/api/v1/start", nil, &res)
	return res, err
}

// Stop performs a user stop.
func (c *Client) Stop(ctx context.Context) (StopResult, error) {
	var res StopResult
	err := c.do(ctx, http.MethodPost, "/api/v1/stop", nil, &res)
	return res, err
}

// Logs fetches up to n recent server output lines.
func (c *Client) Logs(ctx context.Context, n int) ([]managed.LogLine, error) {
	var lines []managed.LogLine
	err := c.do(ctx, http.MethodGet, "/api/v1/logs", url.Values{"lines": {strconv.Itoa(n)}}, &lines)
	return lines, err
}

// Jobs lists the periodic jobs of the serve process's job store.
func (c *Client) Jobs(ctx context.Context) ([]scheduler.Job, error) {
	var jobs []scheduler.Job
	err := c.do(ctx, http.MethodGet, "/api/v1/jobs", nil, &jobs)
	return jobs, err
}

// CancelJob removes a periodic job through the serve process.
func (c *Client) CancelJob(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/jobs/"+url.PathEscape(name), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, q, out)
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(c.cb.Name(), "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(c.cb.Name(), "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(c.cb.Name(), "failure").Inc()
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, q url.Values, out any) error {
	u := host + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	var env Response
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices || env.Error != nil {
		apiErr := &APIError{HTTPStatus: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}

// Events streams status events to fn until ctx ends or the connection drops.
func (c *Client) Events(ctx context.Context, fn func(engine.StatusEvent)) error {
	dialer := gws.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socket)
		},
		HandshakeTimeout: 5 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, "ws://warden/api/v1/events", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg websocket.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if msg.Type != websocket.MessageTypeStatus {
			continue
		}
		var ev engine.StatusEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logging.Debug().Err(err).Msg("skipping undecodable status event")
			continue
		}
		fn(ev)
	}
}
