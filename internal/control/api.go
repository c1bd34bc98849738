// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package control

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/managed"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *APIError       `json:"error,omitempty"`
}

// APIError is a failed request. It is also the error type returned by Client
// for non-2xx replies.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control api %d %s: %s", e.HTTPStatus, e.Code, e.Message)
}

// StatusReport is the body of GET /api/v1/status.
type StatusReport struct {
	Engine       engine.Snapshot `json:"engine"`
	Service      managed.Status  `json:"service"`
	LocalAddress string          `json:"local_address,omitempty"`
	Network      string          `json:"network,omitempty"`
	PID          int             `json:"pid"`
	Uptime       string          `json:"uptime"`
}

// ReconcileResult is the body of the reconcile, trigger and start routes.
type ReconcileResult struct {
	Reason  engine.Reason  `json:"reason"`
	Outcome engine.Outcome `json:"outcome"`
	Running bool           `json:"running"`
}

// StopResult is the body of POST /api/v1/stop.
type StopResult struct {
	Running  bool      `json:"running"`
	Override bool      `json:"manual_override"`
	At       time.Time `json:"at"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal control response")
		respondError(w, http.StatusInternalServerError, "ENCODE_FAILED", "failed to encode response")
		return
	}
	writeEnvelope(w, status, Response{Status: "success", Data: raw})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, Response{Status: "error", Error: &APIError{Code: code, Message: message}})
}

func writeEnvelope(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Debug().Err(err).Msg("failed to write control response")
	}
}
