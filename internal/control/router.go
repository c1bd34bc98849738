// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package control

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/warden/internal/engine"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/managed"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/scheduler"
	"github.com/tomtom215/warden/internal/websocket"
)

// Supervisor is satisfied by *engine.Engine.
type Supervisor interface {
	Reconcile(ctx context.Context, reason engine.Reason) engine.Outcome
	HandleTrigger(ctx context.Context, reason engine.Reason) (engine.Outcome, error)
	RequestManualStart(ctx context.Context) (engine.Outcome, error)
	RequestManualStop(ctx context.Context) error
	Snapshot() engine.Snapshot
}

// ServiceView is satisfied by *managed.Service.
type ServiceView interface {
	Status() managed.Status
	Logs(n int) []managed.LogLine
}

// JobTable is satisfied by *scheduler.Scheduler.
type JobTable interface {
	List() ([]scheduler.Job, error)
	Cancel(name string) error
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Engine  Supervisor
	Service ServiceView

	// Hub serves /api/v1/events. Nil disables the route.
	Hub *websocket.Hub

	// Jobs serves /api/v1/jobs while this process owns the job store.
	Jobs JobTable

	// Network reports the observed connectivity. Optional.
	Network func() string

	// LocalAddress reports the host's outbound address. Optional.
	LocalAddress func() string

	RateLimit  int
	RateWindow time.Duration
	Started    time.Time
}

const defaultLogLines = 100

// NewRouter builds the control API.
func NewRouter(d Deps) http.Handler {
	if d.Started.IsZero() {
		d.Started = time.Now()
	}
	h := &handlers{d: d}

	r := chi.NewRouter()
	r.Use(requestIDWithLogging)
	r.Use(chimiddleware.Recoverer)
	r.Use(recordRequests)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if d.RateLimit > 0 && d.RateWindow > 0 {
			// Every caller shares the socket, so the limit is global.
			r.Use(httprate.LimitAll(d.RateLimit, d.RateWindow))
		}
		r.Get("/status", h.status)
		r.Post("/reconcile", h.reconcile)
		r.Post("/trigger", h.trigger)
		r.Post("/start", h.start)
		r.Post("/stop", h.stop)
		r.Get("/logs", h.logs)
		if d.Hub != nil {
			r.Get("/events", websocket.Handler(d.Hub))
		}
		if d.Jobs != nil {
			r.Get("/jobs", h.listJobs)
			r.Delete("/jobs/{name}", h.cancelJob)
		}
	})
	return r
}

// requestIDWithLogging adds chi's request id, a correlation id and a logger
// tagged with the request id. The engine's logs pick up both.
func requestIDWithLogging(next http.Handler) http.Handler {
	return chimiddleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.ContextWithNewCorrelationID(r.Context())
		logger := logging.Logger().With().Str("request_id", chimiddleware.GetReqID(ctx)).Logger()
		ctx = logging.ContextWithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

func recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordControlRequest(route, strconv.Itoa(status))
	})
}

type handlers struct {
	d Deps
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "pid": os.Getpid()})
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	rep := StatusReport{
		Engine: h.d.Engine.Snapshot(),
		PID:    os.Getpid(),
		Uptime: time.Since(h.d.Started).Round(time.Second).String(),
	}
	if h.d.Service != nil {
		rep.Service = h.d.Service.Status()
	}
	if h.d.LocalAddress != nil {
		rep.LocalAddress = h.d.LocalAddress()
	}
	if h.d.Network != nil {
		rep.Network = h.d.Network()
	}
	respondJSON(w, http.StatusOK, rep)
}

func (h *handlers) parseReason(w http.ResponseWriter, r *http.Request) (engine.Reason, bool) {
	raw := r.URL.Query().Get("reason")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "MISSING_REASON", "reason query parameter is required")
		return "", false
	}
	reason, err := engine.ParseReason(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "UNKNOWN_REASON", err.Error())
		return "", false
	}
	return reason, true
}

// detached keeps a pass running when the caller gives up waiting.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *handlers) reconcile(w http.ResponseWriter, r *http.Request) {
	reason, ok := h.parseReason(w, r)
	if !ok {
		return
	}
	out := h.d.Engine.Reconcile(detached(r), reason)
	respondJSON(w, http.StatusOK, h.result(reason, out))
}

func (h *handlers) trigger(w http.ResponseWriter, r *http.Request) {
	reason, ok := h.parseReason(w, r)
	if !ok {
		return
	}
	out, err := h.d.Engine.HandleTrigger(detached(r), reason)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TRIGGER_FAILED", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.result(reason, out))
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	out, err := h.d.Engine.RequestManualStart(detached(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "START_FAILED", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.result(engine.ReasonUserAction, out))
}

func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	err := h.d.Engine.RequestManualStop(detached(r))
	if err != nil {
		code := "STOP_FAILED"
		if errors.Is(err, engine.ErrOverridePersist) {
			code = "OVERRIDE_NOT_SAVED"
		}
		respondError(w, http.StatusInternalServerError, code, err.Error())
		return
	}
	snap := h.d.Engine.Snapshot()
	respondJSON(w, http.StatusOK, StopResult{Running: snap.Running, Override: snap.ManualOverride, At: time.Now()})
}

func (h *handlers) logs(w http.ResponseWriter, r *http.Request) {
	if h.d.Service == nil {
		respondError(w, http.StatusServiceUnavailable, "NO_SERVICE", "no managed service")
		return
	}
	n := defaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondError(w, http.StatusBadRequest, "INVALID_LINES", "lines must be a non-negative integer")
			return
		}
		n = v
	}
	respondJSON(w, http.StatusOK, h.d.Service.Logs(n))
}

func (h *handlers) listJobs(w http.ResponseWriter, _ *http.Request) {
	jobs, err := h.d.Jobs.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "JOBS_UNREADABLE", err.Error())
		return
	}
	if jobs == nil {
		jobs = []scheduler.Job{}
	}
	respondJSON(w, http.StatusOK, jobs)
}

func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.d.Jobs.Cancel(name); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "CANCEL_FAILED", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"cancelled": name})
}

func (h *handlers) result(reason engine.Reason, out engine.Outcome) ReconcileResult {
	return ReconcileResult{Reason: reason, Outcome: out, Running: h.d.Engine.Snapshot().Running}
}
