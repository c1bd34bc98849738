// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/clock"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// ManagedService is the supervised long-running service. Start is not
// guaranteed to be idempotent and may panic.
type ManagedService interface {
	IsRunning() bool
	Start(ctx context.Context) error
	RequestShutdown(ctx context.Context, timeout time.Duration) error
}

// FlagStore exposes the persisted supervision flags.
type FlagStore interface {
	AutoStart() bool
	ManualOverride() bool
	SetManualOverride(v bool) error
}

// Config tunes the engine.
type Config struct {
	// StartSettleDelay is waited before re-checking a failed start.
	StartSettleDelay time.Duration

	// ShutdownTimeout is passed to RequestShutdown on manual stop.
	ShutdownTimeout time.Duration

	// PreStop runs before a manual shutdown. Its error is logged, not fatal.
	PreStop func(ctx context.Context) error

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// Snapshot is a point-in-time view for status queries.
type Snapshot struct {
	Running        bool      `json:"running"`
	AutoStart      bool      `json:"auto_start"`
	ManualOverride bool      `json:"manual_override"`
	LastReason     Reason    `json:"last_reason,omitempty"`
	LastOutcome    Outcome   `json:"last_outcome,omitempty"`
	LastReconcile  time.Time `json:"last_reconcile,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// Engine is the reconciliation engine. It is safe for concurrent use by any
// number of signal sources.
type Engine struct {
	svc   ManagedService
	flags FlagStore
	bus   *Broadcaster
	state ServiceState
	cfg   Config

	// startMu guarantees at most one in-flight Start, process-wide.
	startMu sync.Mutex

	lastMu  sync.Mutex
	last    Snapshot
	logger  zerolog.Logger
	inStart sync.WaitGroup
}

// New creates an engine. bus may be nil, in which case events are dropped.
func New(svc ManagedService, flags FlagStore, bus *Broadcaster, cfg Config) *Engine {
	if bus == nil {
		bus = NewBroadcaster()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Engine{
		svc:    svc,
		flags:  flags,
		bus:    bus,
		cfg:    cfg,
		logger: logging.WithComponent("engine"),
	}
}

// State returns the shared service state.
func (e *Engine) State() *ServiceState {
	return &e.state
}

// Broadcaster returns the status event fan-out.
func (e *Engine) Broadcaster() *Broadcaster {
	return e.bus
}

// Reconcile runs one idempotent decide-and-act pass. It never panics and
// never stops the service.
func (e *Engine) Reconcile(ctx context.Context, reason Reason) Outcome {
	began := e.cfg.Clock.Now()
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx).With().Str("component", "engine").Str("reason", string(reason)).Logger()

	out, err := e.reconcile(ctx, reason, &log)

	metrics.RecordReconcile(string(reason), string(out), e.cfg.Clock.Now().Sub(began))
	e.remember(reason, out, err)
	return out
}

func (e *Engine) reconcile(ctx context.Context, reason Reason, log *zerolog.Logger) (Outcome, error) {
	if ctx.Err() != nil {
		return OutcomeCancelled, nil
	}
	if !e.flags.AutoStart() {
		log.Debug().Msg("auto-start disabled, nothing to do")
		return OutcomePolicyNoOp, nil
	}
	if e.flags.ManualOverride() {
		log.Debug().Msg("manual override set, nothing to do")
		return OutcomePolicyNoOp, nil
	}

	if e.svc.IsRunning() {
		e.observeRunning(reason, OutcomeHealthy)
		return OutcomeHealthy, nil
	}

	out, err := e.startSerialized(ctx, reason, log)
	if err == nil {
		return out, nil
	}

	// A concurrent start elsewhere may have won; give it time to settle.
	// This wait happens outside startMu.
	if clock.Sleep(ctx, e.cfg.Clock, e.cfg.StartSettleDelay) == nil && e.svc.IsRunning() {
		log.Info().Err(err).Msg("start reported failure but service is running")
		metrics.RecordStartAttempt("race")
		e.observeRunning(reason, OutcomeRaceDetected)
		return OutcomeRaceDetected, nil
	}

	out = OutcomeStartFailed
	if errors.Is(err, ErrFatalStartFault) {
		out = OutcomeFatalFault
		metrics.RecordStartAttempt("fatal")
		log.Error().Err(err).Msg("managed service start faulted")
	} else {
		metrics.RecordStartAttempt("failed")
		log.Warn().Err(err).Msg("managed service start failed, next signal retries")
	}

	e.state.markStopped()
	metrics.SetServiceRunning(false)
	e.bus.Publish(StatusEvent{
		Running: false,
		Reason:  reason,
		Outcome: out,
		Error:   err.Error(),
		At:      e.cfg.Clock.Now(),
	})
	return out, err
}

// startSerialized holds startMu across the start call only. It returns a
// nil error for a successful start or for a service another caller started
// while this one waited for the lock.
func (e *Engine) startSerialized(ctx context.Context, reason Reason, log *zerolog.Logger) (Outcome, error) {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if e.svc.IsRunning() {
		e.observeRunning(reason, OutcomeHealthy)
		return OutcomeHealthy, nil
	}
	if e.flags.ManualOverride() {
		log.Debug().Msg("manual override set while waiting to start")
		return OutcomePolicyNoOp, nil
	}

	log.Info().Msg("managed service not running, starting")
	if err := e.safeStart(ctx); err != nil {
		return OutcomeStartFailed, err
	}

	metrics.RecordStartAttempt("started")
	e.observeRunning(reason, OutcomeStarted)
	log.Info().Msg("managed service started")
	return OutcomeStarted, nil
}

func (e *Engine) safeStart(ctx context.Context) (err error) {
	e.inStart.Add(1)
	defer e.inStart.Done()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFatalStartFault, r)
		}
	}()
	return e.svc.Start(ctx)
}

// observeRunning records a running service, publishing when the cached
// state changes or when this pass started it.
func (e *Engine) observeRunning(reason Reason, out Outcome) {
	changed := e.state.markRunning(e.svc)
	metrics.SetServiceRunning(true)
	if changed || out == OutcomeStarted {
		e.bus.Publish(StatusEvent{Running: true, Reason: reason, Outcome: out, At: e.cfg.Clock.Now()})
	}
}

// RequestManualStop persists the manual override and only then asks the
// service to shut down, so no concurrent signal can restart it in between.
// A start already in flight finishes first and is then stopped. Only the
// process owning the service calls this; other processes go through the
// control API.
func (e *Engine) RequestManualStop(ctx context.Context) error {
	if err := e.flags.SetManualOverride(true); err != nil {
		return fmt.Errorf("%w: %w", ErrOverridePersist, err)
	}
	log := logging.Ctx(ctx).With().Str("component", "engine").Logger()
	log.Info().Msg("manual stop requested, override set")

	// Waiting starts see the override under startMu and back off.
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if e.cfg.PreStop != nil {
		if err := e.cfg.PreStop(ctx); err != nil {
			log.Warn().Err(err).Msg("pre-stop hook failed, stopping anyway")
		}
	}

	inst := e.state.Instance()
	if inst == nil {
		inst = e.svc
	}
	err := inst.RequestShutdown(ctx, e.cfg.ShutdownTimeout)
	if err != nil && inst.IsRunning() {
		return fmt.Errorf("shutdown managed service: %w", err)
	}

	e.state.markStopped()
	metrics.SetServiceRunning(false)
	e.bus.Publish(StatusEvent{Running: false, Reason: ReasonUserAction, Outcome: OutcomeStopped, At: e.cfg.Clock.Now()})
	e.remember(ReasonUserAction, OutcomeStopped, nil)
	return nil
}

// RequestManualStart clears the manual override and then reconciles with
// ReasonUserAction. The auto-start policy still applies.
func (e *Engine) RequestManualStart(ctx context.Context) (Outcome, error) {
	if err := e.flags.SetManualOverride(false); err != nil {
		return "", fmt.Errorf("%w: %w", ErrOverridePersist, err)
	}
	return e.Reconcile(ctx, ReasonUserAction), nil
}

// HandleTrigger handles an external OS-level trigger. Boot and package
// update clear the manual override when auto-start is enabled; every other
// reason is a plain reconcile.
func (e *Engine) HandleTrigger(ctx context.Context, reason Reason) (Outcome, error) {
	if (reason == ReasonBoot || reason == ReasonPackageUpdate) && e.flags.AutoStart() && e.flags.ManualOverride() {
		if err := e.flags.SetManualOverride(false); err != nil {
			return "", fmt.Errorf("%w: %w", ErrOverridePersist, err)
		}
		e.logger.Info().Str("reason", string(reason)).Msg("manual override cleared")
	}
	return e.Reconcile(ctx, reason), nil
}

// HandleExit is the managed service's shutdown listener: the child exited
// without a manual stop.
func (e *Engine) HandleExit(err error) {
	if !e.state.markStopped() {
		return
	}
	metrics.SetServiceRunning(false)
	ev := StatusEvent{Running: false, Reason: ReasonProcessCheck, Outcome: OutcomeExited, At: e.cfg.Clock.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	e.logger.Warn().Err(err).Msg("managed service exited")
	e.bus.Publish(ev)
}

// Snapshot returns the current state and the last reconcile result.
func (e *Engine) Snapshot() Snapshot {
	e.lastMu.Lock()
	s := e.last
	e.lastMu.Unlock()

	s.Running = e.svc.IsRunning()
	s.AutoStart = e.flags.AutoStart()
	s.ManualOverride = e.flags.ManualOverride()
	return s
}

// Wait blocks until any start call in progress returns.
func (e *Engine) Wait() {
	e.inStart.Wait()
}

func (e *Engine) remember(reason Reason, out Outcome, err error) {
	if out == OutcomeCancelled {
		return
	}
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	e.last.LastReason = reason
	e.last.LastOutcome = out
	e.last.LastReconcile = e.cfg.Clock.Now()
	e.last.LastError = ""
	if err != nil {
		e.last.LastError = err.Error()
	}
}
