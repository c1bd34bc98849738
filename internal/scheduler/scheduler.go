// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/clock"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// Job names.
const (
	JobKeepAlive    = "keep-alive"
	JobServiceCheck = "service-check"
)

// Handler executes one run of a job.
type Handler func(ctx context.Context) (Result, error)

// Config tunes a Scheduler.
type Config struct {
	// BackOff computes retry delays. Defaults to linear from 10s.
	BackOff BackOffFactory

	// JobTimeout bounds one execution. Zero means no bound.
	JobTimeout time.Duration

	Clock clock.Clock

	// Jitter picks the offset inside the flex window. Defaults to uniform.
	Jitter func(flex time.Duration) time.Duration
}

// Scheduler runs due jobs from a Store.
type Scheduler struct {
	store *Store
	cfg   Config

	mu       sync.Mutex
	handlers map[string]Handler
	running  sync.Mutex
	logger   zerolog.Logger
}

// New creates a scheduler over store.
func New(store *Store, cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.BackOff == nil {
		cfg.BackOff, _ = NewBackOffFactory("linear", 10*time.Second, 5*time.Hour)
	}
	if cfg.Jitter == nil {
		cfg.Jitter = uniformJitter
	}
	return &Scheduler{
		store:    store,
		cfg:      cfg,
		handlers: make(map[string]Handler),
		logger:   logging.WithComponent("scheduler"),
	}
}

func uniformJitter(flex time.Duration) time.Duration {
	if flex <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(flex) + 1))
}

// Handle sets the handler for jobs named name.
func (s *Scheduler) Handle(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

func (s *Scheduler) handler(name string) (Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[name]
	return h, ok
}

// nextPeriod places a run inside the flex window at the end of the
// interval that starts at from.
func (s *Scheduler) nextPeriod(from time.Time, interval, flex time.Duration) time.Time {
	return from.Add(interval - flex + s.cfg.Jitter(flex))
}

// Register adds the jobs with KEEP semantics and reports how many were new.
func (s *Scheduler) Register(specs ...Spec) (int, error) {
	now := s.cfg.Clock.Now()
	created := 0
	var errs []error
	for _, spec := range specs {
		job, isNew, err := s.store.Register(spec, s.nextPeriod(now, spec.Interval, spec.Flex), now)
		if err != nil {
			errs = append(errs, fmt.Errorf("register %s: %w", spec.Name, err))
			continue
		}
		if isNew {
			created++
			metrics.JobNextRunSeconds.WithLabelValues(job.Name).Set(float64(job.NextRun.Unix()))
			s.logger.Info().Str("job", job.Name).Time("next_run", job.NextRun).Msg("periodic job registered")
		} else {
			s.logger.Debug().Str("job", job.Name).Time("next_run", job.NextRun).Msg("periodic job already registered, kept")
		}
	}
	return created, errors.Join(errs...)
}

// Cancel removes a job.
func (s *Scheduler) Cancel(name string) error {
	if err := s.store.Cancel(name); err != nil {
		return err
	}
	metrics.JobNextRunSeconds.DeleteLabelValues(name)
	s.logger.Info().Str("job", name).Msg("periodic job cancelled")
	return nil
}

// List returns all jobs.
func (s *Scheduler) List() ([]Job, error) {
	return s.store.List()
}

// RunDue executes every job whose next run has passed, one at a time, and
// returns the number executed. Overlapping calls are serialized.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	s.running.Lock()
	defer s.running.Unlock()

	jobs, err := s.store.List()
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}
	ran := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		if !job.Due(s.cfg.Clock.Now()) {
			continue
		}
		h, ok := s.handler(job.Name)
		if !ok {
			s.logger.Warn().Str("job", job.Name).Msg("no handler for due job, skipped")
			continue
		}
		if err := s.run(ctx, job, h); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

func (s *Scheduler) run(ctx context.Context, job Job, h Handler) error {
	runID := uuid.NewString()
	log := s.logger.With().Str("job", job.Name).Str("run_id", runID).Int("attempt", job.Attempts+1).Logger()

	runCtx := logging.ContextWithNewCorrelationID(ctx)
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.cfg.JobTimeout)
		defer cancel()
	}

	res, runErr := safeRun(runCtx, h)
	now := s.cfg.Clock.Now()

	job.LastRun = now
	job.LastRunID = runID
	job.LastResult = res
	job.LastError = ""
	if runErr != nil {
		job.LastError = runErr.Error()
	}

	switch res {
	case ResultRetry:
		job.Attempts++
		delay := s.cfg.BackOff.delayFor(job.Attempts)
		if delay == backoff.Stop {
			job.Attempts = 0
			job.NextRun = s.nextPeriod(now, job.Interval, job.Flex)
		} else {
			job.NextRun = now.Add(delay)
		}
		log.Warn().Err(runErr).Time("next_run", job.NextRun).Msg("job asked for retry")
	case ResultFailure:
		job.Attempts = 0
		job.NextRun = s.nextPeriod(now, job.Interval, job.Flex)
		log.Error().Err(runErr).Time("next_run", job.NextRun).Msg("job failed")
	default:
		job.Attempts = 0
		job.NextRun = s.nextPeriod(now, job.Interval, job.Flex)
		log.Debug().Time("next_run", job.NextRun).Msg("job succeeded")
	}
	metrics.RecordJobRun(job.Name, string(res), job.NextRun)

	if err := s.store.Put(job); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			log.Info().Msg("job cancelled while running")
			return nil
		}
		return fmt.Errorf("save job %s: %w", job.Name, err)
	}
	return nil
}

// safeRun recovers a panicking handler into a retry.
func safeRun(ctx context.Context, h Handler) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = ResultRetry, fmt.Errorf("job panicked: %v", r)
		}
	}()
	res, err = h(ctx)
	switch res {
	case ResultSuccess, ResultRetry, ResultFailure:
	default:
		res = ResultSuccess
		if err != nil {
			res = ResultRetry
		}
	}
	return res, err
}

// Runner executes due jobs in the serve process. It implements suture.Service.
type Runner struct {
	sched    *Scheduler
	interval time.Duration
	clock    clock.Clock
}

// NewRunner polls sched every interval. The first poll runs immediately.
func NewRunner(sched *Scheduler, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{sched: sched, interval: interval, clock: sched.cfg.Clock}
}

// Serve polls until ctx is cancelled.
func (r *Runner) Serve(ctx context.Context) error {
	t := r.clock.NewTicker(r.interval)
	defer t.Stop()

	r.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
			r.poll(ctx)
		}
	}
}

func (r *Runner) poll(ctx context.Context) {
	if _, err := r.sched.RunDue(ctx); err != nil && ctx.Err() == nil {
		r.sched.logger.Warn().Err(err).Msg("running due jobs failed")
	}
}

func (r *Runner) String() string { return "job-runner" }
