// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package managed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/clock"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/proctable"
)

var (
	// ErrNotRunning is returned by RequestShutdown when there is nothing to stop.
	ErrNotRunning = errors.New("managed service not running")

	// ErrInvalidState is returned when a transition is not allowed from the
	// current state (e.g. Start while stopping).
	ErrInvalidState = errors.New("invalid managed service state")

	// ErrExitedEarly is returned by Start when the child dies before VerifyDelay.
	ErrExitedEarly = errors.New("managed service exited during startup")

	// ErrStopTimeout is returned when the child survives SIGKILL.
	ErrStopTimeout = errors.New("managed service did not exit after SIGKILL")

	errAdoptedExited = errors.New("adopted process exited")
)

// killWait bounds the wait after SIGKILL.
const killWait = 2 * time.Second

// adoptedPoll is how often an adopted (non-child) server is checked.
const adoptedPoll = time.Second

// State is the lifecycle state of the child.
type State int32

// Lifecycle states.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config describes the child process.
type Config struct {
	Command        []string
	WorkDir        string
	DataDir        string
	Env            []string
	PIDFile        string
	PreStartDelay  time.Duration
	VerifyDelay    time.Duration
	PreStopCommand []string
	PreStopTimeout time.Duration
	SyncCommand    []string
	LogLines       int

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// ExitListener is told the child's exit error (nil for a clean exit).
type ExitListener func(err error)

// run is one launched (or adopted) child.
type run struct {
	pid     int
	cmd     *exec.Cmd // nil when adopted
	done    chan struct{}
	err     error // valid once done is closed
	started time.Time
}

// Status is a point-in-time view of the child.
type Status struct {
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Adopted   bool      `json:"adopted,omitempty"`
	LastExit  string    `json:"last_exit,omitempty"`
	Starts    int64     `json:"starts"`
}

// Service is the exec-backed managed OpenList server.
type Service struct {
	cfg       Config
	state     atomic.Int32
	starts    atomic.Int64
	inspector *proctable.Inspector
	ring      *lineRing
	logger    zerolog.Logger

	mu       sync.Mutex
	cur      *run
	lastExit string

	lmu       sync.RWMutex
	listeners map[string]ExitListener

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a stopped service.
func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = cfg.DataDir
	}
	return &Service{
		cfg:       cfg,
		inspector: proctable.New(),
		ring:      newLineRing(cfg.LogLines),
		logger:    logging.WithComponent("openlist"),
		listeners: make(map[string]ExitListener),
		closing:   make(chan struct{}),
	}
}

// State returns the lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// IsRunning reports whether the child is up and past startup verification.
func (s *Service) IsRunning() bool {
	return s.State() == StateRunning
}

// Start launches the server unless it is already running.
func (s *Service) Start(ctx context.Context) error {
	if len(s.cfg.Command) == 0 {
		return fmt.Errorf("%w: no command configured", ErrInvalidState)
	}
	if err := os.MkdirAll(s.cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if s.IsRunning() {
		return nil
	}
	if err := clock.Sleep(ctx, s.cfg.Clock, s.cfg.PreStartDelay); err != nil {
		return err
	}
	if s.IsRunning() {
		return nil
	}

	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidState, s.State())
	}

	r, err := s.launch()
	if err != nil {
		s.state.Store(int32(StateStopped))
		return err
	}

	verify := s.cfg.Clock.NewTimer(s.cfg.VerifyDelay)
	defer verify.Stop()
	select {
	case <-r.done:
		return fmt.Errorf("%w: %v", ErrExitedEarly, r.err)
	case <-verify.C():
	}

	if !s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		return fmt.Errorf("%w: %v", ErrExitedEarly, r.err)
	}
	s.starts.Add(1)
	s.logger.Info().Int("pid", r.pid).Msg("openlist server running")
	return nil
}

func (s *Service) launch() (*run, error) {
	argv := s.cfg.Command
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // command comes from operator config
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.WaitDelay = killWait
	setProcAttr(cmd)

	stdout := &lineWriter{stream: "stdout", ring: s.ring, logger: s.logger, level: zerolog.InfoLevel}
	stderr := &lineWriter{stream: "stderr", ring: s.ring, logger: s.logger, level: zerolog.WarnLevel}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", filepath.Base(argv[0]), err)
	}

	r := &run{pid: cmd.Process.Pid, cmd: cmd, done: make(chan struct{}), started: s.cfg.Clock.Now()}
	if s.cfg.PIDFile != "" {
		if err := proctable.WritePIDFile(s.cfg.PIDFile, r.pid); err != nil {
			s.logger.Warn().Err(err).Msg("could not record server pid")
		}
	}

	s.mu.Lock()
	s.cur = r
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()
		stdout.flush()
		stderr.flush()
		s.finish(r, err)
	}()
	return r, nil
}

// Adopt takes over a server left running by a previous serve process,
// found through the pid file. It reports whether a server was adopted.
func (s *Service) Adopt(ctx context.Context) (bool, error) {
	if s.cfg.PIDFile == "" || len(s.cfg.Command) == 0 {
		return false, nil
	}
	p, ok, err := s.inspector.Lookup(ctx, proctable.Match{
		PIDFile: s.cfg.PIDFile,
		Names:   []string{filepath.Base(s.cfg.Command[0])},
	})
	if err != nil || !ok {
		return false, err
	}
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return false, nil
	}

	r := &run{pid: int(p.PID), done: make(chan struct{}), started: p.Started}
	s.mu.Lock()
	s.cur = r
	s.mu.Unlock()
	if err := proctable.WritePIDFile(s.cfg.PIDFile, r.pid); err != nil {
		s.logger.Warn().Err(err).Msg("could not record server pid")
	}

	go s.watchAdopted(r)
	s.logger.Info().Int("pid", r.pid).Msg("adopted running openlist server")
	return true, nil
}

func (s *Service) watchAdopted(r *run) {
	t := s.cfg.Clock.NewTicker(adoptedPoll)
	defer t.Stop()
	for {
		select {
		case <-s.closing:
			return
		case <-t.C():
			if !s.inspector.Alive(context.Background(), int32(r.pid)) {
				s.finish(r, errAdoptedExited)
				return
			}
		}
	}
}

func (s *Service) finish(r *run, err error) {
	s.mu.Lock()
	if s.cur == r {
		s.cur = nil
	}
	if err != nil {
		s.lastExit = err.Error()
	} else {
		s.lastExit = "exit status 0"
	}
	s.mu.Unlock()

	r.err = err
	s.state.Store(int32(StateStopped))
	if s.cfg.PIDFile != "" {
		_ = proctable.RemovePIDFile(s.cfg.PIDFile, r.pid)
	}
	close(r.done)

	s.logger.Info().Int("pid", r.pid).AnErr("exit", err).Msg("openlist server exited")

	s.lmu.RLock()
	ls := make([]ExitListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		ls = append(ls, fn)
	}
	s.lmu.RUnlock()
	for _, fn := range ls {
		fn(err)
	}
}

// RequestShutdown sends SIGTERM to the server's process group, escalating to
// SIGKILL after timeout. It returns once the server has exited.
func (s *Service) RequestShutdown(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()

	if r == nil {
		return ErrNotRunning
	}
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		if s.State() == StateStopping {
			select {
			case <-r.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return fmt.Errorf("%w: cannot stop while %s", ErrInvalidState, s.State())
	}

	s.logger.Info().Int("pid", r.pid).Dur("timeout", timeout).Msg("stopping openlist server")
	if err := signalGroup(r.pid, syscall.SIGTERM); err != nil {
		s.logger.Warn().Err(err).Msg("SIGTERM failed")
	}

	grace := s.cfg.Clock.NewTimer(timeout)
	defer grace.Stop()
	select {
	case <-r.done:
		return nil
	case <-grace.C():
	case <-ctx.Done():
	}

	s.logger.Warn().Int("pid", r.pid).Msg("openlist server ignored SIGTERM, killing")
	if err := signalGroup(r.pid, syscall.SIGKILL); err != nil {
		s.logger.Warn().Err(err).Msg("SIGKILL failed")
	}
	select {
	case <-r.done:
		return nil
	case <-time.After(killWait):
		return ErrStopTimeout
	}
}

// RunPreStop runs the configured pre-stop command, e.g. a database flush.
func (s *Service) RunPreStop(ctx context.Context) error {
	return s.runHook(ctx, "pre-stop", s.cfg.PreStopCommand)
}

// RunSync flushes the server's database with SyncCommand, or with
// PreStopCommand when no sync command is configured.
func (s *Service) RunSync(ctx context.Context) error {
	argv := s.cfg.SyncCommand
	if len(argv) == 0 {
		argv = s.cfg.PreStopCommand
	}
	return s.runHook(ctx, "sync", argv)
}

// HasSync reports whether RunSync has a command to run.
func (s *Service) HasSync() bool {
	return len(s.cfg.SyncCommand) > 0 || len(s.cfg.PreStopCommand) > 0
}

func (s *Service) runHook(ctx context.Context, name string, argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	if s.cfg.PreStopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PreStopTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // command comes from operator config
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, filepath.Base(argv[0]), err, trimOutput(out))
	}
	return nil
}

// Close releases background watchers and stops a server this process
// launched. An adopted server is left running.
func (s *Service) Close(ctx context.Context, timeout time.Duration) error {
	s.closeOnce.Do(func() { close(s.closing) })

	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil || r.cmd == nil {
		return nil
	}
	err := s.RequestShutdown(ctx, timeout)
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	return err
}

// OnShutdown registers fn under tag, replacing any previous listener.
func (s *Service) OnShutdown(tag string, fn ExitListener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners[tag] = fn
}

// RemoveShutdownListener removes the listener registered under tag.
func (s *Service) RemoveShutdownListener(tag string) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	delete(s.listeners, tag)
}

// Logs returns up to n recent output lines, oldest first.
func (s *Service) Logs(n int) []LogLine {
	return s.ring.tail(n)
}

// Status returns a snapshot of the child.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.State().String(), LastExit: s.lastExit, Starts: s.starts.Load()}
	if s.cur != nil {
		st.PID = s.cur.pid
		st.StartedAt = s.cur.started
		st.Adopted = s.cur.cmd == nil
	}
	return st
}

// LocalAddress returns the host's outbound IP address, the address clients
// on the local network reach the server on, or "" when offline.
func LocalAddress() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer func() { _ = conn.Close() }()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}

func trimOutput(b []byte) string {
	const limit = 512
	if len(b) > limit {
		b = b[len(b)-limit:]
	}
	return string(b)
}
