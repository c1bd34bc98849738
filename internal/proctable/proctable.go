// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package proctable inspects the OS process table. It answers "is the
// process described by this pid file and command line alive?" for the
// guardian (main and watchdog processes) and for the managed service when it
// re-adopts a server left running by a previous serve process.
package proctable

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrNoPIDFile is returned by ReadPIDFile when the file does not exist.
var ErrNoPIDFile = errors.New("pid file not found")

// Match describes a process.
type Match struct {
	// PIDFile is consulted first. Optional.
	PIDFile string

	// Names are accepted base names of argv[0] (e.g. "warden", "openlist").
	Names []string

	// Args must all appear in argv[1:] (e.g. "serve").
	Args []string
}

// Proc is a live process.
type Proc struct {
	PID     int32
	Cmdline []string
	Started time.Time
}

// Inspector looks processes up with gopsutil.
type Inspector struct {
	// Self is excluded from scans. Defaults to os.Getpid().
	Self int32
}

// New returns an inspector that ignores the calling process.
func New() *Inspector {
	return &Inspector{Self: int32(os.Getpid())}
}

// Lookup finds the process described by m. The pid file is trusted only
// when its process still matches, otherwise the whole table is scanned.
func (in *Inspector) Lookup(ctx context.Context, m Match) (Proc, bool, error) {
	if m.PIDFile != "" {
		if pid, err := ReadPIDFile(m.PIDFile); err == nil {
			if p, ok := in.inspect(ctx, int32(pid), m); ok {
				return p, true, nil
			}
		}
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return Proc{}, false, fmt.Errorf("list processes: %w", err)
	}
	for _, pp := range procs {
		if pp.Pid == in.Self {
			continue
		}
		if p, ok := in.inspect(ctx, pp.Pid, m); ok {
			return p, true, nil
		}
	}
	return Proc{}, false, nil
}

// Alive reports whether pid exists and is not a zombie.
func (in *Inspector) Alive(ctx context.Context, pid int32) bool {
	ok, err := process.PidExistsWithContext(ctx, pid)
	if err != nil || !ok {
		return false
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return false
	}
	return !isZombie(ctx, p)
}

func (in *Inspector) inspect(ctx context.Context, pid int32, m Match) (Proc, bool) {
	if pid <= 0 || pid == in.Self {
		return Proc{}, false
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return Proc{}, false
	}
	argv, err := p.CmdlineSliceWithContext(ctx)
	if err != nil || !m.matches(argv) || isZombie(ctx, p) {
		return Proc{}, false
	}
	out := Proc{PID: pid, Cmdline: argv}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil {
		out.Started = time.UnixMilli(ms)
	}
	return out, true
}

func (m Match) matches(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	if len(m.Names) > 0 && !slices.Contains(m.Names, filepath.Base(argv[0])) {
		return false
	}
	for _, want := range m.Args {
		if !slices.Contains(argv[1:], want) {
			return false
		}
	}
	return true
}

func isZombie(ctx context.Context, p *process.Process) bool {
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(status, process.Zombie)
}

// WritePIDFile atomically writes pid to path.
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil { //nolint:gosec // pid files are world-readable
		return fmt.Errorf("write pid file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace pid file: %w", err)
	}
	return nil
}

// ReadPIDFile returns the pid stored at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNoPIDFile
	}
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s", path)
	}
	return pid, nil
}

// RemovePIDFile deletes path if it still records pid.
func RemovePIDFile(path string, pid int) error {
	cur, err := ReadPIDFile(path)
	if errors.Is(err, ErrNoPIDFile) {
		return nil
	}
	if err != nil || cur != pid {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}
