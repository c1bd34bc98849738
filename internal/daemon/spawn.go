// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// SpawnConfig describes a detached sibling process.
type SpawnConfig struct {
	Executable string
	Args       []string
	Env        []string

	// LogFile receives the process's stdout and stderr. Empty discards them.
	LogFile string
}

// Spawn starts the process in its own process group and returns its pid
// without waiting for it. The child outlives the caller.
func Spawn(cfg SpawnConfig) (int, error) {
	exe := cfg.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("resolve executable: %w", err)
		}
		exe = self
	}

	cmd := exec.Command(exe, cfg.Args...) //nolint:gosec // relaunches this binary
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.SysProcAttr = sysProcAttr()

	var out *os.File
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o750); err != nil {
			return 0, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return 0, fmt.Errorf("open spawn log: %w", err)
		}
		out = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	err := cmd.Start()
	if out != nil {
		_ = out.Close()
	}
	if err != nil {
		return 0, fmt.Errorf("spawn %s: %w", filepath.Base(exe), err)
	}

	pid := cmd.Process.Pid
	// Reap the child if it exits while we are alive.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
