// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package proctable

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "serve.pid")

	if _, err := ReadPIDFile(path); !errors.Is(err, ErrNoPIDFile) {
		t.Fatalf("ReadPIDFile(missing) = %v, want ErrNoPIDFile", err)
	}
	if err := WritePIDFile(path, 4242); err != nil {
		t.Fatal(err)
	}
	pid, err := ReadPIDFile(path)
	if err != nil || pid != 4242 {
		t.Fatalf("ReadPIDFile = %d, %v", pid, err)
	}

	// Another owner's pid is left alone.
	if err := RemovePIDFile(path, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("pid file removed by a non-owner")
	}
	if err := RemovePIDFile(path, 4242); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("pid file should be gone")
	}
}

func TestMatch(t *testing.T) {
	m := Match{Names: []string{"warden"}, Args: []string{"serve"}}

	tests := []struct {
		argv []string
		want bool
	}{
		{[]string{"/usr/local/bin/warden", "serve", "--config", "x"}, true},
		{[]string{"warden", "watchdog"}, false},
		{[]string{"/usr/bin/openlist", "serve"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := m.matches(tt.argv); got != tt.want {
			t.Errorf("matches(%v) = %v, want %v", tt.argv, got, tt.want)
		}
	}
}

func TestLookup_FindsChild(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command(sleep, "30")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	pidFile := filepath.Join(t.TempDir(), "child.pid")
	if err := WritePIDFile(pidFile, cmd.Process.Pid); err != nil {
		t.Fatal(err)
	}

	in := New()
	p, ok, err := in.Lookup(context.Background(), Match{PIDFile: pidFile, Names: []string{"sleep"}, Args: []string{"30"}})
	if err != nil || !ok {
		t.Fatalf("Lookup() = %v, %v, %v", p, ok, err)
	}
	if int(p.PID) != cmd.Process.Pid {
		t.Errorf("PID = %d, want %d", p.PID, cmd.Process.Pid)
	}
	if !in.Alive(context.Background(), p.PID) {
		t.Error("Alive() should be true for a running child")
	}
}

func TestLookup_NotFound(t *testing.T) {
	in := New()
	_, ok, err := in.Lookup(context.Background(), Match{Names: []string{"warden-test-no-such-binary"}})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no match")
	}
}
