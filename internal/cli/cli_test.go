// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build unix

package cli

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/scheduler"
	"github.com/tomtom215/warden/internal/settings"
)

var testBuild = BuildInfo{Version: "1.2.3", Commit: "abc123", BuildDate: "2026-01-01"}

// testEnv points every command at a fresh state directory. Relaunches spawn
// `true`, so guardian paths are exercised without starting real processes.
// The directory is short enough for a unix socket path.
func testEnv(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true(1) not found")
	}
	t.Setenv("WARDEN_CONFIG", "")
	t.Setenv("WARDEN_STATE_DIR", dir)
	t.Setenv("WARDEN_OPENLIST_DATA", filepath.Join(dir, "data"))
	t.Setenv("WARDEN_RUNTIME_EXECUTABLE", truePath)
	t.Setenv("WARDEN_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(testBuild, args, &out, &out)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("warden %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func readFlags(t *testing.T, dir string) settings.Flags {
	t.Helper()
	store, err := settings.Open(filepath.Join(dir, config.SettingsName), "test")
	if err != nil {
		t.Fatal(err)
	}
	f, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestRoot_Help(t *testing.T) {
	out := mustRun(t, "--help")
	for _, cmd := range []string{"serve", "watchdog", "jobs", "status", "start", "stop", "reconcile", "trigger", "logs", "events", "policy", "version"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help output lacks %q", cmd)
		}
	}
}

func TestVersion(t *testing.T) {
	for _, args := range [][]string{{"version"}, {"--version"}} {
		out := mustRun(t, args...)
		if !strings.Contains(out, "warden 1.2.3 (commit abc123, built 2026-01-01") {
			t.Errorf("%v output = %q", args, out)
		}
	}

	out := mustRun(t, "version", "--json")
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil || v["version"] != "1.2.3" {
		t.Errorf("json version = %q, %v", out, err)
	}
}

func TestConfigErrors(t *testing.T) {
	testEnv(t)
	if _, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "policy", "show"); err == nil {
		t.Error("missing config file accepted")
	}
	t.Setenv("WARDEN_NETWORK_SOURCE", "carrier-pigeon")
	if _, err := run(t, "policy", "show"); err == nil {
		t.Error("invalid network.source accepted")
	}
}

func TestPolicy(t *testing.T) {
	dir := testEnv(t)

	if out := mustRun(t, "policy", "show"); !strings.Contains(out, "auto-start") || !strings.Contains(out, "false") {
		t.Errorf("policy show = %q", out)
	}

	out := mustRun(t, "policy", "on")
	if !strings.Contains(out, "auto-start on") || !strings.Contains(out, "serve: relaunched") {
		t.Errorf("policy on = %q", out)
	}
	if f := readFlags(t, dir); !f.AutoStart || f.UpdatedBy != "cli" {
		t.Errorf("flags after on = %+v", f)
	}

	if out := mustRun(t, "policy", "off"); strings.Contains(out, "serve:") {
		t.Errorf("policy off touched serve: %q", out)
	}

	var f settings.Flags
	if err := json.Unmarshal([]byte(mustRun(t, "policy", "show", "--json")), &f); err != nil {
		t.Fatal(err)
	}
	if f.AutoStart {
		t.Error("auto-start still on")
	}
}

func TestStopAndStart_ServeDown(t *testing.T) {
	dir := testEnv(t)

	if out := mustRun(t, "stop"); !strings.Contains(out, "manual override saved") {
		t.Errorf("stop = %q", out)
	}
	if f := readFlags(t, dir); !f.ManualOverride {
		t.Fatal("stop did not persist the override")
	}

	// Auto-start is off, so start clears the override but launches nothing.
	out := mustRun(t, "start")
	if !strings.Contains(out, "manual override cleared: policy_noop") {
		t.Errorf("start = %q", out)
	}
	if f := readFlags(t, dir); f.ManualOverride {
		t.Error("start did not clear the override")
	}
}

func TestStatus_ServeDown(t *testing.T) {
	testEnv(t)

	out := mustRun(t, "status")
	for _, want := range []string{"serve", "not running", "auto-start", "manual override"} {
		if !strings.Contains(out, want) {
			t.Errorf("status lacks %q:\n%s", want, out)
		}
	}

	var st localStatus
	if err := json.Unmarshal([]byte(mustRun(t, "status", "--json")), &st); err != nil {
		t.Fatal(err)
	}
	if st.Serve || st.Watchdog || st.Error == "" {
		t.Errorf("local status = %+v", st)
	}
}

func TestReconcile_ServeDown(t *testing.T) {
	testEnv(t)
	if _, err := run(t, "reconcile"); err == nil {
		t.Error("reconcile without serve succeeded")
	}
	if _, err := run(t, "reconcile", "--reason", "screen-on"); err == nil {
		t.Error("unknown reason accepted")
	}
}

func TestJobs_Local(t *testing.T) {
	testEnv(t)

	if out := mustRun(t, "jobs", "run"); !strings.Contains(out, "registered 2, ran 0") {
		t.Errorf("jobs run = %q", out)
	}
	// KEEP: a second run registers nothing new.
	if out := mustRun(t, "jobs", "run"); !strings.Contains(out, "registered 0, ran 0") {
		t.Errorf("second jobs run = %q", out)
	}

	out := mustRun(t, "jobs", "list")
	if !strings.Contains(out, scheduler.JobKeepAlive) || !strings.Contains(out, scheduler.JobServiceCheck) {
		t.Errorf("jobs list = %q", out)
	}

	if out := mustRun(t, "jobs", "cancel", scheduler.JobKeepAlive); !strings.Contains(out, "cancelled keep-alive") {
		t.Errorf("jobs cancel = %q", out)
	}
	var jobs []scheduler.Job
	if err := json.Unmarshal([]byte(mustRun(t, "jobs", "list", "--json")), &jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Name != scheduler.JobServiceCheck {
		t.Errorf("jobs after cancel = %+v", jobs)
	}

	if _, err := run(t, "jobs", "cancel", "nope"); err == nil {
		t.Error("cancelling an unknown job succeeded")
	}
}

func TestJobs_Disabled(t *testing.T) {
	testEnv(t)
	t.Setenv("WARDEN_SCHEDULER_ENABLED", "false")
	if out := mustRun(t, "jobs", "run"); !strings.Contains(out, "scheduler disabled") {
		t.Errorf("jobs run = %q", out)
	}
}

func TestTrigger_BootServeDown(t *testing.T) {
	dir := testEnv(t)
	store, err := settings.Open(filepath.Join(dir, config.SettingsName), "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Update(func(f *settings.Flags) { f.AutoStart, f.ManualOverride = true, true }); err != nil {
		t.Fatal(err)
	}

	out := mustRun(t, "trigger", "boot")
	if !strings.Contains(out, "boot: serve not answering: relaunched") {
		t.Errorf("trigger boot = %q", out)
	}
	if !strings.Contains(out, "registered 2 periodic job(s)") {
		t.Errorf("boot did not register jobs: %q", out)
	}
	if f := readFlags(t, dir); f.ManualOverride {
		t.Error("boot did not clear the override")
	}
}

func TestTrigger_PolicyOffKeepsOverride(t *testing.T) {
	dir := testEnv(t)
	store, err := settings.Open(filepath.Join(dir, config.SettingsName), "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetManualOverride(true); err != nil {
		t.Fatal(err)
	}

	out := mustRun(t, "trigger", "package-updated")
	if !strings.Contains(out, "package-update: serve not answering: policy_noop") {
		t.Errorf("trigger package-updated = %q", out)
	}
	if f := readFlags(t, dir); !f.ManualOverride {
		t.Error("override cleared with auto-start off")
	}
}

func TestTrigger_Unknown(t *testing.T) {
	testEnv(t)
	if _, err := run(t, "trigger", "reboot-now"); err == nil || !strings.Contains(err.Error(), "boot, package-updated, wake") {
		t.Errorf("unknown trigger error = %v", err)
	}
}
