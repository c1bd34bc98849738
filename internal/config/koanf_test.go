// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	checks := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"heartbeat", cfg.Supervision.HeartbeatInterval, 30 * time.Second},
		{"start settle", cfg.Supervision.StartSettleDelay, 100 * time.Millisecond},
		{"shutdown", cfg.Supervision.ShutdownTimeout, 5 * time.Second},
		{"verify", cfg.Service.VerifyDelay, time.Second},
		{"network settle", cfg.Network.SettleDelay, 2 * time.Second},
		{"network poll", cfg.Network.PollInterval, 5 * time.Second},
		{"network backoff", cfg.Network.ErrorBackoff, 10 * time.Second},
		{"guardian", cfg.Guardian.Interval, 10 * time.Second},
		{"keep-alive job", cfg.Scheduler.KeepAliveInterval, 15 * time.Minute},
		{"service-check job", cfg.Scheduler.ServiceCheckInterval, 30 * time.Minute},
		{"min backoff", cfg.Scheduler.MinBackoff, 10 * time.Second},
		{"database sync", cfg.Service.SyncInterval, 5 * time.Minute},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if cfg.Scheduler.Backoff != "linear" {
		t.Errorf("Scheduler.Backoff = %q, want linear", cfg.Scheduler.Backoff)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WARDEN_STATE_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "missing-is-not-searched.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicit missing file, got config %+v", cfg)
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Control.Socket != filepath.Join(dir, SocketName) {
		t.Errorf("Control.Socket = %q", cfg.Control.Socket)
	}
	if cfg.Settings.Path != filepath.Join(dir, SettingsName) {
		t.Errorf("Settings.Path = %q", cfg.Settings.Path)
	}
	if cfg.Scheduler.Dir != filepath.Join(dir, JobsDirName) {
		t.Errorf("Scheduler.Dir = %q", cfg.Scheduler.Dir)
	}
	if cfg.Service.WorkDir != cfg.Service.DataDir {
		t.Errorf("WorkDir = %q, want DataDir %q", cfg.Service.WorkDir, cfg.Service.DataDir)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	yaml := `
service:
  command: ["/opt/openlist/openlist", "server"]
  data_dir: /srv/openlist
supervision:
  heartbeat_interval: 45s
scheduler:
  backoff: exponential
runtime:
  state_dir: ` + dir + `
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WARDEN_NETWORK_SETTLE_DELAY", "3s")
	t.Setenv("WARDEN_LOG_LEVEL", "debug")
	t.Setenv("WARDEN_SERVICE_ENV", "A=1, B=2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := strings.Join(cfg.Service.Command, " "); got != "/opt/openlist/openlist server" {
		t.Errorf("Service.Command = %q", got)
	}
	if cfg.Supervision.HeartbeatInterval != 45*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 45s", cfg.Supervision.HeartbeatInterval)
	}
	if cfg.Network.SettleDelay != 3*time.Second {
		t.Errorf("Network.SettleDelay = %v, want 3s", cfg.Network.SettleDelay)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if len(cfg.Service.Env) != 2 || cfg.Service.Env[1] != "B=2" {
		t.Errorf("Service.Env = %v", cfg.Service.Env)
	}
	if cfg.Scheduler.Backoff != "exponential" {
		t.Errorf("Scheduler.Backoff = %q", cfg.Scheduler.Backoff)
	}
	if cfg.Runtime.ConfigFile != path {
		t.Errorf("Runtime.ConfigFile = %q, want %q", cfg.Runtime.ConfigFile, path)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"WARDEN_SUPERVISION_HEARTBEAT_INTERVAL", "supervision.heartbeat_interval"},
		{"WARDEN_LOG_LEVEL", "logging.level"},
		{"WARDEN_OPENLIST_CMD", "service.command"},
		{"WARDEN_CONFIG", ""},
		{"WARDEN_UNKNOWN_THING", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := defaultConfig()
		c.Runtime.StateDir = "/tmp/w"
		c.ResolvePaths()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"flex beyond interval", func(c *Config) { c.Scheduler.KeepAliveFlex = time.Hour }, "keep_alive_flex"},
		{"stale not above interval", func(c *Config) { c.Guardian.StaleAfter = c.Guardian.Interval }, "stale_after"},
		{"max below min backoff", func(c *Config) { c.Scheduler.MaxBackoff = time.Second }, "max_backoff"},
		{"bad backoff", func(c *Config) { c.Scheduler.Backoff = "cubic" }, "backoff"},
		{"no command", func(c *Config) { c.Service.Command = nil }, "command"},
		{"long socket", func(c *Config) { c.Control.Socket = "/" + strings.Repeat("s", 200) }, "socket"},
		{"nats url", func(c *Config) { c.Events.NATSEnabled = true; c.Events.NATSURL = "nope" }, "nats_url"},
		{"zero heartbeat", func(c *Config) { c.Supervision.HeartbeatInterval = 0 }, "heartbeat_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
