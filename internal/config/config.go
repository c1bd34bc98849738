// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"path/filepath"
	"time"
)

// Config holds the configuration shared by every warden process.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values from defaultConfig()
//  2. Config File: optional YAML file (WARDEN_CONFIG or DefaultConfigPaths)
//  3. Environment Variables: WARDEN_<SECTION>_<KEY> overrides
//
// Paths left empty under runtime.state_dir are derived by ResolvePaths, so a
// minimal config only needs service.command.
type Config struct {
	Service     ServiceConfig     `koanf:"service"`
	Supervision SupervisionConfig `koanf:"supervision"`
	Network     NetworkConfig     `koanf:"network"`
	Guardian    GuardianConfig    `koanf:"guardian"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
	Control     ControlConfig     `koanf:"control"`
	Settings    SettingsConfig    `koanf:"settings"`
	Events      EventsConfig      `koanf:"events"`
	Logging     LoggingConfig     `koanf:"logging"`
	Runtime     RuntimeConfig     `koanf:"runtime"`
}

// ServiceConfig describes the managed OpenList server process.
type ServiceConfig struct {
	// Command is the argv of the server, e.g. ["/usr/bin/openlist", "server"].
	Command []string `koanf:"command" validate:"argv"`

	// WorkDir is the child's working directory. Empty means DataDir.
	WorkDir string `koanf:"work_dir"`

	// DataDir is created before every start.
	DataDir string `koanf:"data_dir" validate:"required"`

	// Env is appended to the inherited environment (KEY=VALUE entries).
	Env []string `koanf:"env"`

	// PreStartDelay is the pause between the first and second running check
	// before a start is issued. Default: 100ms
	PreStartDelay time.Duration `koanf:"pre_start_delay" validate:"gte=0"`

	// VerifyDelay is how long after launch the child must still be alive for
	// the start to count. Default: 1s
	VerifyDelay time.Duration `koanf:"verify_delay" validate:"gte=0"`

	// PreStopCommand runs before a manual stop (e.g. flushing the database).
	PreStopCommand []string `koanf:"pre_stop_command"`

	// PreStopTimeout bounds PreStopCommand and SyncCommand. Default: 10s
	PreStopTimeout time.Duration `koanf:"pre_stop_timeout" validate:"gt=0"`

	// SyncCommand flushes the server's database while it keeps running.
	// Empty means PreStopCommand.
	SyncCommand []string `koanf:"sync_command"`

	// SyncInterval is the period of the database flush. Zero disables it.
	// Default: 5m
	SyncInterval time.Duration `koanf:"sync_interval" validate:"gte=0"`

	// LogBufferLines is the size of the in-memory output ring. Default: 500
	LogBufferLines int `koanf:"log_buffer_lines" validate:"gt=0"`
}

// SupervisionConfig tunes the reconciliation engine and heartbeat loop.
type SupervisionConfig struct {
	// HeartbeatInterval is the fixed reconcile tick. Default: 30s
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`

	// StartSettleDelay is the wait before re-checking a failed start for a
	// concurrent success. Default: 100ms
	StartSettleDelay time.Duration `koanf:"start_settle_delay" validate:"gte=0"`

	// ShutdownTimeout is passed to the managed service on manual stop.
	// Default: 5s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// WatchSettings reconciles when the settings file enables auto-start.
	WatchSettings bool `koanf:"watch_settings"`
}

// NetworkConfig tunes the connectivity observer.
type NetworkConfig struct {
	Enabled bool `koanf:"enabled"`

	// Source selects the connectivity feed: auto, netlink or poll.
	Source string `koanf:"source" validate:"oneof=auto netlink poll"`

	// SettleDelay is the wait after a connect before reconciling. Default: 2s
	SettleDelay time.Duration `koanf:"settle_delay" validate:"gte=0"`

	// PollInterval is the probe interval of the polling source. Default: 5s
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`

	// ErrorBackoff is the pause after a failed probe. Default: 10s
	ErrorBackoff time.Duration `koanf:"error_backoff" validate:"gt=0"`

	// ProbeAddress, when set, makes the poll source dial host:port instead
	// of only inspecting interfaces and routes.
	ProbeAddress string `koanf:"probe_address" validate:"omitempty,hostname_port"`

	// ProbeTimeout bounds a single dial probe. Default: 2s
	ProbeTimeout time.Duration `koanf:"probe_timeout" validate:"gt=0"`
}

// GuardianConfig tunes the dual-process guardian.
type GuardianConfig struct {
	// Enabled makes the main process keep a watchdog alive.
	Enabled bool `koanf:"enabled"`

	// Interval is the watchdog inspection period. Default: 10s
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// StaleAfter is the age after which a liveness stamp counts as missing.
	// Default: 30s
	StaleAfter time.Duration `koanf:"stale_after" validate:"gt=0"`

	// RelaunchEvery and RelaunchBurst throttle process relaunches.
	RelaunchEvery time.Duration `koanf:"relaunch_every" validate:"gt=0"`
	RelaunchBurst int           `koanf:"relaunch_burst" validate:"gt=0"`

	// RPCTimeout bounds one call to the main process. Default: 5s
	RPCTimeout time.Duration `koanf:"rpc_timeout" validate:"gt=0"`

	// BreakerFailures consecutive RPC failures open the circuit for BreakerTimeout.
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gt=0"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// SchedulerConfig tunes the durable periodic jobs.
type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`

	// Dir is the badger directory. Derived from runtime.state_dir when empty.
	Dir string `koanf:"dir"`

	KeepAliveInterval    time.Duration `koanf:"keep_alive_interval" validate:"gt=0"`
	KeepAliveFlex        time.Duration `koanf:"keep_alive_flex" validate:"gte=0"`
	ServiceCheckInterval time.Duration `koanf:"service_check_interval" validate:"gt=0"`
	ServiceCheckFlex     time.Duration `koanf:"service_check_flex" validate:"gte=0"`

	// Backoff is the retry policy: linear or exponential.
	Backoff    string        `koanf:"backoff" validate:"oneof=linear exponential"`
	MinBackoff time.Duration `koanf:"min_backoff" validate:"gt=0"`
	MaxBackoff time.Duration `koanf:"max_backoff" validate:"gt=0"`

	// PollInterval is how often the in-process runner looks for due jobs.
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`

	// JobTimeout bounds one job execution.
	JobTimeout time.Duration `koanf:"job_timeout" validate:"gt=0"`
}

// ControlConfig configures the unix-socket control API of the main process.
type ControlConfig struct {
	Socket      string        `koanf:"socket"`
	RateLimit   int           `koanf:"rate_limit" validate:"gt=0"`
	RateWindow  time.Duration `koanf:"rate_window" validate:"gt=0"`
	ReadTimeout time.Duration `koanf:"read_timeout" validate:"gt=0"`
}

// SettingsConfig locates the persisted flag file shared by both processes.
type SettingsConfig struct {
	Path string `koanf:"path"`
}

// EventsConfig configures optional status fan-out to NATS.
type EventsConfig struct {
	NATSEnabled bool   `koanf:"nats_enabled"`
	NATSURL     string `koanf:"nats_url" validate:"required_if=NATSEnabled true"`
	Subject     string `koanf:"subject" validate:"required_if=NATSEnabled true"`
}

// LoggingConfig mirrors logging.Config for koanf.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// RuntimeConfig holds process-level paths.
type RuntimeConfig struct {
	// StateDir holds pid files, locks, sockets and the job store.
	StateDir string `koanf:"state_dir" validate:"required"`

	// Executable is the warden binary used for relaunches. Empty means the
	// running executable.
	Executable string `koanf:"executable"`

	// ConfigFile is the file the configuration was loaded from, forwarded to
	// relaunched processes. Set by the loader.
	ConfigFile string `koanf:"-"`
}

// Well-known file names under runtime.state_dir.
const (
	ServeLockName    = "serve.lock"
	WatchdogLockName = "watchdog.lock"
	JobsLockName     = "jobs.lock"
	ServePIDName     = "serve.pid"
	WatchdogPIDName  = "watchdog.pid"
	ServicePIDName   = "openlist.pid"
	LivenessName     = "watchdog.alive"
	SocketName       = "warden.sock"
	SettingsName     = "settings.json"
	JobsDirName      = "jobs"
)

// StatePath returns name joined under the state directory.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.Runtime.StateDir, name)
}

// ResolvePaths fills empty derived paths from the state directory.
func (c *Config) ResolvePaths() {
	if c.Control.Socket == "" {
		c.Control.Socket = c.StatePath(SocketName)
	}
	if c.Settings.Path == "" {
		c.Settings.Path = c.StatePath(SettingsName)
	}
	if c.Scheduler.Dir == "" {
		c.Scheduler.Dir = c.StatePath(JobsDirName)
	}
	if c.Service.WorkDir == "" {
		c.Service.WorkDir = c.Service.DataDir
	}
}
