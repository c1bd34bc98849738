// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"warden.yaml",
	"warden.yml",
	"/etc/warden/config.yaml",
	"/etc/warden/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "WARDEN_CONFIG"

// envPrefix is stripped from every environment override.
const envPrefix = "WARDEN_"

func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Command:        []string{"openlist", "server"},
			DataDir:        "/var/lib/openlist",
			PreStartDelay:  100 * time.Millisecond,
			VerifyDelay:    1 * time.Second,
			PreStopTimeout: 10 * time.Second,
			SyncInterval:   5 * time.Minute,
			LogBufferLines: 500,
		},
		Supervision: SupervisionConfig{
			HeartbeatInterval: 30 * time.Second,
			StartSettleDelay:  100 * time.Millisecond,
			ShutdownTimeout:   5000 * time.Millisecond,
			WatchSettings:     true,
		},
		Network: NetworkConfig{
			Enabled:      true,
			Source:       "auto",
			SettleDelay:  2 * time.Second,
			PollInterval: 5 * time.Second,
			ErrorBackoff: 10 * time.Second,
			ProbeTimeout: 2 * time.Second,
		},
		Guardian: GuardianConfig{
			Enabled:         true,
			Interval:        10 * time.Second,
			StaleAfter:      30 * time.Second,
			RelaunchEvery:   30 * time.Second,
			RelaunchBurst:   1,
			RPCTimeout:      5 * time.Second,
			BreakerFailures: 3,
			BreakerTimeout:  30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:              true,
			KeepAliveInterval:    15 * time.Minute,
			KeepAliveFlex:        5 * time.Minute,
			ServiceCheckInterval: 30 * time.Minute,
			ServiceCheckFlex:     10 * time.Minute,
			Backoff:              "linear",
			MinBackoff:           10 * time.Second,
			MaxBackoff:           5 * time.Hour,
			PollInterval:         1 * time.Minute,
			JobTimeout:           2 * time.Minute,
		},
		Control: ControlConfig{
			RateLimit:   120,
			RateWindow:  1 * time.Minute,
			ReadTimeout: 10 * time.Second,
		},
		Events: EventsConfig{
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "warden.status",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Runtime: RuntimeConfig{
			StateDir: "/var/lib/warden",
		},
	}
}

// envAliases maps short environment names onto config keys. Anything not
// listed is mapped section-first: SCHEDULER_MIN_BACKOFF -> scheduler.min_backoff.
var envAliases = map[string]string{
	"log_level":       "logging.level",
	"log_format":      "logging.format",
	"log_caller":      "logging.caller",
	"state_dir":       "runtime.state_dir",
	"openlist_cmd":    "service.command",
	"openlist_data":   "service.data_dir",
	"socket":          "control.socket",
	"nats_url":        "events.nats_url",
	"heartbeat":       "supervision.heartbeat_interval",
	"settings_path":   "settings.path",
	"watchdog_period": "guardian.interval",
}

var sections = []string{
	"service", "supervision", "network", "guardian", "scheduler",
	"control", "settings", "events", "logging", "runtime",
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"service.command",
	"service.env",
	"service.pre_stop_command",
	"service.sync_command",
}

// Load reads configuration from path, or from the first file found by
// findConfigFile when path is empty, then applies environment overrides,
// derives state paths and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Runtime.ConfigFile = path
	cfg.ResolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc maps WARDEN_SUPERVISION_HEARTBEAT_INTERVAL to
// supervision.heartbeat_interval. Unknown names return "" and are ignored.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if key == "config" {
		return ""
	}
	if alias, ok := envAliases[key]; ok {
		return alias
	}
	for _, s := range sections {
		if rest, ok := strings.CutPrefix(key, s+"_"); ok && rest != "" {
			return s + "." + rest
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// WatchConfigFile invokes callback whenever path changes. The watch lives for
// the rest of the process.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
