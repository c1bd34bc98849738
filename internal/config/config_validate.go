// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"fmt"
	"net/url"

	"github.com/tomtom215/warden/internal/validation"
)

// Validate checks struct tags first, then the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateGuardian(); err != nil {
		return err
	}
	if err := c.validateControl(); err != nil {
		return err
	}
	return c.validateEvents()
}

func (c *Config) validateScheduler() error {
	s := c.Scheduler
	if s.KeepAliveFlex > s.KeepAliveInterval {
		return fmt.Errorf("scheduler.keep_alive_flex (%s) must not exceed keep_alive_interval (%s)",
			s.KeepAliveFlex, s.KeepAliveInterval)
	}
	if s.ServiceCheckFlex > s.ServiceCheckInterval {
		return fmt.Errorf("scheduler.service_check_flex (%s) must not exceed service_check_interval (%s)",
			s.ServiceCheckFlex, s.ServiceCheckInterval)
	}
	if s.MaxBackoff < s.MinBackoff {
		return fmt.Errorf("scheduler.max_backoff (%s) must be at least min_backoff (%s)",
			s.MaxBackoff, s.MinBackoff)
	}
	return nil
}

// validateGuardian requires the stale threshold to outlast at least one
// watchdog tick, otherwise the main process would relaunch a healthy watchdog.
func (c *Config) validateGuardian() error {
	if c.Guardian.StaleAfter <= c.Guardian.Interval {
		return fmt.Errorf("guardian.stale_after (%s) must exceed guardian.interval (%s)",
			c.Guardian.StaleAfter, c.Guardian.Interval)
	}
	return nil
}

func (c *Config) validateControl() error {
	return validation.ValidateStruct(&struct {
		Socket string `koanf:"control.socket" validate:"sockpath"`
	}{c.Control.Socket})
}

func (c *Config) validateEvents() error {
	if !c.Events.NATSEnabled {
		return nil
	}
	u, err := url.Parse(c.Events.NATSURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("events.nats_url %q must be a URL like nats://host:4222", c.Events.NATSURL)
	}
	return nil
}
