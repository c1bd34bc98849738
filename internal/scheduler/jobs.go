// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package scheduler

import (
	"context"
	"errors"

	"github.com/tomtom215/warden/internal/config"
)

// Specs returns the keep-alive and service-check jobs configured in cfg.
func Specs(cfg config.SchedulerConfig) []Spec {
	return []Spec{
		{Name: JobKeepAlive, Interval: cfg.KeepAliveInterval, Flex: cfg.KeepAliveFlex},
		{Name: JobServiceCheck, Interval: cfg.ServiceCheckInterval, Flex: cfg.ServiceCheckFlex},
	}
}

// Check is one step of a fallback job. An error means the step failed in a
// way the next attempt may fix.
type Check func(ctx context.Context) error

// Checks runs every check, even after one fails, and asks for a retry if
// any of them failed.
func Checks(checks ...Check) Handler {
	return func(ctx context.Context) (Result, error) {
		var errs []error
		for _, c := range checks {
			if err := c(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return ResultRetry, err
		}
		return ResultSuccess, nil
	}
}
