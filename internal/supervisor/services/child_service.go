// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"fmt"
	"time"
)

// ChildCloser matches *managed.Service.
type ChildCloser interface {
	Close(ctx context.Context, timeout time.Duration) error
}

// ChildService ties the managed server process to the supervisor tree.
//
// Starting the child is the engine's job; this service only blocks until
// the tree shuts down and then closes the child, which stops a process this
// warden launched and leaves an adopted one running.
type ChildService struct {
	child   ChildCloser
	timeout time.Duration
	name    string
}

// NewChildService creates the wrapper. timeout bounds the child's stop.
func NewChildService(child ChildCloser, timeout time.Duration) *ChildService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ChildService{child: child, timeout: timeout, name: "managed-child"}
}

// Serve implements suture.Service.
func (s *ChildService) Serve(ctx context.Context) error {
	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), s.timeout+5*time.Second)
	defer cancel()
	if err := s.child.Close(closeCtx, s.timeout); err != nil {
		return fmt.Errorf("managed child close failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's log messages.
func (s *ChildService) String() string {
	return s.name
}
