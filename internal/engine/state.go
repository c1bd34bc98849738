// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package engine

import (
	"sync"
	"sync/atomic"
)

// ServiceState is the process-wide view of the managed service. It is never
// persisted: after a restart, running is rebuilt by querying the service.
//
// running is written only by the engine. instance is a non-owning reference
// to the live service handle used for direct stops; it is set whenever
// running becomes true, so running implies instance != nil.
type ServiceState struct {
	running atomic.Bool

	mu       sync.RWMutex
	instance ManagedService
}

// Running returns the last observed state.
func (s *ServiceState) Running() bool {
	return s.running.Load()
}

// Instance returns the live handle, or nil when the service is not running.
func (s *ServiceState) Instance() ManagedService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instance
}

// markRunning records a running service and reports whether this changed
// the cached state.
func (s *ServiceState) markRunning(inst ManagedService) bool {
	s.mu.Lock()
	s.instance = inst
	s.mu.Unlock()
	return !s.running.Swap(true)
}

// markStopped records a stopped service and reports whether this changed
// the cached state.
func (s *ServiceState) markStopped() bool {
	changed := s.running.Swap(false)
	s.mu.Lock()
	s.instance = nil
	s.mu.Unlock()
	return changed
}
