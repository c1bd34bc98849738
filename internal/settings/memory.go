// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package settings

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Memory is an in-process flag store used by tests and by single-process
// embeddings that do not need persistence.
type Memory struct {
	autoStart atomic.Bool
	override  atomic.Bool

	mu       sync.Mutex
	onChange []func(Flags)

	// SetCalls counts SetManualOverride invocations.
	SetCalls atomic.Int64
}

// NewMemory returns a store with the given initial flags.
func NewMemory(autoStart, override bool) *Memory {
	m := &Memory{}
	m.autoStart.Store(autoStart)
	m.override.Store(override)
	return m
}

// AutoStart reports the policy.
func (m *Memory) AutoStart() bool { return m.autoStart.Load() }

// ManualOverride reports the override.
func (m *Memory) ManualOverride() bool { return m.override.Load() }

// SetManualOverride sets the override and runs change hooks.
func (m *Memory) SetManualOverride(v bool) error {
	m.SetCalls.Add(1)
	m.override.Store(v)
	m.notify()
	return nil
}

// SetAutoStart sets the policy and runs change hooks.
func (m *Memory) SetAutoStart(v bool) error {
	m.autoStart.Store(v)
	m.notify()
	return nil
}

// OnChange registers fn to run synchronously after every set.
func (m *Memory) OnChange(fn func(Flags)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

func (m *Memory) notify() {
	m.mu.Lock()
	hooks := slices.Clone(m.onChange)
	m.mu.Unlock()

	f := Flags{AutoStart: m.AutoStart(), ManualOverride: m.ManualOverride()}
	for _, fn := range hooks {
		fn(f)
	}
}
