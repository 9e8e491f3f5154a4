// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package sequence issues the monotonically increasing numbers that order
// every state broadcast: one global counter for the whole process, plus one
// counter per scope (a scope is a single mutable aggregate, e.g. one
// playlist).
//
// Counters are process-lifetime only. After a restart they begin again at
// zero and clients recover through a full resync; this is an explicit
// design choice, not an oversight.
package sequence

import (
	"sync"
	"sync/atomic"
)

// Authority issues global and per-scope sequence numbers.
//
// All methods are safe for concurrent use. NextGlobal and NextScoped must
// only be called after the state change they stamp has been applied, so a
// failed mutation never consumes a number and subscribers never observe a
// gap for a change that did not happen.
type Authority struct {
	global atomic.Uint64

	mu     sync.Mutex
	scoped map[string]*atomic.Uint64
}

// NewAuthority creates an Authority with all counters at zero.
func NewAuthority() *Authority {
	return &Authority{scoped: make(map[string]*atomic.Uint64)}
}

// NextGlobal returns the next global sequence number, starting at 1.
func (a *Authority) NextGlobal() uint64 {
	return a.global.Add(1)
}

// CurrentGlobal returns the most recently issued global sequence number,
// or 0 if none has been issued.
func (a *Authority) CurrentGlobal() uint64 {
	return a.global.Load()
}

// NextScoped returns the next sequence number for the given scope,
// starting at 1 for a scope never seen before.
func (a *Authority) NextScoped(scopeID string) uint64 {
	return a.counter(scopeID).Add(1)
}

// CurrentScoped returns the most recently issued sequence number for the
// given scope, or 0 if the scope has never been stamped.
func (a *Authority) CurrentScoped(scopeID string) uint64 {
	a.mu.Lock()
	c, ok := a.scoped[scopeID]
	a.mu.Unlock()
	if !ok {
		return 0
	}
	return c.Load()
}

// Forget drops the counter for a scope. Called when the aggregate behind
// the scope is deleted so the map does not grow without bound.
func (a *Authority) Forget(scopeID string) {
	a.mu.Lock()
	delete(a.scoped, scopeID)
	a.mu.Unlock()
}

func (a *Authority) counter(scopeID string) *atomic.Uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.scoped[scopeID]
	if !ok {
		c = &atomic.Uint64{}
		a.scoped[scopeID] = c
	}
	return c
}
