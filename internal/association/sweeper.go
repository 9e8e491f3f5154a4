// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package association

import (
	"context"
	"time"

	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/metrics"
	"github.com/boxwire/boxwire/internal/realtime"
)

// parkInterval caps how long the sweeper sleeps with no live session, so
// a missed wake signal can never delay an expiry indefinitely.
const parkInterval = time.Minute

// signalSweeper nudges the sweep loop after a deadline change. The
// channel holds one pending signal; coalescing extra nudges is fine
// because the loop recomputes the deadline on every wake.
func (m *Manager) signalSweeper() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// nextDeadline returns the live session's expiry, or zero when idle.
func (m *Manager) nextDeadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.State().Terminal() {
		return time.Time{}
	}
	return m.active.ExpiresAt()
}

// sweepExpired times out the live session when its deadline has passed.
// The compare-and-swap inside expire guarantees the timeout transition
// happens exactly once even when a detection arrives concurrently.
func (m *Manager) sweepExpired(now time.Time) {
	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()
	if sess == nil || sess.State().Terminal() || now.Before(sess.ExpiresAt()) {
		return
	}

	payload, ok := sess.expire()
	if !ok {
		return
	}
	metrics.AssociationOutcomes.WithLabelValues(StateTimeout.String()).Inc()
	m.hub.Broadcast(realtime.RoomAssociations, realtime.EventAssociation, payload)
	logging.Info().Str("session_id", sess.ID).Msg("association timed out")
}

// Serve runs the expiry sweep until the context is canceled. The loop
// sleeps until the next deadline rather than polling; Start and Override
// wake it whenever the deadline moves.
func (m *Manager) Serve(ctx context.Context) error {
	timer := time.NewTimer(parkInterval)
	defer timer.Stop()

	for {
		wait := parkInterval
		if deadline := m.nextDeadline(); !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake:
		case <-timer.C:
			m.sweepExpired(time.Now())
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (m *Manager) String() string { return "association-manager" }
