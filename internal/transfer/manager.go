// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/metrics"
	"github.com/boxwire/boxwire/internal/realtime"
)

// defaultTimeout reaps a transfer with no progress report for this long.
const defaultTimeout = 2 * time.Minute

// parkInterval caps the sweep sleep when no transfer is active.
const parkInterval = time.Minute

// Errors callers branch on.
var (
	// ErrUnknownTransfer indicates an operation naming a transfer id that
	// does not exist or already finished and was reaped.
	ErrUnknownTransfer = errors.New("transfer: unknown transfer")

	// ErrFinished indicates an operation on a session already terminal.
	ErrFinished = errors.New("transfer: session already finished")

	// ErrProgressBounds indicates a progress report that shrinks the
	// received count or exceeds the announced size.
	ErrProgressBounds = errors.New("transfer: progress out of bounds")
)

// Manager owns the live transfer sessions. Every mutation broadcasts to
// the transfers room through the hub, so watchers see one ordered
// progress timeline per upload.
type Manager struct {
	hub     *realtime.Hub
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	wake chan struct{}
}

// NewManager creates a manager broadcasting through hub. A non-positive
// timeout selects the default.
func NewManager(hub *realtime.Hub, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{
		hub:      hub,
		timeout:  timeout,
		sessions: make(map[string]*Session),
		wake:     make(chan struct{}, 1),
	}
}

// Create opens a transfer session and broadcasts its initial progress.
func (m *Manager) Create(filename string, size int64) (Session, *realtime.Envelope) {
	sess := &Session{
		ID:        uuid.NewString(),
		Filename:  filename,
		Size:      size,
		State:     StateActive,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(m.timeout),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	snap := sess.snapshot()
	m.mu.Unlock()

	m.signalSweeper()
	env := m.hub.Broadcast(realtime.RoomTransfers, realtime.EventTransferProgress, snap)
	logging.Info().Str("transfer_id", sess.ID).Str("filename", filename).Int64("size", size).Msg("transfer started")
	return snap, env
}

// Progress records received bytes and extends the deadline. The count
// must never shrink or exceed the announced size.
func (m *Manager) Progress(id string, received int64) (Session, *realtime.Envelope, error) {
	m.mu.Lock()
	sess, err := m.liveLocked(id)
	if err != nil {
		m.mu.Unlock()
		return Session{}, nil, err
	}
	if received < sess.Received || received > sess.Size {
		m.mu.Unlock()
		return Session{}, nil, fmt.Errorf("received %d of %d: %w", received, sess.Size, ErrProgressBounds)
	}
	sess.Received = received
	sess.ExpiresAt = time.Now().Add(m.timeout)
	snap := sess.snapshot()
	m.mu.Unlock()

	env := m.hub.Broadcast(realtime.RoomTransfers, realtime.EventTransferProgress, snap)
	return snap, env, nil
}

// Complete finishes a transfer. The full byte count must have been
// reported (or is implied by completion).
func (m *Manager) Complete(id string) (Session, *realtime.Envelope, error) {
	snap, err := m.finish(id, StateComplete, "")
	if err != nil {
		return Session{}, nil, err
	}
	env := m.hub.Broadcast(realtime.RoomTransfers, realtime.EventTransferComplete, snap)
	logging.Info().Str("transfer_id", id).Msg("transfer complete")
	return snap, env, nil
}

// Fail aborts a transfer with a client-reported reason.
func (m *Manager) Fail(id, message string) (Session, *realtime.Envelope, error) {
	snap, err := m.finish(id, StateError, message)
	if err != nil {
		return Session{}, nil, err
	}
	env := m.hub.Broadcast(realtime.RoomTransfers, realtime.EventTransferError, snap)
	logging.Warn().Str("transfer_id", id).Str("message", message).Msg("transfer failed")
	return snap, env, nil
}

// Cancel aborts a transfer on explicit client request.
func (m *Manager) Cancel(id string) (Session, *realtime.Envelope, error) {
	snap, err := m.finish(id, StateCancelled, "")
	if err != nil {
		return Session{}, nil, err
	}
	env := m.hub.Broadcast(realtime.RoomTransfers, realtime.EventTransferError, snap)
	logging.Info().Str("transfer_id", id).Msg("transfer cancelled")
	return snap, env, nil
}

// finish moves a live session to a terminal state and drops it from the
// active set. The snapshot keeps the terminal state for the broadcast.
func (m *Manager) finish(id string, state State, message string) (Session, error) {
	m.mu.Lock()
	sess, err := m.liveLocked(id)
	if err != nil {
		m.mu.Unlock()
		return Session{}, err
	}
	if state == StateComplete {
		sess.Received = sess.Size
	}
	sess.State = state
	sess.Message = message
	snap := sess.snapshot()
	delete(m.sessions, id)
	m.mu.Unlock()

	metrics.TransferOutcomes.WithLabelValues(state.String()).Inc()
	return snap, nil
}

// liveLocked resolves a live session. Caller holds m.mu.
func (m *Manager) liveLocked(id string) (*Session, error) {
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownTransfer
	}
	if sess.State.Terminal() {
		return nil, ErrFinished
	}
	return sess, nil
}

// Snapshot returns the live sessions, oldest first, for the "transfers"
// resync scope.
func (m *Manager) Snapshot() []Session {
	m.mu.Lock()
	out := make([]Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.snapshot())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ActiveCount returns the number of live transfers.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) signalSweeper() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// nextDeadline returns the earliest live deadline, or zero when idle.
func (m *Manager) nextDeadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	var min time.Time
	for _, sess := range m.sessions {
		if min.IsZero() || sess.ExpiresAt.Before(min) {
			min = sess.ExpiresAt
		}
	}
	return min
}

// sweepExpired reaps every session whose deadline has passed, each with
// its own transfer-error broadcast.
func (m *Manager) sweepExpired(now time.Time) {
	m.mu.Lock()
	var expired []*Session
	for _, sess := range m.sessions {
		if now.After(sess.ExpiresAt) {
			sess.State = StateExpired
			sess.Message = "transfer deadline elapsed"
			expired = append(expired, sess)
			delete(m.sessions, sess.ID)
		}
	}
	m.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	for _, sess := range expired {
		metrics.TransferOutcomes.WithLabelValues(StateExpired.String()).Inc()
		m.hub.Broadcast(realtime.RoomTransfers, realtime.EventTransferError, sess.snapshot())
		logging.Warn().Str("transfer_id", sess.ID).Str("filename", sess.Filename).Msg("transfer expired")
	}
}

// Serve runs the expiry sweep until the context is canceled, sleeping
// until the earliest live deadline instead of polling.
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
func (m *Manager) String() string { return "transfer-manager" }
