// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/metrics"
	"github.com/boxwire/boxwire/internal/sequence"
)

// defaultIdleTimeout disconnects sessions with no activity (frames or
// pongs) for this long; it catches half-open connections the TCP stack
// has not noticed yet.
const defaultIdleTimeout = 5 * time.Minute

// Hub owns the room registry and the state broadcaster.
//
// Rooms are created lazily on first join and deleted when their last
// member leaves. Broadcasting stamps the envelope through the sequence
// Authority and fans it out to a snapshot of the room's member set, so a
// concurrent join or leave never corrupts iteration or double-delivers.
//
// The broadcast mutex serializes stamp+fan-out: every subscriber of a
// scope observes that scope's envelopes in the same relative order, and
// resync snapshots taken through Snapshot are consistent with the
// sequence numbers they report.
type Hub struct {
	seq *sequence.Authority

	mu       sync.RWMutex
	rooms    map[string]map[*Session]struct{}
	sessions map[string]*Session

	broadcastMu sync.Mutex

	idleTimeout time.Duration
}

// NewHub creates a hub stamping through the given sequence authority.
func NewHub(seq *sequence.Authority) *Hub {
	return &Hub{
		seq:         seq,
		rooms:       make(map[string]map[*Session]struct{}),
		sessions:    make(map[string]*Session),
		idleTimeout: defaultIdleTimeout,
	}
}

// SetIdleTimeout overrides the liveness timeout. Zero disables the sweep.
func (h *Hub) SetIdleTimeout(d time.Duration) { h.idleTimeout = d }

// Sequences returns the hub's sequence authority.
func (h *Hub) Sequences() *sequence.Authority { return h.seq }

// Attach registers a connected session with the hub.
func (h *Hub) Attach(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	total := len(h.sessions)
	h.mu.Unlock()

	metrics.SessionsConnected.Set(float64(total))
	logging.Info().Str("session_id", s.id).Int("total_sessions", total).Msg("session connected")
}

// Detach removes a session from the hub and every room it joined, and
// closes its send queue. Safe to call more than once.
func (h *Hub) Detach(s *Session) {
	h.mu.Lock()
	_, known := h.sessions[s.id]
	if known {
		delete(h.sessions, s.id)
		for room := range s.rooms {
			h.removeFromRoomLocked(s, room)
		}
		s.rooms = make(map[string]struct{})
	}
	total := len(h.sessions)
	h.mu.Unlock()

	if !known {
		return
	}
	s.closeOnce.Do(func() { close(s.send) })

	metrics.SessionsConnected.Set(float64(total))
	logging.Info().Str("session_id", s.id).Int("total_sessions", total).Msg("session disconnected")
}

// Join subscribes the session to a room and returns the current global
// sequence. Joining a room twice is a no-op returning the same answer.
func (h *Hub) Join(s *Session, room string) uint64 {
	h.mu.Lock()
	if _, ok := h.sessions[s.id]; ok {
		if _, member := s.rooms[room]; !member {
			members, ok := h.rooms[room]
			if !ok {
				members = make(map[*Session]struct{})
				h.rooms[room] = members
			}
			members[s] = struct{}{}
			s.rooms[room] = struct{}{}
			metrics.RoomMembers.WithLabelValues(room).Set(float64(len(members)))
		}
	}
	h.mu.Unlock()

	return h.seq.CurrentGlobal()
}

// Leave unsubscribes the session from a room. Leaving a room the session
// never joined is a no-op.
func (h *Hub) Leave(s *Session, room string) {
	h.mu.Lock()
	if _, member := s.rooms[room]; member {
		delete(s.rooms, room)
		h.removeFromRoomLocked(s, room)
	}
	h.mu.Unlock()
}

// removeFromRoomLocked drops s from the room's member set and deletes the
// room when it empties. Caller holds h.mu.
func (h *Hub) removeFromRoomLocked(s *Session, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	metrics.RoomMembers.WithLabelValues(room).Set(float64(len(members)))
}

// Broadcast stamps and fans out an unscoped envelope to a room.
func (h *Hub) Broadcast(room, eventType string, data any) *Envelope {
	return h.broadcast([]string{room}, eventType, data, "")
}

// BroadcastScoped stamps and fans out an envelope tied to one aggregate.
// The scope sequence advances along with the global one.
func (h *Hub) BroadcastScoped(room, eventType string, data any, scopeID string) *Envelope {
	return h.broadcast([]string{room}, eventType, data, scopeID)
}

// BroadcastToRooms stamps one envelope and fans it out to the union of
// several rooms' members. A session subscribed to more than one of the
// rooms receives the envelope exactly once.
func (h *Hub) BroadcastToRooms(rooms []string, eventType string, data any, scopeID string) *Envelope {
	return h.broadcast(rooms, eventType, data, scopeID)
}

func (h *Hub) broadcast(rooms []string, eventType string, data any, scopeID string) *Envelope {
	h.broadcastMu.Lock()
	defer h.broadcastMu.Unlock()

	env := newEnvelope(eventType, data)
	env.ServerSeq = h.seq.NextGlobal()
	if scopeID != "" {
		env.ScopeID = scopeID
		env.ScopeSeq = h.seq.NextScoped(scopeID)
	}

	frame, err := env.Marshal()
	if err != nil {
		logging.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal envelope")
		return env
	}

	// Snapshot the member set before iterating; join/leave during fan-out
	// must not corrupt iteration. The set union keeps a session in several
	// of the target rooms from receiving the envelope twice.
	h.mu.RLock()
	seen := make(map[*Session]struct{})
	for _, room := range rooms {
		for s := range h.rooms[room] {
			seen[s] = struct{}{}
		}
	}
	h.mu.RUnlock()

	members := make([]*Session, 0, len(seen))
	for s := range seen {
		members = append(members, s)
	}

	// Deterministic delivery order.
	sort.Slice(members, func(i, j int) bool {
		return members[i].ordinal < members[j].ordinal
	})

	var overflowed []*Session
	for _, s := range members {
		if s.push(frame) {
			s.markDelivered(env.ServerSeq)
		} else {
			overflowed = append(overflowed, s)
		}
	}

	for _, s := range overflowed {
		metrics.SendQueueDrops.Inc()
		logging.Warn().Str("session_id", s.id).Strs("rooms", rooms).Msg("send queue full, disconnecting slow session")
		h.Detach(s)
	}

	metrics.EnvelopesBroadcast.WithLabelValues(eventType).Inc()
	return env
}

// Snapshot runs fn while holding the broadcast serialization and returns
// its result together with the sequence numbers at snapshot time. No
// broadcast can interleave, so the returned state reflects exactly the
// returned sequences.
func (h *Hub) Snapshot(scopeID string, fn func() (any, error)) (data any, serverSeq, scopeSeq uint64, err error) {
	h.broadcastMu.Lock()
	defer h.broadcastMu.Unlock()

	data, err = fn()
	if err != nil {
		return nil, 0, 0, err
	}
	serverSeq = h.seq.CurrentGlobal()
	if scopeID != "" {
		scopeSeq = h.seq.CurrentScoped(scopeID)
	}
	return data, serverSeq, scopeSeq, nil
}

// SessionCount returns the number of attached sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RoomCount returns the number of live (non-empty) rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// InRoom reports whether the session is currently a member of room.
func (h *Hub) InRoom(s *Session, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// RunWithContext runs the hub's liveness sweep until the context is
// canceled, then closes every session. Designed for suture supervision.
func (h *Hub) RunWithContext(ctx context.Context) error {
	sweep := time.NewTicker(30 * time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case <-sweep.C:
			h.reapIdle()
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error { return h.RunWithContext(ctx) }

// String identifies the hub in suture's event log.
func (h *Hub) String() string { return "hub" }

// reapIdle disconnects sessions whose liveness timestamp is stale.
func (h *Hub) reapIdle() {
	if h.idleTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-h.idleTimeout)

	h.mu.RLock()
	var stale []*Session
	for _, s := range h.sessions {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		logging.Warn().Str("session_id", s.id).Time("last_active", s.LastActive()).Msg("disconnecting idle session")
		h.Detach(s)
	}
}

// closeAll detaches every session during shutdown.
func (h *Hub) closeAll() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ordinal < sessions[j].ordinal
	})
	for _, s := range sessions {
		h.Detach(s)
	}
	logging.Info().Str("component", "hub").Int("sessions_closed", len(sessions)).Msg("hub stopped")
}
