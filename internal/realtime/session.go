// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/boxwire/boxwire/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB

	// sendQueueSize bounds the per-session outbound queue. A session whose
	// queue overflows is disconnected rather than allowed to stall the
	// broadcaster (drop the slow consumer, not the message for everyone).
	sendQueueSize = 256
)

// sessionOrdinal generates unique, monotonically increasing ordinals for
// sessions so broadcast fan-out can iterate in a consistent order.
var sessionOrdinal atomic.Uint64

// Session is the per-socket state: identity, joined rooms, last delivered
// sequence, and liveness. It is mutated only by its own pumps and by the
// hub's membership bookkeeping; all outbound delivery is serialized
// through the bounded send queue.
type Session struct {
	id      string
	ordinal uint64
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte

	createdAt  time.Time
	lastActive atomic.Int64 // unix nanoseconds

	// lastSeq is the newest global sequence delivered to this session,
	// updated on envelope delivery and on sync:complete.
	lastSeq atomic.Uint64

	// rooms this session has joined. Guarded by hub.mu.
	rooms map[string]struct{}

	closeOnce sync.Once
}

// NewSession creates a session for an upgraded connection. The session is
// inert until Start is called; tests may pass a nil conn and drive the
// hub directly.
func NewSession(hub *Hub, conn *websocket.Conn) *Session {
	s := &Session{
		id:        uuid.NewString(),
		ordinal:   sessionOrdinal.Add(1),
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendQueueSize),
		createdAt: time.Now(),
		rooms:     make(map[string]struct{}),
	}
	s.Touch()
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session's creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Touch updates the session's liveness timestamp.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the session's most recent activity.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// LastSeq returns the newest global sequence delivered to this session.
func (s *Session) LastSeq() uint64 { return s.lastSeq.Load() }

// markDelivered records seq if it advances the session's last-seen value.
func (s *Session) markDelivered(seq uint64) {
	for {
		cur := s.lastSeq.Load()
		if seq <= cur || s.lastSeq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// push enqueues a pre-marshaled frame without blocking. It reports false
// when the queue is full, in which case the caller must detach the
// session.
func (s *Session) push(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Start begins the session's read and write pumps. Inbound frames are
// handed to the router; the read pump owns detach-on-disconnect.
func (s *Session) Start(router *Router) {
	go s.writePump()
	go s.readPump(router)
}

// readPump pumps inbound frames from the socket into the router.
func (s *Session) readPump(router *Router) {
	defer func() {
		s.hub.Detach(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Str("session_id", s.id).Msg("failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		s.Touch()
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("session_id", s.id).Msg("unexpected websocket close")
			}
			return
		}
		s.Touch()
		router.Dispatch(s, raw)
	}
}

// writePump pumps queued frames to the socket and keeps the connection
// alive with protocol-level pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Str("session_id", s.id).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// The hub closed the queue.
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Str("session_id", s.id).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
