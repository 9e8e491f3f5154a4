// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package api exposes Boxwire's HTTP surface: the websocket upgrade
// endpoint that carries the sync protocol, health probes, and the
// Prometheus scrape endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/boxwire/boxwire/internal/config"
	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/realtime"
)

// Handler serves the HTTP endpoints. All protocol traffic flows over the
// single websocket endpoint; plain HTTP is limited to probes and metrics.
type Handler struct {
	hub    *realtime.Hub
	router *realtime.Router
	cfg    config.ServerConfig
}

// NewHandler builds the endpoint handler over the realtime layer.
func NewHandler(hub *realtime.Hub, router *realtime.Router, cfg config.ServerConfig) *Handler {
	return &Handler{hub: hub, router: router, cfg: cfg}
}

// upgrader builds the websocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkOrigin validates the Origin header against the configured
// whitelist. Requests without an Origin header are allowed: they come
// from non-browser clients (the appliance panel firmware, scripts),
// which browsers never produce.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket upgrade rejected from unauthorized origin")
	return false
}

// WebSocket upgrades the connection and hands it to the realtime layer.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := realtime.NewSession(h.hub, conn)
	h.hub.Attach(sess)
	sess.Start(h.router)
}

// Healthz reports process liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.hub.SessionCount(),
		"rooms":    h.hub.RoomCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}
