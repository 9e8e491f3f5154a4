// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the chi router: probes and metrics are unthrottled,
// the websocket upgrade endpoint is rate limited per client IP.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(h.cfg.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if h.cfg.UpgradeRatePerMinute > 0 {
			r.Use(httprate.LimitByIP(h.cfg.UpgradeRatePerMinute, time.Minute))
		}
		r.Get("/ws", h.WebSocket)
	})

	return r
}

// corsOrigins keeps preflight behavior aligned with the websocket origin
// whitelist. An empty whitelist stays same-origin only.
func corsOrigins(allowed []string) []string {
	if len(allowed) == 0 {
		return []string{}
	}
	return allowed
}
