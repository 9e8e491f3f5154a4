// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package main is the entry point for the Boxwire control plane.
//
// Boxwire is the server-authoritative state synchronization layer of a
// tag-driven audio playback appliance. It owns the playlist catalog,
// the player aggregate, tag association negotiations, and transfer
// session tracking, and pushes every committed mutation to connected
// panels over a sequence-numbered websocket protocol.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, config file, environment)
//  2. Logging (zerolog, configured level and format)
//  3. Catalog store (Badger, or in-memory when no path is set)
//  4. Realtime layer: sequence authority, hub, op tracker, sync registry
//  5. Domain services: catalog, association, transfer, player
//  6. Hardware bus and bridge (tag reader, engine events)
//  7. Supervision tree (suture) and the HTTP server
//
// The server shuts down gracefully on SIGINT and SIGTERM: the listener
// drains, every websocket session is closed, and the catalog store is
// flushed before exit.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/boxwire/boxwire/internal/api"
	"github.com/boxwire/boxwire/internal/association"
	"github.com/boxwire/boxwire/internal/catalog"
	"github.com/boxwire/boxwire/internal/config"
	"github.com/boxwire/boxwire/internal/hardware"
	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/player"
	"github.com/boxwire/boxwire/internal/realtime"
	"github.com/boxwire/boxwire/internal/sequence"
	"github.com/boxwire/boxwire/internal/supervisor"
	"github.com/boxwire/boxwire/internal/transfer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("catalog_path", cfg.Catalog.Path).
		Dur("association_timeout", cfg.Association.Timeout).
		Msg("starting boxwire")

	store, err := catalog.NewBadgerStore(cfg.Catalog.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Catalog.Path).Msg("failed to open catalog store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing catalog store")
		}
	}()

	// Realtime layer: one global sequence authority, the room hub, the
	// idempotent op tracker, and the resync registry.
	hub := realtime.NewHub(sequence.NewAuthority())
	hub.SetIdleTimeout(cfg.Server.IdleTimeout)
	tracker := realtime.NewTracker()
	syncReg := realtime.NewSyncRegistry(hub)
	rtRouter := realtime.NewRouter(hub, tracker, syncReg)

	// Domain services register their op handlers and resync scopes.
	catalogSvc := catalog.NewService(hub, store)
	catalogSvc.RegisterHandlers(tracker)
	catalogSvc.RegisterSync(syncReg)

	assocMgr := association.NewManager(hub, store, cfg.Association.Timeout)
	assocMgr.RegisterHandlers(tracker)
	assocMgr.RegisterSync(syncReg)

	transferMgr := transfer.NewManager(hub, cfg.Transfer.Timeout)
	transferMgr.RegisterHandlers(tracker)
	transferMgr.RegisterSync(syncReg)

	// The log engine stands in until a device-specific audio backend is
	// wired; playback state still flows to panels.
	controller := player.NewController(hub, store, player.NewLogEngine())
	controller.RegisterHandlers(tracker)
	controller.RegisterSync(syncReg)

	bus := hardware.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing hardware bus")
		}
	}()
	bridge := hardware.NewBridge(bus, assocMgr, controller, store)

	handler := api.NewHandler(hub, rtRouter, cfg.Server)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(hub)
	tree.AddMessagingService(tracker)
	tree.AddMessagingService(assocMgr)
	tree.AddMessagingService(transferMgr)
	tree.AddMessagingService(bridge)
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	if cfg.Hardware.ReaderDevice != "" {
		device, err := os.Open(cfg.Hardware.ReaderDevice)
		if err != nil {
			logging.Fatal().Err(err).Str("device", cfg.Hardware.ReaderDevice).Msg("failed to open tag reader device")
		}
		defer device.Close()
		pump := hardware.NewReaderPump(bus, hardware.NewLineReader(device, cfg.Hardware.ReaderDevice))
		tree.AddMessagingService(pump)
		logging.Info().Str("device", cfg.Hardware.ReaderDevice).Msg("tag reader pump enabled")
	} else {
		logging.Info().Msg("no tag reader device configured, detections arrive over the protocol only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", cfg.Server.Addr()).Msg("boxwire listening")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree terminated with error")
	}
	logging.Info().Msg("boxwire stopped")
}
