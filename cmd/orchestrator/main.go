// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package main is the entry point for the About Last Night orchestrator.
//
// The orchestrator runs the live RFID memory-trading game: it scores token
// scans, fans out real-time state over websockets, drives the venue's video
// player, and lets GM stations manage the session.
//
// Components come up in order:
//
//  1. Configuration: Koanf layered defaults, YAML file, ALN_ env vars
//  2. Storage: BadgerDB session persistence (memory fallback unless required)
//  3. Token catalog: static JSON catalog of scannable tokens
//  4. Session engine: restored from storage so a crash mid-game loses nothing
//  5. Video queue: VLC over HTTP, degraded logical playback without it
//  6. Event fabric: websocket hub, domain-event bridge, GM command plane
//  7. Supervisor tree: persister, sweeper, video worker, hub, HTTP server
//
// Shutdown on SIGINT/SIGTERM tears down in reverse: fabric first (no bridge
// handler fires into dead sockets), then the bus, then a final flush and
// storage close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aboutlastnight/orchestrator/internal/api"
	"github.com/aboutlastnight/orchestrator/internal/auth"
	"github.com/aboutlastnight/orchestrator/internal/commands"
	"github.com/aboutlastnight/orchestrator/internal/config"
	"github.com/aboutlastnight/orchestrator/internal/events"
	"github.com/aboutlastnight/orchestrator/internal/fabric"
	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/session"
	"github.com/aboutlastnight/orchestrator/internal/storage"
	"github.com/aboutlastnight/orchestrator/internal/supervisor"
	"github.com/aboutlastnight/orchestrator/internal/tokens"
	"github.com/aboutlastnight/orchestrator/internal/video"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	logging.Info().
		Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Str("storage_path", cfg.Storage.Path).
		Bool("player_configured", cfg.Video.PlayerURL != "").
		Msg("starting orchestrator")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage. Persistence failures fall back to memory unless the operator
	// declared storage required; a game can run a whole night from RAM.
	var store storage.Store = storage.NewBadgerStore(cfg.Storage.Path)
	if err := store.Init(ctx); err != nil {
		if cfg.Storage.Required {
			logging.Fatal().Err(err).Msg("storage is required and failed to open")
		}
		logging.Warn().Err(err).Msg("storage unavailable, running from memory; a restart loses the session")
		store = storage.NewMemoryStore()
		if err := store.Init(ctx); err != nil {
			logging.Fatal().Err(err).Msg("memory store init failed")
		}
	}
	defer func() {
		if err := store.Cleanup(context.Background()); err != nil {
			logging.Error().Err(err).Msg("storage close failed")
		}
	}()

	catalog, err := tokens.LoadFile(cfg.Tokens.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Tokens.Path).Msg("failed to load token catalog")
	}
	logging.Info().Int("tokens", catalog.Len()).Msg("token catalog loaded")

	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("event bus close failed")
		}
	}()

	engine := session.NewEngine(store, bus, catalog, cfg.Session)
	if err := engine.Restore(ctx); err != nil {
		logging.Warn().Err(err).Msg("session restore failed, starting fresh")
	}

	// Video player. No URL means the queue runs degraded from the start,
	// simulating playback so game flow is unaffected.
	var player video.Player
	if cfg.Video.PlayerURL != "" {
		player = video.NewVLCClient(cfg.Video.PlayerURL, cfg.Video.PlayerPassword, cfg.Video.RequestTimeout)
	}
	worker := video.NewWorker(video.NewQueue(), player, bus, cfg.Video)

	authMgr, err := auth.NewManager(cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize auth manager")
	}

	hub := fabric.NewHub()
	dispatcher := commands.NewDispatcher(engine, worker, catalog)
	fab := fabric.NewFabric(hub, engine, worker, bus, authMgr, catalog, dispatcher, cfg.Session)

	if err := fab.AttachServices(ctx); err != nil {
		logging.Fatal().Err(err).Msg("fabric service attachment failed")
	}
	if err := fab.AttachHandlers(); err != nil {
		logging.Fatal().Err(err).Msg("fabric handler attachment failed")
	}
	if err := fab.Listen(); err != nil {
		logging.Fatal().Err(err).Msg("fabric listen failed")
	}
	defer fab.Cleanup()

	apiServer := api.NewServer(*cfg, engine, worker, fab, authMgr, catalog)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           apiServer.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddCoreService(session.NewPersister(engine, cfg.Storage.FlushInterval))
	tree.AddCoreService(fabric.NewSweeper(engine, cfg.Session.HeartbeatTimeout))
	tree.AddCoreService(worker)
	tree.AddMessagingService(supervisor.NewRunner("websocket-hub", hub.RunWithContext))
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout))

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree stopped with error")
	}

	// Final flush so the last committed scans survive the restart.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Flush(flushCtx); err != nil {
		logging.Error().Err(err).Msg("final session flush failed")
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop in time")
		}
	}

	logging.Info().Msg("orchestrator stopped")
}
