// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aboutlastnight/orchestrator/internal/auth"
	"github.com/aboutlastnight/orchestrator/internal/config"
	"github.com/aboutlastnight/orchestrator/internal/fabric"
	"github.com/aboutlastnight/orchestrator/internal/session"
	"github.com/aboutlastnight/orchestrator/internal/tokens"
	"github.com/aboutlastnight/orchestrator/internal/video"
)

// Server bundles the handlers' dependencies.
type Server struct {
	cfg     config.Config
	engine  *session.Engine
	worker  *video.Worker
	fab     *fabric.Fabric
	auth    *auth.Manager
	catalog *tokens.Catalog

	scanLimiter *deviceLimiter
}

// NewServer creates the HTTP server surface.
func NewServer(cfg config.Config, engine *session.Engine, worker *video.Worker,
	fab *fabric.Fabric, authMgr *auth.Manager, catalog *tokens.Catalog) *Server {
	return &Server{
		cfg:         cfg,
		engine:      engine,
		worker:      worker,
		fab:         fab,
		auth:        authMgr,
		catalog:     catalog,
		scanLimiter: newDeviceLimiter(cfg.Security.ScanRatePerSecond, cfg.Security.ScanRateBurst),
	}
}

// Routes assembles the router. Auth endpoints carry strict per-IP rate
// limits; everything else shares the global middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(metricsMiddleware)

	r.Get("/health", s.Health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// The websocket upgrade cannot sit under the request-timeout middleware.
	r.Get("/api/ws", s.fab.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.cfg.Server.RequestTimeout))

		r.With(httprate.LimitByIP(s.cfg.Security.AuthRateLimit, s.cfg.Security.AuthRateWindow)).
			Post("/api/admin/auth", s.Login)

		r.Post("/api/scan", s.Scan)
		r.Post("/api/scan/batch", s.ScanBatch)

		r.Get("/api/state", s.State)
		r.Get("/api/state/status", s.Status)
		r.Get("/api/tokens", s.Tokens)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(s.auth))

			r.Post("/api/transaction/submit", s.SubmitTransaction)
			r.Post("/api/session", s.CreateSession)
			r.Put("/api/session", s.UpdateSession)
			r.Post("/api/video/control", s.VideoControl)
		})
	})

	return r
}
