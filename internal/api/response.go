// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package api is the HTTP surface: admin auth, scan submission, session
// control, state snapshots, video control, and the websocket upgrade path.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/metrics"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

// respondJSON writes v as a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("response encode failed")
	}
}

// respondError writes a structured error body using the closed code set.
func respondError(w http.ResponseWriter, status int, code, message string, details []interface{}) {
	respondJSON(w, status, models.APIError{Error: code, Message: message, Details: details})
}

// metricsMiddleware records request duration per route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.WithLabelValues(
			route, r.Method, strconv.Itoa(ww.Status()),
		).Observe(time.Since(start).Seconds())
	})
}
