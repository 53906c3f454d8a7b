// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aboutlastnight/orchestrator/internal/logging"
)

// HTTPService supervises an http.Server. On context cancellation the server
// drains gracefully, bounded by shutdownTimeout.
type HTTPService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPService wraps an http.Server for supervision.
func NewHTTPService(server *http.Server, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve runs the server until the context is canceled or the listener fails.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.server.Addr).Msg("http server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("http server shutdown incomplete")
		}
		return ctx.Err()
	}
}

// String names the service in supervisor logs.
func (s *HTTPService) String() string {
	return "http-server"
}

// Runner adapts a run function into a suture service. Used for components
// that expose RunWithContext instead of Serve.
type Runner struct {
	name string
	run  func(context.Context) error
}

// NewRunner wraps run as a named service.
func NewRunner(name string, run func(context.Context) error) *Runner {
	return &Runner{name: name, run: run}
}

// Serve runs the wrapped function.
func (r *Runner) Serve(ctx context.Context) error {
	return r.run(ctx)
}

// String names the service in supervisor logs.
func (r *Runner) String() string {
	return r.name
}
