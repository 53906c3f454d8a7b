// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package session

import (
	"context"
	"time"

	"github.com/aboutlastnight/orchestrator/internal/events"
	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

// Persister flushes dirty session state to the store on a fixed interval so
// scan commits never block on storage. It runs as a supervised service.
type Persister struct {
	engine   *Engine
	interval time.Duration
}

// NewPersister creates a persister flushing every interval.
func NewPersister(engine *Engine, interval time.Duration) *Persister {
	return &Persister{engine: engine, interval: interval}
}

// Serve implements suture.Service. On shutdown it performs one final flush
// with its own deadline so in-flight state is not lost.
func (p *Persister) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", p.interval).Msg("session persister started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.engine.Flush(flushCtx); err != nil {
				logging.Error().Err(err).Msg("final session flush failed")
			}
			cancel()
			logging.Info().Msg("session persister stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.engine.Flush(ctx); err != nil {
				logging.Error().Err(err).Msg("session flush failed")
				// Surface the storage trouble to connected GM stations; the
				// session keeps running from memory.
				p.engine.publish(events.TopicServiceError, events.ServiceError{
					Service: "persister",
					Code:    models.ErrCodeInternal,
					Message: "session flush failed: " + err.Error(),
				})
			}
		}
	}
}

// String names the service in supervisor logs.
func (p *Persister) String() string {
	return "session-persister"
}
