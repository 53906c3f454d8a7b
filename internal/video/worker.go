// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package video

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/aboutlastnight/orchestrator/internal/config"
	"github.com/aboutlastnight/orchestrator/internal/events"
	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/metrics"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

// Worker owns the queue: it starts playback, polls the player, and publishes
// video.status domain events for every logical transition. When the player is
// unreachable the worker simulates playback against the configured default
// duration so clients keep seeing a consistent queue.
type Worker struct {
	queue  *Queue
	player Player
	bus    *events.Bus
	cfg    config.VideoConfig

	wake   chan struct{}
	paused atomic.Bool

	clock func() time.Time
}

// NewWorker creates a worker. A nil player starts the queue degraded.
func NewWorker(queue *Queue, player Player, bus *events.Bus, cfg config.VideoConfig) *Worker {
	w := &Worker{
		queue:  queue,
		player: player,
		bus:    bus,
		cfg:    cfg,
		wake:   make(chan struct{}, 1),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	if player == nil {
		queue.SetDegraded(true)
	}
	return w
}

// Serve implements suture.Service: the queue loop.
func (w *Worker) Serve(ctx context.Context) error {
	logging.Info().Bool("degraded", w.queue.Degraded()).Msg("video worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("video worker stopped")
			return ctx.Err()
		case <-w.wake:
			w.tick(ctx)
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (w *Worker) String() string {
	return "video-worker"
}

// tick advances the queue one step: finish an elapsed current item, then
// start the next pending one.
func (w *Worker) tick(ctx context.Context) {
	now := w.clock()

	if current := w.queue.Current(); current != nil {
		w.pollCurrent(ctx, current, now)
	}

	if w.queue.Current() == nil {
		w.startNext(ctx, now)
	}
}

// pollCurrent decides whether the playing item has finished.
func (w *Worker) pollCurrent(ctx context.Context, current *models.VideoQueueItem, now time.Time) {
	if current.Status != models.VideoPlaying || w.paused.Load() {
		return
	}

	if w.queue.Degraded() || w.player == nil {
		if current.ExpectedEnd != nil && !now.Before(*current.ExpectedEnd) {
			w.complete(now)
		}
		return
	}

	status, err := w.player.Status(ctx)
	if err != nil {
		if w.queue.SetDegraded(true) {
			logging.Warn().Err(err).Msg("player unreachable, queue degraded")
		}
		// Fall back to the logical clock.
		if current.ExpectedEnd != nil && !now.Before(*current.ExpectedEnd) {
			w.complete(now)
		}
		return
	}
	if w.queue.SetDegraded(false) {
		logging.Info().Msg("player reachable again")
	}

	switch status.State {
	case PlayerStateStopped:
		w.complete(now)
	case PlayerStatePlaying:
		if remaining := status.Remaining(); remaining > 0 {
			w.queue.extendExpectedEnd(now.Add(remaining))
		}
	}
}

// startNext pops and starts the next pending item. When nothing is pending
// and the previous tick had a current item, idle was already published by
// complete().
func (w *Worker) startNext(ctx context.Context, now time.Time) {
	if w.paused.Load() {
		return
	}
	item := w.queue.popNext()
	if item == nil {
		return
	}

	w.publishStatus(models.VideoStatusPayload{
		Status:      "loading",
		TokenID:     item.TokenID,
		VideoPath:   item.VideoPath,
		QueueLength: w.queue.Len(),
		Degraded:    w.queue.Degraded(),
	})

	duration := w.cfg.DefaultDuration
	if w.player != nil && !w.queue.Degraded() {
		reported, err := w.player.Play(ctx, item.VideoPath)
		if err != nil {
			if w.queue.SetDegraded(true) {
				logging.Warn().Err(err).Str("video", item.VideoPath).
					Msg("player play failed, simulating playback")
			}
		} else if reported > 0 {
			duration = reported
		}
	}

	started := w.queue.markPlaying(now, duration)
	if started == nil {
		return
	}

	logging.Info().Str("token_id", started.TokenID).Str("video", started.VideoPath).
		Dur("duration", duration).Bool("degraded", w.queue.Degraded()).
		Msg("video playback started")

	w.publishStatus(models.VideoStatusPayload{
		Status:      "started",
		TokenID:     started.TokenID,
		VideoPath:   started.VideoPath,
		QueueLength: w.queue.Len(),
		Degraded:    w.queue.Degraded(),
	})
}

// complete finishes the current item and publishes completed, then idle when
// nothing is pending.
func (w *Worker) complete(now time.Time) {
	item := w.queue.finishCurrent(models.VideoCompleted, "", now)
	if item == nil {
		return
	}
	metrics.VideoPlaybacksTotal.WithLabelValues("completed").Inc()

	w.publishStatus(models.VideoStatusPayload{
		Status:      "completed",
		TokenID:     item.TokenID,
		VideoPath:   item.VideoPath,
		QueueLength: w.queue.Len(),
		Degraded:    w.queue.Degraded(),
	})
	if w.queue.Len() == 0 {
		w.publishStatus(models.VideoStatusPayload{
			Status:   "idle",
			Degraded: w.queue.Degraded(),
		})
	}
}

// Enqueue adds a video to the queue and wakes the worker. Used by GM scans
// and admin queue management; conflict policy is the caller's concern.
func (w *Worker) Enqueue(tokenID, videoPath, requestedBy string) (*models.VideoQueueItem, int) {
	item, pos := w.queue.Enqueue(tokenID, videoPath, requestedBy, w.clock())
	w.signal()
	return item, pos
}

// TryPlayerScan applies the player-scan conflict rule: reject with a waitTime
// hint while a video is playing, otherwise enqueue. Returns queued=false and
// the wait seconds on conflict.
func (w *Worker) TryPlayerScan(tokenID, videoPath, deviceID string) (bool, int) {
	busy, wait := w.queue.Conflict(w.clock())
	if busy {
		metrics.PlayerScansTotal.WithLabelValues("busy").Inc()
		return false, wait
	}
	w.Enqueue(tokenID, videoPath, deviceID)
	metrics.PlayerScansTotal.WithLabelValues("video").Inc()
	return true, 0
}

// AddByFilename enqueues a video by path, resolved against the media
// directory when relative. Admin-plane helper.
func (w *Worker) AddByFilename(path string) (*models.VideoQueueItem, int) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.cfg.MediaDir, path)
	}
	return w.Enqueue("", path, "admin")
}

// Skip marks the current item completed and lets the next one start.
func (w *Worker) Skip(ctx context.Context) bool {
	item := w.queue.finishCurrent(models.VideoCompleted, "", w.clock())
	if item == nil {
		return false
	}
	metrics.VideoPlaybacksTotal.WithLabelValues("skipped").Inc()
	w.stopPlayer(ctx)

	w.publishStatus(models.VideoStatusPayload{
		Status:      "completed",
		TokenID:     item.TokenID,
		VideoPath:   item.VideoPath,
		QueueLength: w.queue.Len(),
		Degraded:    w.queue.Degraded(),
	})
	w.signal()
	return true
}

// Stop halts the current playback without starting the next item until the
// queue is resumed or a new tick runs.
func (w *Worker) Stop(ctx context.Context) bool {
	item := w.queue.finishCurrent(models.VideoFailed, "stopped by admin", w.clock())
	w.stopPlayer(ctx)
	if item == nil {
		return false
	}
	metrics.VideoPlaybacksTotal.WithLabelValues("failed").Inc()

	w.publishStatus(models.VideoStatusPayload{
		Status:      "failed",
		TokenID:     item.TokenID,
		VideoPath:   item.VideoPath,
		QueueLength: w.queue.Len(),
		Degraded:    w.queue.Degraded(),
		Error:       "stopped by admin",
	})
	if w.queue.Len() == 0 {
		w.publishStatus(models.VideoStatusPayload{
			Status:   "idle",
			Degraded: w.queue.Degraded(),
		})
	}
	w.signal()
	return true
}

// Pause suspends the current playback.
func (w *Worker) Pause(ctx context.Context) bool {
	current := w.queue.Current()
	if current == nil || current.Status != models.VideoPlaying {
		return false
	}
	w.paused.Store(true)
	if w.player != nil && !w.queue.Degraded() {
		if err := w.player.Pause(ctx); err != nil {
			logging.Warn().Err(err).Msg("player pause failed")
		}
	}
	w.publishStatus(models.VideoStatusPayload{
		Status:      "paused",
		TokenID:     current.TokenID,
		VideoPath:   current.VideoPath,
		QueueLength: w.queue.Len(),
		Degraded:    w.queue.Degraded(),
	})
	return true
}

// Resume continues a paused playback.
func (w *Worker) Resume(ctx context.Context) bool {
	current := w.queue.Current()
	if current == nil {
		return false
	}
	w.paused.Store(false)
	if w.player != nil && !w.queue.Degraded() {
		if err := w.player.Resume(ctx); err != nil {
			logging.Warn().Err(err).Msg("player resume failed")
		}
	}
	w.publishStatus(models.VideoStatusPayload{
		Status:      "resumed",
		TokenID:     current.TokenID,
		VideoPath:   current.VideoPath,
		QueueLength: w.queue.Len(),
		Degraded:    w.queue.Degraded(),
	})
	w.signal()
	return true
}

// ClearQueue drops every pending item.
func (w *Worker) ClearQueue() int {
	return w.queue.Clear()
}

// Reorder rearranges the pending items.
func (w *Worker) Reorder(ids []string) error {
	return w.queue.Reorder(ids)
}

// Status builds the current video status payload for sync snapshots.
func (w *Worker) Status() *models.VideoStatusPayload {
	payload := &models.VideoStatusPayload{
		Status:      "idle",
		QueueLength: w.queue.Len(),
		Degraded:    w.queue.Degraded(),
	}
	if current := w.queue.Current(); current != nil {
		payload.Status = string(current.Status)
		payload.TokenID = current.TokenID
		payload.VideoPath = current.VideoPath
	}
	return payload
}

// Healthy reports whether the external player is reachable.
func (w *Worker) Healthy() bool {
	return w.player != nil && !w.queue.Degraded()
}

func (w *Worker) stopPlayer(ctx context.Context) {
	if w.player == nil || w.queue.Degraded() {
		return
	}
	if err := w.player.Stop(ctx); err != nil {
		logging.Warn().Err(err).Msg("player stop failed")
	}
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) publishStatus(payload models.VideoStatusPayload) {
	if err := w.bus.Publish(events.TopicVideoStatus, payload); err != nil {
		logging.Warn().Err(err).Str("status", payload.Status).Msg("video status publish failed")
	}
}
