// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package video

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aboutlastnight/orchestrator/internal/metrics"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

// ErrUnknownItem is returned by Reorder when an ID is not in the queue.
var ErrUnknownItem = errors.New("video: unknown queue item")

// Queue holds pending items and the single current item. The worker is the
// only component that moves items between the two; admin operations and
// conflict checks read under the same lock.
type Queue struct {
	mu       sync.Mutex
	pending  []*models.VideoQueueItem
	current  *models.VideoQueueItem
	degraded bool

	newID func() string
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{newID: uuid.NewString}
}

// Enqueue appends a pending item and returns it with its 1-based position.
func (q *Queue) Enqueue(tokenID, videoPath, requestedBy string, now time.Time) (*models.VideoQueueItem, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &models.VideoQueueItem{
		ID:          q.newID(),
		TokenID:     tokenID,
		VideoPath:   videoPath,
		RequestedBy: requestedBy,
		Status:      models.VideoPending,
		RequestTime: now,
	}
	q.pending = append(q.pending, item)
	metrics.VideoQueueLength.Set(float64(len(q.pending)))
	cp := *item
	return &cp, len(q.pending)
}

// Conflict reports whether a video is currently playing and, if so, the
// whole seconds until it is expected to finish (clamped to >= 0).
func (q *Queue) Conflict(now time.Time) (bool, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil || q.current.Status != models.VideoPlaying {
		return false, 0
	}
	if q.current.ExpectedEnd == nil {
		return true, 0
	}
	remaining := q.current.ExpectedEnd.Sub(now)
	if remaining <= 0 {
		return true, 0
	}
	// Rounded up; an active playback never reports waitTime 0.
	secs := int((remaining + time.Second - 1) / time.Second)
	return true, secs
}

// popNext promotes the head pending item to current. Returns nil when empty
// or when an item is already current.
func (q *Queue) popNext() *models.VideoQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil || len(q.pending) == 0 {
		return nil
	}
	q.current = q.pending[0]
	q.pending = q.pending[1:]
	metrics.VideoQueueLength.Set(float64(len(q.pending)))
	return q.current
}

// finishCurrent stamps the current item with a terminal status and clears it.
// Returns the finished item, or nil when nothing was current.
func (q *Queue) finishCurrent(status models.VideoItemStatus, errMsg string, now time.Time) *models.VideoQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return nil
	}
	item := q.current
	item.Status = status
	item.PlaybackEnd = &now
	item.Error = errMsg
	q.current = nil
	return item
}

// markPlaying transitions the current item to playing with an expected end.
func (q *Queue) markPlaying(now time.Time, duration time.Duration) *models.VideoQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return nil
	}
	end := now.Add(duration)
	q.current.Status = models.VideoPlaying
	q.current.PlaybackStart = &now
	q.current.ExpectedEnd = &end
	cp := *q.current
	return &cp
}

// extendExpectedEnd replaces the current item's expected end, used when the
// player reports an authoritative remaining time.
func (q *Queue) extendExpectedEnd(end time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil && q.current.Status == models.VideoPlaying {
		q.current.ExpectedEnd = &end
	}
}

// Current returns a copy of the current item, or nil.
func (q *Queue) Current() *models.VideoQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return nil
	}
	cp := *q.current
	return &cp
}

// Items returns copies of the pending items in order.
func (q *Queue) Items() []*models.VideoQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.VideoQueueItem, len(q.pending))
	for i, item := range q.pending {
		cp := *item
		out[i] = &cp
	}
	return out
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear drops every pending item. The current item is untouched.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	q.pending = nil
	metrics.VideoQueueLength.Set(0)
	return n
}

// Reorder rearranges pending items to match ids. Every pending item must be
// named exactly once.
func (q *Queue) Reorder(ids []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(ids) != len(q.pending) {
		return ErrUnknownItem
	}
	byID := make(map[string]*models.VideoQueueItem, len(q.pending))
	for _, item := range q.pending {
		byID[item.ID] = item
	}
	next := make([]*models.VideoQueueItem, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			return ErrUnknownItem
		}
		delete(byID, id)
		next = append(next, item)
	}
	q.pending = next
	return nil
}

// SetDegraded flips the degraded flag, reporting whether it changed.
func (q *Queue) SetDegraded(degraded bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.degraded == degraded {
		return false
	}
	q.degraded = degraded
	if degraded {
		metrics.VideoPlayerDegraded.Set(1)
	} else {
		metrics.VideoPlayerDegraded.Set(0)
	}
	return true
}

// Degraded reports whether the queue runs without a reachable player.
func (q *Queue) Degraded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.degraded
}
