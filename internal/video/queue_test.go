// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package video

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

//nolint:gochecknoinits // quiet logs during tests
func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

func TestQueueEnqueueOrder(t *testing.T) {
	q := NewQueue()
	now := time.Now()

	_, pos1 := q.Enqueue("tok1", "a.mp4", "GM_STATION_1", now)
	_, pos2 := q.Enqueue("tok2", "b.mp4", "GM_STATION_2", now)
	if pos1 != 1 || pos2 != 2 {
		t.Errorf("positions = %d, %d, want 1, 2", pos1, pos2)
	}

	first := q.popNext()
	if first == nil || first.TokenID != "tok1" {
		t.Fatalf("popNext = %+v, want tok1", first)
	}
	// Only one current at a time.
	if next := q.popNext(); next != nil {
		t.Errorf("popNext with a current item = %+v, want nil", next)
	}
}

func TestQueueConflictWaitTime(t *testing.T) {
	q := NewQueue()
	now := time.Now()

	if busy, _ := q.Conflict(now); busy {
		t.Error("empty queue should not conflict")
	}

	q.Enqueue("tok1", "a.mp4", "GM_STATION_1", now)
	q.popNext()
	q.markPlaying(now, 45*time.Second)

	busy, wait := q.Conflict(now.Add(10 * time.Second))
	if !busy || wait != 35 {
		t.Errorf("conflict = %v/%d, want busy with 35s wait", busy, wait)
	}

	// Past the expected end the wait clamps to zero but stays busy.
	busy, wait = q.Conflict(now.Add(2 * time.Minute))
	if !busy || wait != 0 {
		t.Errorf("conflict after end = %v/%d, want busy/0", busy, wait)
	}

	// Fractional remainders round up.
	busy, wait = q.Conflict(now.Add(44*time.Second + 500*time.Millisecond))
	if !busy || wait != 1 {
		t.Errorf("conflict near end = %v/%d, want busy/1", busy, wait)
	}
}

func TestQueueReorder(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	a, _ := q.Enqueue("tok1", "a.mp4", "x", now)
	b, _ := q.Enqueue("tok2", "b.mp4", "x", now)
	c, _ := q.Enqueue("tok3", "c.mp4", "x", now)

	if err := q.Reorder([]string{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	items := q.Items()
	if items[0].TokenID != "tok3" || items[1].TokenID != "tok1" || items[2].TokenID != "tok2" {
		t.Errorf("order = %s,%s,%s", items[0].TokenID, items[1].TokenID, items[2].TokenID)
	}

	if err := q.Reorder([]string{"bogus", a.ID, b.ID}); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
	if err := q.Reorder([]string{a.ID}); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("partial reorder should fail, got %v", err)
	}
}

func TestQueueClearKeepsCurrent(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.Enqueue("tok1", "a.mp4", "x", now)
	q.popNext()
	q.markPlaying(now, time.Minute)
	q.Enqueue("tok2", "b.mp4", "x", now)
	q.Enqueue("tok3", "c.mp4", "x", now)

	if n := q.Clear(); n != 2 {
		t.Errorf("Clear = %d, want 2", n)
	}
	if q.Current() == nil {
		t.Error("current item must survive Clear")
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestQueueFinishCurrent(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.Enqueue("tok1", "a.mp4", "x", now)
	q.popNext()
	q.markPlaying(now, time.Minute)

	item := q.finishCurrent(models.VideoCompleted, "", now.Add(time.Minute))
	if item == nil || item.Status != models.VideoCompleted || item.PlaybackEnd == nil {
		t.Fatalf("finished = %+v", item)
	}
	if q.Current() != nil {
		t.Error("current should be cleared")
	}
	if again := q.finishCurrent(models.VideoCompleted, "", now); again != nil {
		t.Errorf("double finish = %+v, want nil", again)
	}
}
