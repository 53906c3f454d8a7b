// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package video implements the video queue and conflict arbiter: at most one
// video plays at a time, player scans that lose the race get a waitTime hint,
// and an unreachable player degrades the queue to logical playback instead of
// failing it.
package video

import (
	"context"
	"time"
)

// Player states as reported by the external player.
const (
	PlayerStatePlaying = "playing"
	PlayerStatePaused  = "paused"
	PlayerStateStopped = "stopped"
)

// PlayerStatus is a point-in-time report from the external player.
type PlayerStatus struct {
	State  string
	Length time.Duration
	Time   time.Duration
}

// Remaining returns how much playback time is left, or 0 when unknown.
func (s *PlayerStatus) Remaining() time.Duration {
	if s == nil || s.Length <= 0 || s.Time < 0 || s.Time > s.Length {
		return 0
	}
	return s.Length - s.Time
}

// Player drives the external video player. Implementations must be safe for
// concurrent use; the worker is the only caller in production but admin
// commands arrive on handler goroutines in tests.
type Player interface {
	// Play starts playback of path and returns the reported media length,
	// or 0 when the player does not report one.
	Play(ctx context.Context, path string) (time.Duration, error)

	// Pause suspends the current playback.
	Pause(ctx context.Context) error

	// Resume continues a paused playback.
	Resume(ctx context.Context) error

	// Stop halts playback and returns the player to idle.
	Stop(ctx context.Context) error

	// Status reports the player's current state.
	Status(ctx context.Context) (*PlayerStatus, error)
}
