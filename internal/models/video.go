// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package models

import "time"

// VideoItemStatus is the lifecycle state of a queued video.
type VideoItemStatus string

// Queue item states. At most one item is playing across the queue at any
// instant.
const (
	VideoPending   VideoItemStatus = "pending"
	VideoPlaying   VideoItemStatus = "playing"
	VideoCompleted VideoItemStatus = "completed"
	VideoFailed    VideoItemStatus = "failed"
)

// VideoQueueItem is one pending or playing video request.
type VideoQueueItem struct {
	ID            string          `json:"id"`
	TokenID       string          `json:"tokenId"`
	VideoPath     string          `json:"videoPath"`
	RequestedBy   string          `json:"requestedBy"`
	Status        VideoItemStatus `json:"status"`
	RequestTime   time.Time       `json:"requestTime"`
	PlaybackStart *time.Time      `json:"playbackStart,omitempty"`
	PlaybackEnd   *time.Time      `json:"playbackEnd,omitempty"`

	// ExpectedEnd estimates when playback finishes; it drives the waitTime
	// hint returned on video conflicts.
	ExpectedEnd *time.Time `json:"expectedEnd,omitempty"`

	Error string `json:"error,omitempty"`
}

// VideoStatusPayload is the unified video:status wire payload. Status carries
// the discriminator: loading, started, paused, resumed, completed, failed,
// idle.
type VideoStatusPayload struct {
	Status      string `json:"status"`
	TokenID     string `json:"tokenId,omitempty"`
	VideoPath   string `json:"videoPath,omitempty"`
	QueueLength int    `json:"queueLength"`
	Degraded    bool   `json:"degraded,omitempty"`
	Error       string `json:"error,omitempty"`
}
