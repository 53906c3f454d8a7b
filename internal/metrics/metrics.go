// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package metrics registers the orchestrator's Prometheus instrumentation:
// scan throughput, socket fan-out, video queue depth, and persistence
// latency. Exposed on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scan pipeline

	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_scans_total",
			Help: "Total GM scans processed, by recorded outcome",
		},
		[]string{"status", "mode"}, // status: accepted/rejected/duplicate
	)

	PlayerScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_player_scans_total",
			Help: "Total player-scanner requests, by result",
		},
		[]string{"result"}, // "video", "no_video", "busy", "queued", "rate_limited"
	)

	GroupCompletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_group_completions_total",
			Help: "Total token group completions awarded",
		},
	)

	// Event fabric

	ConnectedDevices = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_connected_devices",
			Help: "Currently connected socket clients, by device type",
		},
		[]string{"device_type"},
	)

	WireEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_wire_events_total",
			Help: "Total wire events fanned out to socket rooms",
		},
		[]string{"event"},
	)

	DroppedFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_dropped_frames_total",
			Help: "Outbound frames dropped because a client queue was full",
		},
	)

	// Video queue

	VideoQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_video_queue_length",
			Help: "Items currently waiting in the video queue",
		},
	)

	VideoPlaybacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_video_playbacks_total",
			Help: "Video playback attempts, by terminal status",
		},
		[]string{"status"}, // "completed", "failed", "skipped"
	)

	VideoPlayerDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_video_player_degraded",
			Help: "1 when the external player is unreachable and the queue runs degraded",
		},
	)

	// Persistence

	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_persist_duration_seconds",
			Help:    "Duration of session snapshot writes to the KV store",
			Buckets: prometheus.DefBuckets,
		},
	)

	PersistErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_persist_errors_total",
			Help: "Failed session snapshot writes",
		},
	)

	// HTTP

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)
