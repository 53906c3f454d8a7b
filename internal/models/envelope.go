// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package models

import "time"

// Envelope is the uniform frame for every server-originated socket message:
// {event, data, timestamp}. No outbound frame bypasses this shape; clients
// rely on it as the protocol contract.
type Envelope struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// NewEnvelope wraps a payload with the event name and an ISO 8601 UTC
// timestamp.
func NewEnvelope(event string, data interface{}) Envelope {
	return Envelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
