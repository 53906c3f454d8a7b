// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package models

// API error kinds surfaced to clients. This is a closed set; handlers must
// not invent new codes.
const (
	ErrCodeAuthRequired      = "AUTH_REQUIRED"
	ErrCodeAuthInvalid       = "AUTH_INVALID"
	ErrCodeDeviceIDCollision = "DEVICE_ID_COLLISION"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNoSession         = "NO_SESSION"
	ErrCodeSessionPaused     = "SESSION_PAUSED"
	ErrCodeSessionExists     = "SESSION_EXISTS"
	ErrCodeDuplicate         = "DUPLICATE"
	ErrCodeVideoBusy         = "VIDEO_BUSY"
	ErrCodeQueueFull         = "QUEUE_FULL"
	ErrCodeRateLimit         = "RATE_LIMIT"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// APIError is the structured HTTP error body: {error, message, details?}.
type APIError struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Details []interface{} `json:"details,omitempty"`
}

// SystemStatus exposes coarse subsystem liveness for dashboards.
type SystemStatus struct {
	Orchestrator bool `json:"orchestrator"`
	VLC          bool `json:"vlc"`
}

// Environment is a snapshot of venue-control state. Controllers are optional;
// unavailable subsystems report "unavailable".
type Environment struct {
	Bluetooth string `json:"bluetooth"`
	Audio     string `json:"audio"`
	Lighting  string `json:"lighting"`
}

// DefaultEnvironment returns the snapshot used when no controllers are wired.
func DefaultEnvironment() Environment {
	return Environment{
		Bluetooth: "unavailable",
		Audio:     "unavailable",
		Lighting:  "unavailable",
	}
}

// SyncFull is the reconnect snapshot sent on GM identify and after an offline
// drain. DeviceScannedTokens is scoped to the receiving device only.
type SyncFull struct {
	Session             *Session            `json:"session"`
	Scores              []*TeamScore        `json:"scores"`
	RecentTransactions  []*Transaction      `json:"recentTransactions"`
	VideoStatus         *VideoStatusPayload `json:"videoStatus"`
	Devices             []*DeviceConnection `json:"devices"`
	SystemStatus        SystemStatus        `json:"systemStatus"`
	DeviceScannedTokens []string            `json:"deviceScannedTokens"`
	Reconnection        bool                `json:"reconnection"`
	Environment         Environment         `json:"environment"`
}
