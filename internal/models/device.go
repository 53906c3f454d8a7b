// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package models

import "time"

// DeviceType distinguishes authoritative GM scanners from fire-and-forget
// player scanners.
type DeviceType string

// Device types.
const (
	DeviceGM     DeviceType = "gm"
	DevicePlayer DeviceType = "player"
)

// Valid reports whether the device type is known.
func (d DeviceType) Valid() bool {
	return d == DeviceGM || d == DevicePlayer
}

// ConnectionStatus is the liveness state of a device attachment.
type ConnectionStatus string

// Connection states.
const (
	DeviceConnected    ConnectionStatus = "connected"
	DeviceDisconnected ConnectionStatus = "disconnected"
	DeviceReconnecting ConnectionStatus = "reconnecting"
)

// SyncState tracks reconciliation progress for a device.
type SyncState struct {
	LastSyncTime   time.Time `json:"lastSyncTime"`
	PendingUpdates int       `json:"pendingUpdates"`
	SyncErrors     int       `json:"syncErrors"`
}

// DeviceConnection is an active (or recently active) socket attachment. A
// device ID may be reused only after the prior connection is disconnected.
type DeviceConnection struct {
	ID               string           `json:"id"`
	Type             DeviceType       `json:"type"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	ConnectionTime   time.Time        `json:"connectionTime"`
	LastHeartbeat    time.Time        `json:"lastHeartbeat"`
	IPAddress        string           `json:"ipAddress,omitempty"`
	SyncState        SyncState        `json:"syncState"`
}
