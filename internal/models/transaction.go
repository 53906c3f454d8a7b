// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package models

import "time"

// TransactionStatus is the recorded outcome of a GM scan. Business outcomes
// live on the record; they are never raised as errors.
type TransactionStatus string

// Transaction outcomes.
const (
	TransactionAccepted  TransactionStatus = "accepted"
	TransactionRejected  TransactionStatus = "rejected"
	TransactionDuplicate TransactionStatus = "duplicate"
)

// ScanMode selects whether a GM scan scores points.
type ScanMode string

// Scan modes. Blackmarket scores; detective logs with zero points and does
// not advance group completion.
const (
	ModeBlackmarket ScanMode = "blackmarket"
	ModeDetective   ScanMode = "detective"
)

// Valid reports whether the mode is one of the known scan modes.
func (m ScanMode) Valid() bool {
	return m == ModeBlackmarket || m == ModeDetective
}

// Transaction records one GM scan decision bound to a session. Transactions
// are immutable once appended; admins delete rather than edit.
type Transaction struct {
	ID        string            `json:"id"`
	TokenID   string            `json:"tokenId"`
	TeamID    string            `json:"teamId"`
	DeviceID  string            `json:"deviceId"`
	Mode      ScanMode          `json:"mode"`
	Status    TransactionStatus `json:"status"`
	Points    int               `json:"points"`
	Timestamp time.Time         `json:"timestamp"`
	SessionID string            `json:"sessionId"`

	// Reason qualifies rejected transactions, e.g. "unknown token".
	Reason string `json:"reason,omitempty"`
}
