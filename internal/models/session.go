// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package models defines the domain entities shared across the orchestrator:
// sessions, transactions, team scores, tokens, video queue items, device
// connections, and the wire envelope.
//
// Wire and persistence formats use camelCase JSON tags; these are the shapes
// clients and the KV store rely on. The legacy field name "scannerId" is
// banned everywhere; devices are identified by "deviceId".
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

// Session lifecycle states. At most one session is not ended at any time.
const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

// SessionMetadata carries bookkeeping that is not part of the transaction log.
type SessionMetadata struct {
	// ScannedTokensByDevice tracks which tokens each device has already
	// scanned. Duplicate detection is per device, not global.
	ScannedTokensByDevice map[string]*StringSet `json:"scannedTokensByDevice"`
}

// Session is one game instance: the unit of aggregation for transactions,
// scores, and device tracking.
type Session struct {
	ID           string                       `json:"id"`
	Name         string                       `json:"name"`
	StartTime    time.Time                    `json:"startTime"`
	EndTime      *time.Time                   `json:"endTime,omitempty"`
	Status       SessionStatus                `json:"status"`
	Teams        []string                     `json:"teams"`
	Transactions []*Transaction               `json:"transactions"`
	Devices      map[string]*DeviceConnection `json:"devices"`
	Scores       map[string]*TeamScore        `json:"scores"`
	Metadata     SessionMetadata              `json:"metadata"`
}

// NewSession creates an active session with initialized maps.
func NewSession(id, name string, teams []string, now time.Time) *Session {
	s := &Session{
		ID:           id,
		Name:         name,
		StartTime:    now,
		Status:       SessionActive,
		Teams:        append([]string(nil), teams...),
		Transactions: []*Transaction{},
		Devices:      make(map[string]*DeviceConnection),
		Scores:       make(map[string]*TeamScore, len(teams)),
		Metadata: SessionMetadata{
			ScannedTokensByDevice: make(map[string]*StringSet),
		},
	}
	for _, team := range teams {
		s.Scores[team] = NewTeamScore(team, now)
	}
	return s
}

// ScannedTokens returns the scan set for a device, creating it if absent.
func (s *Session) ScannedTokens(deviceID string) *StringSet {
	if s.Metadata.ScannedTokensByDevice == nil {
		s.Metadata.ScannedTokensByDevice = make(map[string]*StringSet)
	}
	set, ok := s.Metadata.ScannedTokensByDevice[deviceID]
	if !ok {
		set = NewStringSet()
		s.Metadata.ScannedTokensByDevice[deviceID] = set
	}
	return set
}

// Score returns the derived score record for a team, creating it if absent.
func (s *Session) Score(teamID string, now time.Time) *TeamScore {
	if s.Scores == nil {
		s.Scores = make(map[string]*TeamScore)
	}
	score, ok := s.Scores[teamID]
	if !ok {
		score = NewTeamScore(teamID, now)
		s.Scores[teamID] = score
	}
	return score
}

// IsEnded reports whether the session has reached its terminal state.
func (s *Session) IsEnded() bool {
	return s.Status == SessionEnded
}

// ToJSON serializes the session for persistence and state snapshots.
func (s *Session) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// SessionFromJSON deserializes a session produced by ToJSON.
func SessionFromJSON(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Transactions == nil {
		s.Transactions = []*Transaction{}
	}
	if s.Devices == nil {
		s.Devices = make(map[string]*DeviceConnection)
	}
	if s.Scores == nil {
		s.Scores = make(map[string]*TeamScore)
	}
	if s.Metadata.ScannedTokensByDevice == nil {
		s.Metadata.ScannedTokensByDevice = make(map[string]*StringSet)
	}
	return &s, nil
}
