// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package models

import "time"

// ScoreAdjustment is one admin-issued delta applied to a team's score.
type ScoreAdjustment struct {
	Delta  int       `json:"delta"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// TeamScore is a projection fully recomputable from the transaction log, the
// admin adjustments, and the token catalog. It has no identity outside its
// session.
type TeamScore struct {
	TeamID           string            `json:"teamId"`
	BaseScore        int               `json:"baseScore"`
	BonusPoints      int               `json:"bonusPoints"`
	CurrentScore     int               `json:"currentScore"`
	TokensScanned    int               `json:"tokensScanned"`
	CompletedGroups  []string          `json:"completedGroups"`
	AdminAdjustments []ScoreAdjustment `json:"adminAdjustments"`
	LastUpdate       time.Time         `json:"lastUpdate"`
}

// NewTeamScore creates a zeroed score record for a team.
func NewTeamScore(teamID string, now time.Time) *TeamScore {
	return &TeamScore{
		TeamID:           teamID,
		CompletedGroups:  []string{},
		AdminAdjustments: []ScoreAdjustment{},
		LastUpdate:       now,
	}
}

// Recalculate refreshes CurrentScore from its parts and stamps LastUpdate.
func (t *TeamScore) Recalculate(now time.Time) {
	total := t.BaseScore + t.BonusPoints
	for _, adj := range t.AdminAdjustments {
		total += adj.Delta
	}
	t.CurrentScore = total
	t.LastUpdate = now
}

// HasCompletedGroup reports whether the team already earned the group bonus.
func (t *TeamScore) HasCompletedGroup(groupID string) bool {
	for _, g := range t.CompletedGroups {
		if g == groupID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to the event fabric.
func (t *TeamScore) Clone() *TeamScore {
	cp := *t
	cp.CompletedGroups = append([]string(nil), t.CompletedGroups...)
	cp.AdminAdjustments = append([]ScoreAdjustment(nil), t.AdminAdjustments...)
	return &cp
}
