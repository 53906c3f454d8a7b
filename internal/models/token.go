// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package models

// MediaAssets points at the static media bound to a token.
type MediaAssets struct {
	Image string `json:"image,omitempty"`
	Audio string `json:"audio,omitempty"`
	Video string `json:"video,omitempty"`
}

// Token is one entry of the static token catalog. The catalog is read-only
// at runtime.
type Token struct {
	ID         string `json:"id"`
	Value      int    `json:"value"`
	MemoryType string `json:"memoryType"`

	// GroupID names the bonus group this token belongs to, if any.
	GroupID string `json:"groupId,omitempty"`

	// GroupMultiplier is the bonus multiplier applied when a team completes
	// the group. Meaningful only when GroupID is set.
	GroupMultiplier int `json:"groupMultiplier,omitempty"`

	MediaAssets MediaAssets `json:"mediaAssets,omitempty"`
}

// HasVideo reports whether scanning this token should trigger video playback.
func (t *Token) HasVideo() bool {
	return t.MediaAssets.Video != ""
}
