// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package events is the in-process domain event bus between the session
// engine, the video queue, and the event fabric. It rides on Watermill's
// gochannel Pub/Sub and keeps a registry of every subscription so teardown
// can prove nothing leaked.
//
// Domain events are internal; the fabric translates them to wire events with
// the {event, data, timestamp} envelope. The engine publishes here and holds
// no reference to the fabric.
package events

import (
	"time"

	"github.com/aboutlastnight/orchestrator/internal/models"
)

// Domain topics.
const (
	// TopicSessionUpdated carries session creation and lifecycle changes.
	TopicSessionUpdated = "session.updated"

	// TopicTransactionCommitted carries every scan outcome (accepted,
	// rejected, duplicate) with the resulting score projection.
	TopicTransactionCommitted = "transaction.committed"

	// TopicScoreAdjusted carries admin score adjustments.
	TopicScoreAdjusted = "score.adjusted"

	// TopicScoresReset signals derived scores were cleared.
	TopicScoresReset = "scores.reset"

	// TopicTransactionDeleted signals an admin removed a transaction.
	TopicTransactionDeleted = "transaction.deleted"

	// TopicVideoStatus carries video queue state transitions.
	TopicVideoStatus = "video.status"

	// TopicDeviceUpdated carries device connect/disconnect changes.
	TopicDeviceUpdated = "device.updated"

	// TopicServiceError carries recovered structural failures.
	TopicServiceError = "service.error"
)

// SessionUpdated is the payload for TopicSessionUpdated.
type SessionUpdated struct {
	Session *models.Session `json:"session"`
	Created bool            `json:"created"`
}

// GroupCompletion describes a completed token group and its bonus.
type GroupCompletion struct {
	TeamID      string    `json:"teamId"`
	Group       string    `json:"group"`
	BonusPoints int       `json:"bonusPoints"`
	CompletedAt time.Time `json:"completedAt"`
}

// TransactionCommitted is the payload for TopicTransactionCommitted.
// TeamScore is nil when the outcome did not change the score (rejected,
// duplicate, detective-mode accepted).
type TransactionCommitted struct {
	SessionID     string              `json:"sessionId"`
	Transaction   *models.Transaction `json:"transaction"`
	TeamScore     *models.TeamScore   `json:"teamScore,omitempty"`
	Group         *GroupCompletion    `json:"group,omitempty"`
	ScannedTokens []string            `json:"scannedTokens"`
}

// ScoreAdjusted is the payload for TopicScoreAdjusted.
type ScoreAdjusted struct {
	SessionID string            `json:"sessionId"`
	TeamScore *models.TeamScore `json:"teamScore"`
	Delta     int               `json:"delta"`
	Reason    string            `json:"reason"`
}

// ScoresReset is the payload for TopicScoresReset.
type ScoresReset struct {
	SessionID string              `json:"sessionId"`
	Teams     []string            `json:"teams"`
	Scores    []*models.TeamScore `json:"scores"`
}

// TransactionDeleted is the payload for TopicTransactionDeleted.
type TransactionDeleted struct {
	SessionID     string            `json:"sessionId"`
	TransactionID string            `json:"transactionId"`
	TeamScore     *models.TeamScore `json:"teamScore"`
}

// DeviceUpdated is the payload for TopicDeviceUpdated.
type DeviceUpdated struct {
	SessionID string                   `json:"sessionId"`
	Device    *models.DeviceConnection `json:"device"`
	Connected bool                     `json:"connected"`
}

// ServiceError is the payload for TopicServiceError.
type ServiceError struct {
	Service string `json:"service"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
