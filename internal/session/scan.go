// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package session

import (
	"context"

	"github.com/aboutlastnight/orchestrator/internal/events"
	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/metrics"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

// ScanRequest is one GM scan submission.
type ScanRequest struct {
	TokenID  string          `json:"tokenId" validate:"required"`
	TeamID   string          `json:"teamId" validate:"required"`
	DeviceID string          `json:"deviceId" validate:"required"`
	Mode     models.ScanMode `json:"mode" validate:"required,oneof=blackmarket detective"`
}

// ScanResult is the committed outcome of a scan. TeamScore and Group are nil
// when the scan did not change the score.
type ScanResult struct {
	Transaction *models.Transaction     `json:"transaction"`
	TeamScore   *models.TeamScore       `json:"teamScore,omitempty"`
	Group       *events.GroupCompletion `json:"group,omitempty"`
}

// ProcessScan runs the scan algorithm under the engine lock:
// session guard, token lookup, per-device duplicate detection, mode gate,
// score computation, atomic commit, group-completion check, event emission,
// asynchronous persistence.
func (e *Engine) ProcessScan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// 1. Session guard.
	if e.current == nil || e.current.IsEnded() {
		return nil, ErrNoSession
	}
	if e.current.Status == models.SessionPaused {
		return nil, ErrSessionPaused
	}

	now := e.clock()
	tx := &models.Transaction{
		ID:        e.newID(),
		TokenID:   req.TokenID,
		TeamID:    req.TeamID,
		DeviceID:  req.DeviceID,
		Mode:      req.Mode,
		Timestamp: now,
		SessionID: e.current.ID,
	}

	// 2. Token lookup. Unknown tokens are recorded, not raised.
	token, known := e.catalog.Get(req.TokenID)
	if !known {
		tx.Status = models.TransactionRejected
		tx.Reason = "unknown token"
		return e.commitLocked(ctx, tx, nil, nil), nil
	}

	// 3. Per-device duplicate detection. Two GMs may each score the same
	// token for their own teams; the same device may not score it twice.
	scanned := e.current.ScannedTokens(req.DeviceID)
	if scanned.Has(req.TokenID) {
		tx.Status = models.TransactionDuplicate
		return e.commitLocked(ctx, tx, nil, nil), nil
	}

	// 4. Mode gate. Detective scans are logged with zero points and never
	// advance group completion.
	if req.Mode == models.ModeDetective {
		tx.Status = models.TransactionAccepted
		scanned.Add(req.TokenID)
		return e.commitLocked(ctx, tx, nil, nil), nil
	}

	// 5. Score computation.
	tx.Status = models.TransactionAccepted
	tx.Points = token.Value

	// 6. Atomic commit: append, mark scanned, bump the team projection.
	scanned.Add(req.TokenID)
	score := e.current.Score(req.TeamID, now)
	score.BaseScore += tx.Points
	score.TokensScanned++

	// 7. Group-completion check: all of the group's tokens scored by this
	// team, regardless of which device scanned them.
	var group *events.GroupCompletion
	if token.GroupID != "" && !score.HasCompletedGroup(token.GroupID) {
		// The transaction is not yet in the log; seed the scored set with it.
		scored := e.teamScoredTokensLocked(req.TeamID)
		scored[req.TokenID] = true
		if e.groupComplete(token.GroupID, scored) {
			bonus := e.catalog.GroupValueSum(token.GroupID) * (token.GroupMultiplier - 1)
			if bonus > 0 {
				score.BonusPoints += bonus
			}
			score.CompletedGroups = append(score.CompletedGroups, token.GroupID)
			group = &events.GroupCompletion{
				TeamID:      req.TeamID,
				Group:       token.GroupID,
				BonusPoints: bonus,
				CompletedAt: now,
			}
			metrics.GroupCompletionsTotal.Inc()
			logging.Info().Str("team_id", req.TeamID).Str("group", token.GroupID).
				Int("bonus", bonus).Msg("token group completed")
		}
	}
	score.Recalculate(now)

	// 8–9. Emit and schedule persistence.
	return e.commitLocked(ctx, tx, score.Clone(), group), nil
}

// commitLocked appends the transaction, publishes the single committed event
// carrying transaction + score + group (fan-out order for derived wire events
// follows from this being one payload), and marks the session dirty for the
// persister. Callers hold e.mu.
func (e *Engine) commitLocked(_ context.Context, tx *models.Transaction, score *models.TeamScore, group *events.GroupCompletion) *ScanResult {
	e.current.Transactions = append(e.current.Transactions, tx)
	e.markDirtyLocked()

	metrics.ScansTotal.WithLabelValues(string(tx.Status), string(tx.Mode)).Inc()

	txCopy := *tx
	e.publish(events.TopicTransactionCommitted, events.TransactionCommitted{
		SessionID:     e.current.ID,
		Transaction:   &txCopy,
		TeamScore:     score,
		Group:         group,
		ScannedTokens: e.current.ScannedTokens(tx.DeviceID).Values(),
	})

	logging.Debug().Str("tx_id", tx.ID).Str("token_id", tx.TokenID).
		Str("team_id", tx.TeamID).Str("device_id", tx.DeviceID).
		Str("status", string(tx.Status)).Int("points", tx.Points).Msg("scan committed")

	return &ScanResult{Transaction: &txCopy, TeamScore: score, Group: group}
}

// teamScoredTokensLocked derives the set of tokens a team has scored from the
// transaction log. Only accepted blackmarket scans count toward groups.
func (e *Engine) teamScoredTokensLocked(teamID string) map[string]bool {
	scored := make(map[string]bool)
	for _, tx := range e.current.Transactions {
		if tx.TeamID == teamID && tx.Status == models.TransactionAccepted && tx.Mode == models.ModeBlackmarket {
			scored[tx.TokenID] = true
		}
	}
	return scored
}

// groupComplete reports whether every token of the group is in scored.
func (e *Engine) groupComplete(groupID string, scored map[string]bool) bool {
	group := e.catalog.Group(groupID)
	if len(group) == 0 {
		return false
	}
	for _, tok := range group {
		if !scored[tok.ID] {
			return false
		}
	}
	return true
}
