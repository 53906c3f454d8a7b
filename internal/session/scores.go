// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package session

import (
	"context"
	"sort"

	"github.com/aboutlastnight/orchestrator/internal/events"
	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

// AdjustTeamScore applies an admin delta to a team's score. The adjustment is
// kept on the record so recomputation preserves it.
func (e *Engine) AdjustTeamScore(ctx context.Context, teamID string, delta int, reason string) (*models.TeamScore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.IsEnded() {
		return nil, ErrNoSession
	}

	now := e.clock()
	score := e.current.Score(teamID, now)
	score.AdminAdjustments = append(score.AdminAdjustments, models.ScoreAdjustment{
		Delta: delta, Reason: reason, At: now,
	})
	score.Recalculate(now)
	e.markDirtyLocked()

	cp := score.Clone()
	e.publish(events.TopicScoreAdjusted, events.ScoreAdjusted{
		SessionID: e.current.ID, TeamScore: cp, Delta: delta, Reason: reason,
	})
	logging.Info().Str("team_id", teamID).Int("delta", delta).Str("reason", reason).
		Int("current_score", cp.CurrentScore).Msg("team score adjusted")
	return cp, nil
}

// ResetTeamScores zeroes the derived score projection for the named teams, or
// for every team when teamIDs is empty. The transaction log is untouched; this
// is a live-ops escape hatch, so the projection intentionally diverges from
// the log until new scans arrive.
func (e *Engine) ResetTeamScores(ctx context.Context, teamIDs []string) ([]*models.TeamScore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.IsEnded() {
		return nil, ErrNoSession
	}

	targets := teamIDs
	if len(targets) == 0 {
		targets = make([]string, 0, len(e.current.Scores))
		for teamID := range e.current.Scores {
			targets = append(targets, teamID)
		}
		sort.Strings(targets)
	}

	now := e.clock()
	reset := make([]*models.TeamScore, 0, len(targets))
	for _, teamID := range targets {
		score := e.current.Score(teamID, now)
		score.BaseScore = 0
		score.BonusPoints = 0
		score.TokensScanned = 0
		score.CompletedGroups = []string{}
		score.AdminAdjustments = []models.ScoreAdjustment{}
		score.Recalculate(now)
		reset = append(reset, score.Clone())
	}
	e.markDirtyLocked()

	e.publish(events.TopicScoresReset, events.ScoresReset{
		SessionID: e.current.ID, Teams: targets, Scores: reset,
	})
	logging.Info().Strs("teams", targets).Msg("team scores reset")
	return reset, nil
}

// DeleteTransaction removes a transaction from the log and rebuilds every
// team's derived score from scratch. Group bonuses that no longer hold are
// revoked by the replay.
func (e *Engine) DeleteTransaction(ctx context.Context, txID string) (*models.TeamScore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return nil, ErrNoSession
	}

	idx := -1
	for i, tx := range e.current.Transactions {
		if tx.ID == txID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrTransactionNotFound
	}

	removed := e.current.Transactions[idx]
	e.current.Transactions = append(e.current.Transactions[:idx], e.current.Transactions[idx+1:]...)

	// Free the token for the device again unless another of its transactions
	// still references it.
	stillScanned := false
	for _, tx := range e.current.Transactions {
		if tx.DeviceID == removed.DeviceID && tx.TokenID == removed.TokenID &&
			tx.Status != models.TransactionRejected {
			stillScanned = true
			break
		}
	}
	if !stillScanned {
		if set, ok := e.current.Metadata.ScannedTokensByDevice[removed.DeviceID]; ok {
			set.Remove(removed.TokenID)
		}
	}

	e.recomputeScoresLocked()
	e.markDirtyLocked()

	score := e.current.Score(removed.TeamID, e.clock()).Clone()
	e.publish(events.TopicTransactionDeleted, events.TransactionDeleted{
		SessionID: e.current.ID, TransactionID: txID, TeamScore: score,
	})
	logging.Info().Str("tx_id", txID).Str("team_id", removed.TeamID).
		Str("token_id", removed.TokenID).Msg("transaction deleted, scores recomputed")
	return score, nil
}

// recomputeScoresLocked zeroes every team's derived fields and replays the
// transaction log in append order, re-running score computation and
// group-completion checks. Admin adjustments survive. Callers hold e.mu.
func (e *Engine) recomputeScoresLocked() {
	now := e.clock()

	for _, score := range e.current.Scores {
		score.BaseScore = 0
		score.BonusPoints = 0
		score.TokensScanned = 0
		score.CompletedGroups = []string{}
	}

	scoredByTeam := make(map[string]map[string]bool)
	for _, tx := range e.current.Transactions {
		if tx.Status != models.TransactionAccepted || tx.Mode != models.ModeBlackmarket {
			continue
		}
		token, known := e.catalog.Get(tx.TokenID)
		if !known {
			continue
		}

		score := e.current.Score(tx.TeamID, now)
		score.BaseScore += token.Value
		score.TokensScanned++

		scored := scoredByTeam[tx.TeamID]
		if scored == nil {
			scored = make(map[string]bool)
			scoredByTeam[tx.TeamID] = scored
		}
		scored[tx.TokenID] = true

		if token.GroupID != "" && !score.HasCompletedGroup(token.GroupID) && e.groupComplete(token.GroupID, scored) {
			bonus := e.catalog.GroupValueSum(token.GroupID) * (token.GroupMultiplier - 1)
			if bonus > 0 {
				score.BonusPoints += bonus
			}
			score.CompletedGroups = append(score.CompletedGroups, token.GroupID)
		}
	}

	for _, score := range e.current.Scores {
		score.Recalculate(now)
	}
}
