// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package fabric

import (
	"sort"

	"github.com/aboutlastnight/orchestrator/internal/models"
)

// BuildSyncFull assembles the full-state snapshot for one device. Session is
// null when none exists or the last one ended, so a reconnect after a
// server-side session end gets a clean slate; every slice is non-nil so
// clients never see JSON null where an array belongs.
func (f *Fabric) BuildSyncFull(deviceID string, reconnection bool) *models.SyncFull {
	snap := f.engine.Snapshot()
	if snap != nil && snap.IsEnded() {
		snap = nil
	}

	scores := make([]*models.TeamScore, 0)
	devices := make([]*models.DeviceConnection, 0)
	recent := make([]*models.Transaction, 0)
	scanned := []string{}
	if snap != nil {
		for _, score := range snap.Scores {
			scores = append(scores, score)
		}
		sort.Slice(scores, func(i, j int) bool { return scores[i].TeamID < scores[j].TeamID })

		for _, dev := range snap.Devices {
			devices = append(devices, dev)
		}
		sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

		recent = f.engine.RecentTransactions(f.cfg.RecentTransactionLimit)
		scanned = f.engine.ScannedTokensFor(deviceID)
	}

	return &models.SyncFull{
		Session:            snap,
		Scores:             scores,
		RecentTransactions: recent,
		VideoStatus:        f.worker.Status(),
		Devices:            devices,
		SystemStatus: models.SystemStatus{
			Orchestrator: true,
			VLC:          f.worker.Healthy(),
		},
		DeviceScannedTokens: scanned,
		Reconnection:        reconnection,
		Environment:         models.DefaultEnvironment(),
	}
}
