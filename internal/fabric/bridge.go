// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package fabric

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/aboutlastnight/orchestrator/internal/events"
	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

// subscribeBridge attaches one handler per domain topic. Handlers that emit
// several wire events do so sequentially into the hub's single broadcast
// consumer, so transaction:new always lands before score:updated, which lands
// before group:completed.
func (f *Fabric) subscribeBridge(ctx context.Context) error {
	subs := map[string]events.Handler{
		events.TopicSessionUpdated:       f.onSessionUpdated,
		events.TopicTransactionCommitted: f.onTransactionCommitted,
		events.TopicScoreAdjusted:        f.onScoreAdjusted,
		events.TopicScoresReset:          f.onScoresReset,
		events.TopicTransactionDeleted:   f.onTransactionDeleted,
		events.TopicVideoStatus:          f.onVideoStatus,
		events.TopicDeviceUpdated:        f.onDeviceUpdated,
		events.TopicServiceError:         f.onServiceError,
	}
	for topic, handler := range subs {
		if err := f.bus.Subscribe(ctx, topic, handler); err != nil {
			return err
		}
	}
	return nil
}

func decodeEvent[T any](payload []byte, topic string) (*T, bool) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("bridge payload decode failed")
		return nil, false
	}
	return &out, true
}

func (f *Fabric) onSessionUpdated(payload []byte) {
	ev, ok := decodeEvent[events.SessionUpdated](payload, events.TopicSessionUpdated)
	if !ok {
		return
	}
	f.hub.Broadcast(RoomGlobal, "session:update", ev.Session)
}

func (f *Fabric) onTransactionCommitted(payload []byte) {
	ev, ok := decodeEvent[events.TransactionCommitted](payload, events.TopicTransactionCommitted)
	if !ok {
		return
	}

	f.hub.Broadcast(RoomSession(ev.SessionID), "transaction:new", map[string]interface{}{
		"transaction": ev.Transaction,
	})
	if ev.TeamScore != nil {
		f.hub.Broadcast(RoomGM, "score:updated", ev.TeamScore)
	}
	if ev.Group != nil {
		f.hub.Broadcast(RoomGM, "group:completed", ev.Group)
	}
}

func (f *Fabric) onScoreAdjusted(payload []byte) {
	ev, ok := decodeEvent[events.ScoreAdjusted](payload, events.TopicScoreAdjusted)
	if !ok {
		return
	}
	f.hub.Broadcast(RoomGM, "score:updated", ev.TeamScore)
}

// onScoresReset tells the session room scores were cleared, then hands every
// member a fresh device-scoped snapshot. Scoped to the session room only;
// other rooms never see the reset.
func (f *Fabric) onScoresReset(payload []byte) {
	ev, ok := decodeEvent[events.ScoresReset](payload, events.TopicScoresReset)
	if !ok {
		return
	}

	room := RoomSession(ev.SessionID)
	f.hub.Broadcast(room, "scores:reset", map[string]interface{}{
		"teams":  ev.Teams,
		"scores": ev.Scores,
	})
	for _, member := range f.hub.RoomMembers(room) {
		f.hub.SendTo(member, "sync:full", f.BuildSyncFull(member.DeviceID(), false))
	}
}

func (f *Fabric) onTransactionDeleted(payload []byte) {
	ev, ok := decodeEvent[events.TransactionDeleted](payload, events.TopicTransactionDeleted)
	if !ok {
		return
	}
	f.hub.Broadcast(RoomGM, "score:updated", ev.TeamScore)
}

func (f *Fabric) onVideoStatus(payload []byte) {
	ev, ok := decodeEvent[models.VideoStatusPayload](payload, events.TopicVideoStatus)
	if !ok {
		return
	}
	f.hub.Broadcast(RoomGM, "video:status", ev)
}

func (f *Fabric) onDeviceUpdated(payload []byte) {
	ev, ok := decodeEvent[events.DeviceUpdated](payload, events.TopicDeviceUpdated)
	if !ok {
		return
	}
	event := "device:disconnected"
	if ev.Connected {
		event = "device:connected"
	}
	f.hub.Broadcast(RoomGM, event, ev.Device)
}

func (f *Fabric) onServiceError(payload []byte) {
	ev, ok := decodeEvent[events.ServiceError](payload, events.TopicServiceError)
	if !ok {
		return
	}
	f.hub.Broadcast(RoomGlobal, "error", models.APIError{Error: ev.Code, Message: ev.Message})
}
