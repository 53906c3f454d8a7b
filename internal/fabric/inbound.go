// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package fabric

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/aboutlastnight/orchestrator/internal/commands"
	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/models"
	"github.com/aboutlastnight/orchestrator/internal/session"
	"github.com/aboutlastnight/orchestrator/internal/validation"
)

// frameTimeout bounds the engine work done for one inbound frame.
const frameTimeout = 10 * time.Second

// handleFrame routes one inbound frame. Runs on the client's read goroutine,
// so handlers for the same socket never race each other.
func (f *Fabric) handleFrame(client *Client, frame InboundFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	switch frame.Event {
	case "heartbeat":
		f.engine.TouchDevice(client.DeviceID())
		f.hub.SendTo(client, "heartbeat:ack", map[string]interface{}{})

	case "sync:request":
		f.hub.SendTo(client, "sync:full", f.BuildSyncFull(client.DeviceID(), true))

	case "state:request":
		f.hub.SendTo(client, "state:sync", f.buildStateSync())

	case "transaction:submit":
		f.handleSubmit(ctx, client, frame.Data)

	case "transaction:batch":
		f.handleBatch(ctx, client, frame.Data)

	case "device:identify":
		f.handleIdentify(client, frame.Data)

	case "gm:command":
		f.handleCommand(ctx, client, frame.Data)

	default:
		f.sendError(client, models.ErrCodeValidation, "unknown event: "+frame.Event, nil)
	}
}

// buildStateSync is the light snapshot for state:request: session, scores and
// video, without the per-device fields of sync:full.
func (f *Fabric) buildStateSync() map[string]interface{} {
	snap := f.engine.Snapshot()
	return map[string]interface{}{
		"session":     snap,
		"videoStatus": f.worker.Status(),
	}
}

// handleSubmit processes one online scan submitted over the socket. The
// committed outcome reaches the device through the transaction:new broadcast;
// only structural failures come back as error frames.
func (f *Fabric) handleSubmit(ctx context.Context, client *Client, data json.RawMessage) {
	var req session.ScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		f.sendError(client, models.ErrCodeValidation, "malformed transaction:submit payload", nil)
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = client.DeviceID()
	}
	if req.Mode == "" {
		req.Mode = models.ModeBlackmarket
	}
	if reqErr := validation.ValidateStruct(&req); reqErr != nil {
		f.sendError(client, models.ErrCodeValidation, reqErr.Error(), reqErr.Details())
		return
	}

	result, err := f.engine.ProcessScan(ctx, req)
	if err != nil {
		code, msg := scanErrorCode(err)
		f.sendError(client, code, msg, nil)
		return
	}

	f.queueVideo(result)
}

// queueVideo queues the scanned token's video after an accepted blackmarket
// scan. GM submissions queue behind the current playback; the player-scan
// reject rule does not apply here.
func (f *Fabric) queueVideo(result *session.ScanResult) {
	tx := result.Transaction
	if tx.Status != models.TransactionAccepted || tx.Mode != models.ModeBlackmarket {
		return
	}
	token, ok := f.catalog.Get(tx.TokenID)
	if !ok || !token.HasVideo() {
		return
	}
	f.worker.Enqueue(token.ID, token.MediaAssets.Video, tx.DeviceID)
}

// batchRequest is the transaction:batch payload: a device draining its
// offline queue after reconnecting.
type batchRequest struct {
	Transactions []session.ScanRequest `json:"transactions" validate:"required,min=1"`
}

// handleBatch drains an offline queue. Each item runs through the same scan
// algorithm as a live submission, so duplicates scanned online while this
// device was offline are caught by the server-side dedup set. The summary is
// logged and the device gets one fresh snapshot.
func (f *Fabric) handleBatch(ctx context.Context, client *Client, data json.RawMessage) {
	var req batchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		f.sendError(client, models.ErrCodeValidation, "malformed transaction:batch payload", nil)
		return
	}
	if reqErr := validation.ValidateStruct(&req); reqErr != nil {
		f.sendError(client, models.ErrCodeValidation, reqErr.Error(), reqErr.Details())
		return
	}
	if len(req.Transactions) > f.cfg.OfflineQueueLimit {
		f.sendError(client, models.ErrCodeQueueFull, "offline batch exceeds queue limit", nil)
		return
	}

	var processed, failed int
	for i := range req.Transactions {
		item := req.Transactions[i]
		if item.DeviceID == "" {
			item.DeviceID = client.DeviceID()
		}
		if item.Mode == "" {
			item.Mode = models.ModeBlackmarket
		}
		if reqErr := validation.ValidateStruct(&item); reqErr != nil {
			failed++
			continue
		}
		if _, err := f.engine.ProcessScan(ctx, item); err != nil {
			failed++
			continue
		}
		processed++
	}

	logging.Info().Str("device_id", client.DeviceID()).
		Int("processed", processed).Int("failed", failed).
		Msg("offline transaction batch drained")

	f.hub.SendTo(client, "sync:full", f.BuildSyncFull(client.DeviceID(), true))
}

// identifyRequest is the device:identify payload.
type identifyRequest struct {
	TeamID string `json:"teamId,omitempty"`
}

// handleIdentify lets a connected socket declare its team after the
// handshake. GM stations get their identity confirmed; everyone gets a fresh
// snapshot.
func (f *Fabric) handleIdentify(client *Client, data json.RawMessage) {
	var req identifyRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			f.sendError(client, models.ErrCodeValidation, "malformed device:identify payload", nil)
			return
		}
	}
	if req.TeamID != "" {
		f.hub.JoinRoom(client, RoomTeam(req.TeamID))
	}
	if client.IsGM() {
		f.hub.SendTo(client, "gm:identified", map[string]interface{}{"deviceId": client.DeviceID()})
	}
	f.hub.SendTo(client, "sync:full", f.BuildSyncFull(client.DeviceID(), false))
}

// handleCommand runs one GM command. Non-GM sockets are refused.
func (f *Fabric) handleCommand(ctx context.Context, client *Client, data json.RawMessage) {
	if !client.IsGM() {
		f.sendError(client, models.ErrCodeAuthRequired, "gm:command requires a gm connection", nil)
		return
	}

	var cmd commands.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		f.sendError(client, models.ErrCodeValidation, "malformed gm:command payload", nil)
		return
	}
	if reqErr := validation.ValidateStruct(&cmd); reqErr != nil {
		f.sendError(client, models.ErrCodeValidation, reqErr.Error(), reqErr.Details())
		return
	}

	ack := f.dispatcher.Dispatch(ctx, cmd)
	f.hub.SendTo(client, "gm:command:ack", ack)

	// A freshly created session means new rooms; move every socket in.
	if cmd.Action == "session:create" && ack.Success {
		if snap := f.engine.Snapshot(); snap != nil {
			room := RoomSession(snap.ID)
			for _, member := range f.hub.RoomMembers(RoomGlobal) {
				f.hub.JoinRoom(member, room)
			}
		}
	}
}

// sendError delivers a wire error frame to one client.
func (f *Fabric) sendError(client *Client, code, message string, details []interface{}) {
	f.hub.SendTo(client, "error", models.APIError{Error: code, Message: message, Details: details})
}

// scanErrorCode maps engine sentinels to wire error codes.
func scanErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return models.ErrCodeNoSession, "no active session"
	case errors.Is(err, session.ErrSessionPaused):
		return models.ErrCodeSessionPaused, "session is paused"
	default:
		return models.ErrCodeInternal, err.Error()
	}
}
