// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package commands is the admin/GM command plane: a closed verb set carried
// by the gm:command wire event. Every command validates its payload and
// answers with an ack; failures are acks with success=false, never raw
// errors on the wire.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/session"
	"github.com/aboutlastnight/orchestrator/internal/tokens"
	"github.com/aboutlastnight/orchestrator/internal/validation"
	"github.com/aboutlastnight/orchestrator/internal/video"
)

// Command is one gm:command frame payload.
type Command struct {
	Action  string          `json:"action" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ack is the gm:command:ack reply.
type Ack struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Dispatcher routes commands to the engine and the video worker.
type Dispatcher struct {
	engine  *session.Engine
	video   *video.Worker
	catalog *tokens.Catalog
}

// NewDispatcher creates a dispatcher over the engine and video worker.
func NewDispatcher(engine *session.Engine, worker *video.Worker, catalog *tokens.Catalog) *Dispatcher {
	return &Dispatcher{engine: engine, video: worker, catalog: catalog}
}

// Payload shapes, one per verb that carries data.
type (
	sessionCreatePayload struct {
		Name  string   `json:"name" validate:"required"`
		Teams []string `json:"teams" validate:"required,min=1,dive,required"`
	}
	transactionDeletePayload struct {
		TxID string `json:"txId" validate:"required"`
	}
	scoreAdjustPayload struct {
		TeamID string `json:"teamId" validate:"required"`
		Delta  int    `json:"delta" validate:"required"`
		Reason string `json:"reason" validate:"required"`
	}
	scoresResetPayload struct {
		Teams []string `json:"teams,omitempty"`
	}
	videoPlayPayload struct {
		TokenID string `json:"tokenId,omitempty"`
	}
	queueAddPayload struct {
		Filename string `json:"filename" validate:"required"`
	}
	queueReorderPayload struct {
		Order []string `json:"order" validate:"required,min=1"`
	}
	deviceResetPayload struct {
		DeviceID string `json:"deviceId" validate:"required"`
	}
)

// Dispatch executes one command and always returns an ack.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Ack {
	ack := func(err error) Ack {
		if err != nil {
			return Ack{Action: cmd.Action, Success: false, Message: commandMessage(err)}
		}
		return Ack{Action: cmd.Action, Success: true}
	}

	logging.Debug().Str("action", cmd.Action).Msg("gm command dispatched")

	switch cmd.Action {
	case "session:create":
		var p sessionCreatePayload
		if err := decode(cmd.Payload, &p); err != nil {
			return ack(err)
		}
		_, err := d.engine.CreateSession(ctx, p.Name, p.Teams)
		return ack(err)

	case "session:pause":
		_, err := d.engine.Pause(ctx)
		return ack(err)

	case "session:resume":
		_, err := d.engine.Resume(ctx)
		return ack(err)

	case "session:end":
		_, err := d.engine.EndSession(ctx)
		return ack(err)

	case "transaction:delete":
		var p transactionDeletePayload
		if err := decode(cmd.Payload, &p); err != nil {
			return ack(err)
		}
		_, err := d.engine.DeleteTransaction(ctx, p.TxID)
		return ack(err)

	case "score:adjust":
		var p scoreAdjustPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return ack(err)
		}
		_, err := d.engine.AdjustTeamScore(ctx, p.TeamID, p.Delta, p.Reason)
		return ack(err)

	case "scores:reset":
		var p scoresResetPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return ack(err)
		}
		_, err := d.engine.ResetTeamScores(ctx, p.Teams)
		return ack(err)

	case "video:play":
		return d.videoPlay(ctx, cmd)

	case "video:pause":
		if !d.video.Pause(ctx) {
			return Ack{Action: cmd.Action, Success: false, Message: "nothing playing"}
		}
		return ack(nil)

	case "video:resume":
		if !d.video.Resume(ctx) {
			return Ack{Action: cmd.Action, Success: false, Message: "nothing to resume"}
		}
		return ack(nil)

	case "video:stop":
		if !d.video.Stop(ctx) {
			return Ack{Action: cmd.Action, Success: false, Message: "nothing playing"}
		}
		return ack(nil)

	case "video:skip":
		if !d.video.Skip(ctx) {
			return Ack{Action: cmd.Action, Success: false, Message: "nothing playing"}
		}
		return ack(nil)

	case "video:queue:add":
		var p queueAddPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return ack(err)
		}
		d.video.AddByFilename(p.Filename)
		return ack(nil)

	case "video:queue:reorder":
		var p queueReorderPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return ack(err)
		}
		return ack(d.video.Reorder(p.Order))

	case "video:queue:clear":
		d.video.ClearQueue()
		return ack(nil)

	case "device:reset":
		var p deviceResetPayload
		if err := decode(cmd.Payload, &p); err != nil {
			return ack(err)
		}
		return ack(d.engine.ResetDevice(p.DeviceID))

	case "env:bluetooth", "env:audio", "env:lighting":
		// No venue controllers wired; degrade cleanly.
		return Ack{Action: cmd.Action, Success: false, Message: "not available"}

	default:
		return Ack{Action: cmd.Action, Success: false, Message: "unknown action"}
	}
}

// videoPlay with a tokenId enqueues that token's video; without one it
// resumes a paused playback.
func (d *Dispatcher) videoPlay(ctx context.Context, cmd Command) Ack {
	var p videoPlayPayload
	if err := decode(cmd.Payload, &p); err != nil {
		return Ack{Action: cmd.Action, Success: false, Message: commandMessage(err)}
	}

	if p.TokenID == "" {
		if !d.video.Resume(ctx) {
			return Ack{Action: cmd.Action, Success: false, Message: "nothing to resume"}
		}
		return Ack{Action: cmd.Action, Success: true}
	}

	token, ok := d.catalog.Get(p.TokenID)
	if !ok {
		return Ack{Action: cmd.Action, Success: false, Message: "unknown token"}
	}
	if !token.HasVideo() {
		return Ack{Action: cmd.Action, Success: false, Message: "token has no video"}
	}
	d.video.Enqueue(token.ID, token.MediaAssets.Video, "admin")
	return Ack{Action: cmd.Action, Success: true}
}

// decode unmarshals and validates a command payload.
func decode(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if reqErr := validation.ValidateStruct(out); reqErr != nil {
		return reqErr
	}
	return nil
}

// commandMessage flattens an error into an ack message, preferring the
// field-level detail of validation failures.
func commandMessage(err error) string {
	var reqErr *validation.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Error()
	}
	return err.Error()
}
