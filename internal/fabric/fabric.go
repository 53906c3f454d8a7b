// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package fabric

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/aboutlastnight/orchestrator/internal/auth"
	"github.com/aboutlastnight/orchestrator/internal/commands"
	"github.com/aboutlastnight/orchestrator/internal/config"
	"github.com/aboutlastnight/orchestrator/internal/events"
	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/models"
	"github.com/aboutlastnight/orchestrator/internal/session"
	"github.com/aboutlastnight/orchestrator/internal/tokens"
	"github.com/aboutlastnight/orchestrator/internal/video"
)

// TokenValidator checks a GM bearer token at handshake time. *auth.Manager
// satisfies it.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Fabric owns the websocket surface: handshake, room membership, the
// domain-to-wire bridge, and the inbound frame router. It refuses to serve
// until its lifecycle has been walked in order.
type Fabric struct {
	hub        *Hub
	engine     *session.Engine
	worker     *video.Worker
	bus        *events.Bus
	validator  TokenValidator
	catalog    *tokens.Catalog
	dispatcher *commands.Dispatcher
	cfg        config.SessionConfig

	state atomic.Int32

	bridgeCancel context.CancelFunc

	upgrader websocket.Upgrader
}

// NewFabric wires the fabric over already-constructed services.
func NewFabric(hub *Hub, engine *session.Engine, worker *video.Worker, bus *events.Bus,
	validator TokenValidator, catalog *tokens.Catalog, dispatcher *commands.Dispatcher,
	cfg config.SessionConfig) *Fabric {
	return &Fabric{
		hub:        hub,
		engine:     engine,
		worker:     worker,
		bus:        bus,
		validator:  validator,
		catalog:    catalog,
		dispatcher: dispatcher,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Venue clients connect from kiosk browsers on the local
			// network; origin policy is enforced at the HTTP layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// State returns the current lifecycle stage.
func (f *Fabric) State() State {
	return State(f.state.Load())
}

func (f *Fabric) advance(op string, from, to State) error {
	if !f.state.CompareAndSwap(int32(from), int32(to)) {
		return &ErrLifecycle{Op: op, Have: State(f.state.Load()), Want: from}
	}
	logging.Info().Str("component", "fabric").Str("state", to.String()).Msg("fabric state changed")
	return nil
}

// AttachServices subscribes the domain-to-wire bridge. First lifecycle step.
func (f *Fabric) AttachServices(ctx context.Context) error {
	if err := f.advance("AttachServices", Uninitialized, ServicesReady); err != nil {
		return err
	}

	bridgeCtx, cancel := context.WithCancel(ctx)
	f.bridgeCancel = cancel

	if err := f.subscribeBridge(bridgeCtx); err != nil {
		cancel()
		f.state.Store(int32(Uninitialized))
		return err
	}
	return nil
}

// AttachHandlers arms the inbound frame router. Second lifecycle step.
func (f *Fabric) AttachHandlers() error {
	return f.advance("AttachHandlers", ServicesReady, HandlersReady)
}

// Listen opens the fabric for websocket handshakes. Final lifecycle step.
func (f *Fabric) Listen() error {
	return f.advance("Listen", HandlersReady, Listening)
}

// Cleanup tears the fabric down symmetrically: domain subscriptions are
// cancelled before sockets close, so no bridge handler fires into a dead hub.
// The fabric returns to Uninitialized and may be walked up again.
func (f *Fabric) Cleanup() {
	if f.bridgeCancel != nil {
		f.bridgeCancel()
		f.bridgeCancel = nil
	}
	f.hub.closeAll()
	f.state.Store(int32(Uninitialized))
	logging.Info().Str("component", "fabric").Msg("fabric cleaned up")
}

// HandleWS upgrades a websocket handshake. Auth and device-ID collisions are
// rejected before the upgrade so the client gets a proper HTTP status.
//
// Query parameters: deviceId (required), deviceType (gm|player, default
// player), token (required for gm), teamId (optional), version (logged only).
func (f *Fabric) HandleWS(w http.ResponseWriter, r *http.Request) {
	if f.State() != Listening {
		httpError(w, http.StatusServiceUnavailable, models.ErrCodeInternal, "fabric not listening")
		return
	}

	q := r.URL.Query()
	deviceID := q.Get("deviceId")
	if deviceID == "" {
		httpError(w, http.StatusBadRequest, models.ErrCodeValidation, "deviceId is required")
		return
	}

	deviceType := models.DevicePlayer
	if q.Get("deviceType") == string(models.DeviceGM) {
		deviceType = models.DeviceGM
	}

	if deviceType == models.DeviceGM {
		token := q.Get("token")
		if token == "" {
			httpError(w, http.StatusUnauthorized, models.ErrCodeAuthRequired, "gm connection requires a token")
			return
		}
		claims, err := f.validator.ValidateToken(token)
		if err != nil {
			httpError(w, http.StatusUnauthorized, models.ErrCodeAuthInvalid, "invalid or expired token")
			return
		}
		logging.Debug().Str("device_id", deviceID).Str("token_device", claims.DeviceID).
			Msg("gm token accepted")
	}

	if len(f.hub.RoomMembers(RoomDevice(deviceID))) > 0 {
		httpError(w, http.StatusConflict, models.ErrCodeDeviceIDCollision,
			"device id already connected")
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("device_id", deviceID).Msg("websocket upgrade failed")
		return
	}

	logging.Info().Str("device_id", deviceID).Str("device_type", string(deviceType)).
		Str("version", q.Get("version")).Str("remote", r.RemoteAddr).
		Msg("websocket handshake accepted")

	client := NewClient(f.hub, conn, deviceID, deviceType)
	client.handle = f.handleFrame
	client.onClose = func(c *Client) {
		f.engine.MarkDeviceDisconnected(c.deviceID)
	}

	f.hub.Register <- client
	f.joinHandshakeRooms(client, q.Get("teamId"))

	// Rostering fails with no session; the socket still connects so the GM
	// can create one.
	if _, err := f.engine.AddDevice(deviceID, deviceType, r.RemoteAddr); err != nil {
		logging.Debug().Err(err).Str("device_id", deviceID).Msg("device not rostered")
	}

	if deviceType == models.DeviceGM {
		f.hub.SendTo(client, "gm:identified", map[string]interface{}{"deviceId": deviceID})
	}
	f.hub.SendTo(client, "sync:full", f.BuildSyncFull(deviceID, false))

	go client.writePump()
	go client.readPump()
}

// joinHandshakeRooms walks the handshake join order: the device's own room,
// then gm, then team, then session.
func (f *Fabric) joinHandshakeRooms(client *Client, teamID string) {
	f.hub.JoinRoom(client, RoomDevice(client.deviceID))
	if client.IsGM() {
		f.hub.JoinRoom(client, RoomGM)
	}
	if teamID != "" {
		f.hub.JoinRoom(client, RoomTeam(teamID))
	}
	if snap := f.engine.Snapshot(); snap != nil && !snap.IsEnded() {
		f.hub.JoinRoom(client, RoomSession(snap.ID))
	}
}

// httpError writes a pre-upgrade JSON error body.
func httpError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIError{Error: code, Message: message})
}

// Sweeper periodically marks devices with stale heartbeats as reconnecting.
type Sweeper struct {
	engine  *session.Engine
	timeout time.Duration
}

// NewSweeper creates a heartbeat sweeper.
func NewSweeper(engine *session.Engine, timeout time.Duration) *Sweeper {
	return &Sweeper{engine: engine, timeout: timeout}
}

// Serve runs the sweep loop under suture supervision.
func (s *Sweeper) Serve(ctx context.Context) error {
	interval := s.timeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, dev := range s.engine.SweepHeartbeats(s.timeout) {
				logging.Warn().Str("device_id", dev.ID).
					Time("last_heartbeat", dev.LastHeartbeat).
					Msg("device heartbeat stale, marked reconnecting")
			}
		}
	}
}

// String names the service in supervisor logs.
func (s *Sweeper) String() string {
	return "heartbeat-sweeper"
}
