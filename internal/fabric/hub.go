// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package fabric is the event fabric: the websocket hub with rooms, the
// bridge translating domain events into wrapped wire events, and the
// lifecycle state machine guarding setup and teardown.
//
// Every outbound frame is an {event, data, timestamp} envelope; rooms scope
// fan-out (gm, session:<id>, device:<id>, team:<id>, global).
package fabric

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/metrics"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

// Room names. The empty string is the global room (every client).
const (
	RoomGlobal = ""
	RoomGM     = "gm"
)

// RoomDevice returns the single-socket room for a device.
func RoomDevice(deviceID string) string { return "device:" + deviceID }

// RoomSession returns the room for a session's sockets.
func RoomSession(sessionID string) string { return "session:" + sessionID }

// RoomTeam returns the room for sockets following a team.
func RoomTeam(teamID string) string { return "team:" + teamID }

// outbound is one room-scoped frame queued for fan-out.
type outbound struct {
	room     string
	envelope models.Envelope
}

// Hub tracks connected clients and their room memberships and fans wrapped
// frames out to rooms. A single goroutine consumes the broadcast channel, so
// frames submitted in order arrive at every member in that order.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	broadcast  chan outbound
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
	}
}

// RunWithContext runs the hub loop under suture supervision. Selection is
// priority ordered: shutdown, then client lifecycle, then broadcasts, so
// membership is settled before frames fan out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case out := <-h.broadcast:
			h.fanOut(out)
		}
	}
}

// String names the service in supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

// Broadcast queues a wrapped frame for every member of room.
func (h *Hub) Broadcast(room, event string, data interface{}) {
	h.broadcast <- outbound{room: room, envelope: models.NewEnvelope(event, data)}
}

// SendTo delivers a wrapped frame directly to one client, bypassing rooms.
// Used for handshake replies before the client joins anything.
func (h *Hub) SendTo(client *Client, event string, data interface{}) {
	client.enqueue(models.NewEnvelope(event, data))
	metrics.WireEventsTotal.WithLabelValues(event).Inc()
}

// JoinRoom adds the client to room.
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
	client.rooms[room] = true
}

// LeaveRoom removes the client from room.
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(client, room)
}

func (h *Hub) leaveRoomLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// RoomMembers returns the clients currently in room, sorted by client ID.
func (h *Hub) RoomMembers(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.roomMembersLocked(room)
}

func (h *Hub) roomMembersLocked(room string) []*Client {
	var out []*Client
	if room == RoomGlobal {
		out = make([]*Client, 0, len(h.clients))
		for c := range h.clients {
			out = append(out, c)
		}
	} else {
		members := h.rooms[room]
		out = make([]*Client, 0, len(members))
		for c := range members {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedDevices.WithLabelValues(string(client.deviceType)).Inc()
	logging.Info().Str("device_id", client.deviceID).Str("device_type", string(client.deviceType)).
		Int("total_clients", total).Msg("socket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for room := range client.rooms {
		h.leaveRoomLocked(client, room)
	}
	total := len(h.clients)
	h.mu.Unlock()

	client.closed.Store(true)
	if client.conn != nil {
		_ = client.conn.Close()
	}
	metrics.ConnectedDevices.WithLabelValues(string(client.deviceType)).Dec()
	logging.Info().Str("device_id", client.deviceID).Int("total_clients", total).
		Msg("socket client disconnected")
}

// fanOut delivers one frame to every room member in deterministic order.
func (h *Hub) fanOut(out outbound) {
	h.mu.RLock()
	members := h.roomMembersLocked(out.room)
	h.mu.RUnlock()

	for _, client := range members {
		client.enqueue(out.envelope)
	}
	metrics.WireEventsTotal.WithLabelValues(out.envelope.Event).Inc()
}

// shutdown drains pending broadcasts then closes every client, bounded by
// the 5 second socket-close cap.
func (h *Hub) shutdown(ctx context.Context) {
	deadline := time.Now().Add(5 * time.Second)

	for {
		select {
		case out := <-h.broadcast:
			if time.Now().Before(deadline) {
				h.fanOut(out)
			}
		default:
			h.closeAll()
			logging.Info().Str("component", "websocket-hub").
				Str("reason", shutdownReason(ctx)).Msg("websocket hub stopped")
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	for _, c := range clients {
		c.closed.Store(true)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		metrics.ConnectedDevices.WithLabelValues(string(c.deviceType)).Dec()
	}
}

func shutdownReason(ctx context.Context) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "context_deadline"
	}
	return "context_canceled"
}
