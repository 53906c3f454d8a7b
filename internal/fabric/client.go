// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package fabric

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/metrics"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	// sendBuffer is the per-client outbound queue. A slow client drops
	// frames rather than blocking the hub.
	sendBuffer = 256
)

// clientIDCounter keeps broadcast iteration order deterministic.
var clientIDCounter atomic.Uint64

// InboundFrame is one client→server message before dispatch.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client is one socket attachment: the middleman between the websocket
// connection and the hub. rooms is owned by the hub and guarded by its lock.
type Client struct {
	id         uint64
	hub        *Hub
	conn       *websocket.Conn
	send       chan models.Envelope
	closed     atomic.Bool
	deviceID   string
	deviceType models.DeviceType
	rooms      map[string]bool

	// handle dispatches inbound frames; set by the fabric before the pumps
	// start.
	handle func(*Client, InboundFrame)

	// onClose runs once when the read pump exits.
	onClose func(*Client)
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, deviceID string, deviceType models.DeviceType) *Client {
	return &Client{
		id:         clientIDCounter.Add(1),
		hub:        hub,
		conn:       conn,
		send:       make(chan models.Envelope, sendBuffer),
		deviceID:   deviceID,
		deviceType: deviceType,
		rooms:      make(map[string]bool),
	}
}

// DeviceID returns the device identifier presented at handshake.
func (c *Client) DeviceID() string { return c.deviceID }

// DeviceType returns the handshake device type.
func (c *Client) DeviceType() models.DeviceType { return c.deviceType }

// IsGM reports whether this socket authenticated as a GM station.
func (c *Client) IsGM() bool { return c.deviceType == models.DeviceGM }

// enqueue queues an envelope without blocking; full queues drop the frame.
func (c *Client) enqueue(env models.Envelope) {
	if c.closed.Load() {
		return
	}
	select {
	case c.send <- env:
	default:
		metrics.DroppedFramesTotal.Inc()
		logging.Warn().Str("device_id", c.deviceID).Str("event", env.Event).
			Msg("outbound frame dropped, client queue full")
	}
}

// readPump reads frames from the socket and dispatches them until the
// connection drops.
func (c *Client) readPump() {
	defer func() {
		if c.onClose != nil {
			c.onClose(c)
		}
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("set read deadline failed")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame InboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("device_id", c.deviceID).Msg("unexpected socket close")
			}
			return
		}
		if c.handle != nil {
			c.handle(c, frame)
		}
	}
}

// writePump writes queued envelopes and keepalive pings to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closed.Store(true)
		_ = c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				logging.Debug().Err(err).Str("device_id", c.deviceID).Msg("socket write failed")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
