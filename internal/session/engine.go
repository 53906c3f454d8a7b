// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package session implements the session and transaction engine: the single
// authoritative decision point for every GM scan. All mutations pass through
// one mutex; derived scores are a projection recomputable from the
// transaction log and the token catalog.
//
// Business outcomes (rejected, duplicate) are recorded on the transaction,
// never raised as errors. Only structural failures (no session, paused
// session, storage errors) reach the caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aboutlastnight/orchestrator/internal/config"
	"github.com/aboutlastnight/orchestrator/internal/events"
	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/metrics"
	"github.com/aboutlastnight/orchestrator/internal/models"
	"github.com/aboutlastnight/orchestrator/internal/storage"
	"github.com/aboutlastnight/orchestrator/internal/tokens"
)

// Structural failures. Handlers map these to the API error kinds.
var (
	ErrNoSession           = errors.New("session: no active session")
	ErrSessionPaused       = errors.New("session: session is paused")
	ErrSessionExists       = errors.New("session: a session is already running")
	ErrTransactionNotFound = errors.New("session: transaction not found")
	ErrDeviceIDCollision   = errors.New("session: device id already connected")
)

// Engine owns the authoritative session state. One engine per process; every
// mutation runs under e.mu and publishes its domain events before returning,
// which is what gives derived wire events their total order.
type Engine struct {
	store   storage.Store
	bus     *events.Bus
	catalog *tokens.Catalog
	cfg     config.SessionConfig

	mu      sync.Mutex
	current *models.Session
	dirty   bool

	// test seams
	clock func() time.Time
	newID func() string
}

// NewEngine creates an engine with no session loaded. Call Restore to pick up
// persisted state.
func NewEngine(store storage.Store, bus *events.Bus, catalog *tokens.Catalog, cfg config.SessionConfig) *Engine {
	return &Engine{
		store:   store,
		bus:     bus,
		catalog: catalog,
		cfg:     cfg,
		clock:   func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Restore loads the persisted current session, if any, and migrates away the
// legacy server-side offline queue (read once, warn, delete).
func (e *Engine) Restore(ctx context.Context) error {
	var legacy []interface{}
	if err := e.store.Load(ctx, storage.KeyLegacyOfflineQueue, &legacy); err == nil {
		logging.Warn().Int("entries", len(legacy)).
			Msg("dropping legacy server-side offline queue; clients own their queues now")
		if err := e.store.Delete(ctx, storage.KeyLegacyOfflineQueue); err != nil {
			return fmt.Errorf("delete legacy offline queue: %w", err)
		}
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		logging.Warn().Err(err).Msg("legacy offline queue unreadable, ignoring")
	}

	var snap models.Session
	err := e.store.Load(ctx, storage.KeyCurrentSession, &snap)
	if errors.Is(err, storage.ErrKeyNotFound) {
		logging.Info().Msg("no persisted session")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load current session: %w", err)
	}

	data, merr := snap.ToJSON()
	if merr != nil {
		return fmt.Errorf("normalize restored session: %w", merr)
	}
	restored, merr := models.SessionFromJSON(data)
	if merr != nil {
		return fmt.Errorf("normalize restored session: %w", merr)
	}

	e.mu.Lock()
	e.current = restored
	// Devices from a previous process are gone until they re-identify.
	for _, dev := range e.current.Devices {
		dev.ConnectionStatus = models.DeviceDisconnected
	}
	e.mu.Unlock()

	logging.Info().Str("session_id", restored.ID).Str("status", string(restored.Status)).
		Int("transactions", len(restored.Transactions)).Msg("session restored")
	return nil
}

// CreateSession starts a new session. Fails with ErrSessionExists while
// another session is not ended.
func (e *Engine) CreateSession(ctx context.Context, name string, teams []string) (*models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil && !e.current.IsEnded() {
		return nil, ErrSessionExists
	}

	now := e.clock()
	s := models.NewSession(e.newID(), name, teams, now)
	e.current = s

	if err := e.persistLocked(ctx); err != nil {
		e.current = nil
		return nil, err
	}

	snap := e.snapshotLocked()
	e.publish(events.TopicSessionUpdated, events.SessionUpdated{Session: snap, Created: true})
	logging.Info().Str("session_id", s.ID).Str("name", name).Strs("teams", teams).Msg("session created")
	return snap, nil
}

// EndSession stamps endTime and transitions the session to ended.
func (e *Engine) EndSession(ctx context.Context) (*models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.IsEnded() {
		return nil, ErrNoSession
	}

	now := e.clock()
	e.current.EndTime = &now
	e.current.Status = models.SessionEnded

	if err := e.persistLocked(ctx); err != nil {
		return nil, err
	}

	snap := e.snapshotLocked()
	e.publish(events.TopicSessionUpdated, events.SessionUpdated{Session: snap})
	logging.Info().Str("session_id", snap.ID).Msg("session ended")
	return snap, nil
}

// Pause suspends scan processing without ending the session.
func (e *Engine) Pause(ctx context.Context) (*models.Session, error) {
	return e.setStatus(ctx, models.SessionActive, models.SessionPaused)
}

// Resume reverses Pause.
func (e *Engine) Resume(ctx context.Context) (*models.Session, error) {
	return e.setStatus(ctx, models.SessionPaused, models.SessionActive)
}

func (e *Engine) setStatus(ctx context.Context, from, to models.SessionStatus) (*models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.IsEnded() {
		return nil, ErrNoSession
	}
	if e.current.Status != from {
		// Idempotent: pausing a paused session is a no-op.
		if e.current.Status == to {
			return e.snapshotLocked(), nil
		}
		return nil, ErrNoSession
	}

	e.current.Status = to
	if err := e.persistLocked(ctx); err != nil {
		e.current.Status = from
		return nil, err
	}

	snap := e.snapshotLocked()
	e.publish(events.TopicSessionUpdated, events.SessionUpdated{Session: snap})
	logging.Info().Str("session_id", snap.ID).Str("status", string(to)).Msg("session status changed")
	return snap, nil
}

// AddDevice attaches a device to the session roster. A device ID may be
// reused only after the prior holder is disconnected.
func (e *Engine) AddDevice(deviceID string, deviceType models.DeviceType, ip string) (*models.DeviceConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.IsEnded() {
		return nil, ErrNoSession
	}

	if existing, ok := e.current.Devices[deviceID]; ok && existing.ConnectionStatus == models.DeviceConnected {
		return nil, ErrDeviceIDCollision
	}

	now := e.clock()
	dev := &models.DeviceConnection{
		ID:               deviceID,
		Type:             deviceType,
		ConnectionStatus: models.DeviceConnected,
		ConnectionTime:   now,
		LastHeartbeat:    now,
		IPAddress:        ip,
	}
	if prior, ok := e.current.Devices[deviceID]; ok {
		dev.SyncState = prior.SyncState
	}
	e.current.Devices[deviceID] = dev
	e.markDirtyLocked()

	cp := *dev
	e.publish(events.TopicDeviceUpdated, events.DeviceUpdated{
		SessionID: e.current.ID, Device: &cp, Connected: true,
	})
	return &cp, nil
}

// MarkDeviceDisconnected records a device drop. Unknown devices are ignored.
func (e *Engine) MarkDeviceDisconnected(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return
	}
	dev, ok := e.current.Devices[deviceID]
	if !ok || dev.ConnectionStatus == models.DeviceDisconnected {
		return
	}
	dev.ConnectionStatus = models.DeviceDisconnected
	e.markDirtyLocked()

	cp := *dev
	e.publish(events.TopicDeviceUpdated, events.DeviceUpdated{
		SessionID: e.current.ID, Device: &cp, Connected: false,
	})
}

// TouchDevice records a heartbeat. A reconnecting device flips back to
// connected.
func (e *Engine) TouchDevice(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return
	}
	dev, ok := e.current.Devices[deviceID]
	if !ok {
		return
	}
	dev.LastHeartbeat = e.clock()
	if dev.ConnectionStatus == models.DeviceReconnecting {
		dev.ConnectionStatus = models.DeviceConnected
	}
	e.markDirtyLocked()
}

// ResetDevice clears a device's scanned-token set so it may score tokens
// again. Admin-plane escape hatch; the transaction log is untouched.
func (e *Engine) ResetDevice(deviceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.IsEnded() {
		return ErrNoSession
	}
	delete(e.current.Metadata.ScannedTokensByDevice, deviceID)
	e.markDirtyLocked()
	logging.Info().Str("device_id", deviceID).Msg("device scan set reset")
	return nil
}

// SweepHeartbeats marks devices whose heartbeat is older than timeout as
// reconnecting and returns them. Called periodically by the fabric.
func (e *Engine) SweepHeartbeats(timeout time.Duration) []*models.DeviceConnection {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return nil
	}

	var stale []*models.DeviceConnection
	cutoff := e.clock().Add(-timeout)
	for _, dev := range e.current.Devices {
		if dev.ConnectionStatus == models.DeviceConnected && dev.LastHeartbeat.Before(cutoff) {
			dev.ConnectionStatus = models.DeviceReconnecting
			cp := *dev
			stale = append(stale, &cp)
		}
	}
	if len(stale) > 0 {
		e.markDirtyLocked()
	}
	return stale
}

// Snapshot returns a deep copy of the current session, or nil when none.
func (e *Engine) Snapshot() *models.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// HasActiveSession reports whether a non-ended session exists.
func (e *Engine) HasActiveSession() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && !e.current.IsEnded()
}

// ScannedTokensFor returns the token IDs a device has already scanned,
// sorted. Used to build device-scoped sync:full payloads.
func (e *Engine) ScannedTokensFor(deviceID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return []string{}
	}
	set, ok := e.current.Metadata.ScannedTokensByDevice[deviceID]
	if !ok {
		return []string{}
	}
	return set.Values()
}

// RecentTransactions returns the newest limit transactions, newest last.
func (e *Engine) RecentTransactions(limit int) []*models.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return []*models.Transaction{}
	}
	txs := e.current.Transactions
	if limit > 0 && len(txs) > limit {
		txs = txs[len(txs)-limit:]
	}
	out := make([]*models.Transaction, len(txs))
	for i, tx := range txs {
		cp := *tx
		out[i] = &cp
	}
	return out
}

// Flush writes the session snapshot synchronously if dirty. Called by the
// persister loop and on shutdown.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dirty || e.current == nil {
		return nil
	}
	return e.persistLocked(ctx)
}

// snapshotLocked deep-copies the session via its JSON form. Callers hold e.mu.
func (e *Engine) snapshotLocked() *models.Session {
	if e.current == nil {
		return nil
	}
	data, err := e.current.ToJSON()
	if err != nil {
		logging.Error().Err(err).Msg("session snapshot marshal failed")
		return nil
	}
	snap, err := models.SessionFromJSON(data)
	if err != nil {
		logging.Error().Err(err).Msg("session snapshot unmarshal failed")
		return nil
	}
	return snap
}

func (e *Engine) markDirtyLocked() {
	e.dirty = true
}

// persistLocked writes the session under both the current-session key and its
// own ID key, then clears the dirty flag. Callers hold e.mu.
func (e *Engine) persistLocked(ctx context.Context) error {
	if e.current == nil {
		return nil
	}
	start := time.Now()
	if err := e.store.Save(ctx, storage.KeyCurrentSession, e.current); err != nil {
		metrics.PersistErrors.Inc()
		return fmt.Errorf("persist current session: %w", err)
	}
	if err := e.store.Save(ctx, storage.SessionKey(e.current.ID), e.current); err != nil {
		metrics.PersistErrors.Inc()
		return fmt.Errorf("persist session %s: %w", e.current.ID, err)
	}
	metrics.PersistDuration.Observe(time.Since(start).Seconds())
	e.dirty = false
	return nil
}

// publish sends a domain event, logging instead of failing the mutation when
// the bus is already closed (shutdown races).
func (e *Engine) publish(topic string, payload interface{}) {
	if err := e.bus.Publish(topic, payload); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("domain event publish failed")
	}
}
