// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package storage provides the opaque key/value persistence layer. Values are
// JSON documents; the engine treats the store as a black box with
// init/save/load/delete/cleanup semantics.
//
// Two implementations exist: a BadgerDB-backed store for production and an
// in-memory store for tests and degraded startup.
package storage

import (
	"context"
	"errors"
)

// Well-known keys. Schemas mirror the models package.
const (
	KeyCurrentSession = "session:current"
	KeyGameState      = "gameState:current"
	SessionKeyPrefix  = "session:"

	// KeyLegacyOfflineQueue is read once at startup and discarded; the
	// server no longer persists client queues.
	KeyLegacyOfflineQueue = "offlineQueue"
)

// ErrKeyNotFound is returned by Load when the key does not exist.
var ErrKeyNotFound = errors.New("storage: key not found")

// Store is the opaque KV contract. Concurrent saves to the same key are
// serialized by the implementation.
type Store interface {
	// Init prepares the store for use.
	Init(ctx context.Context) error

	// Save marshals value as JSON and writes it under key.
	Save(ctx context.Context, key string, value interface{}) error

	// Load reads key and unmarshals the JSON document into out.
	// Returns ErrKeyNotFound when absent.
	Load(ctx context.Context, key string, out interface{}) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Cleanup flushes pending writes and releases resources.
	Cleanup(ctx context.Context) error
}

// SessionKey returns the persistence key for a session ID.
func SessionKey(id string) string {
	return SessionKeyPrefix + id
}
