// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/aboutlastnight/orchestrator/internal/logging"
)

// BadgerStore is the production KV store backed by BadgerDB.
type BadgerStore struct {
	path string

	mu sync.Mutex
	db *badger.DB
}

// NewBadgerStore creates a store rooted at path. Call Init before use.
func NewBadgerStore(path string) *BadgerStore {
	return &BadgerStore{path: path}
}

// Init opens the database. Safe to call once per store.
func (s *BadgerStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	opts := badger.DefaultOptions(s.path)
	opts.Logger = nil // badger's own logger is noisy; zerolog covers us
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger at %s: %w", s.path, err)
	}
	s.db = db
	logging.Info().Str("path", s.path).Msg("badger store opened")
	return nil
}

func (s *BadgerStore) database() (*badger.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("storage: store not initialized")
	}
	return s.db, nil
}

// Save writes value as a JSON document under key.
func (s *BadgerStore) Save(ctx context.Context, key string, value interface{}) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Load reads key into out. Returns ErrKeyNotFound when absent.
func (s *BadgerStore) Load(ctx context.Context, key string, out interface{}) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

// Delete removes key. Absent keys are ignored.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	db, err := s.database()
	if err != nil {
		return err
	}

	return db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}

// Keys lists keys with the given prefix.
func (s *BadgerStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}

	var keys []string
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		pfx := []byte(prefix)
		for it.Seek(pfx); it.ValidForPrefix(pfx); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Cleanup syncs and closes the database.
func (s *BadgerStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	logging.Info().Str("path", s.path).Msg("badger store closed")
	return nil
}
