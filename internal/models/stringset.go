// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package models

import (
	"sort"

	"github.com/goccy/go-json"
)

// StringSet is an unordered set of strings that serializes as a sorted JSON
// array. It backs the per-device scanned-token tracking, where clients expect
// an array on the wire but the engine needs set semantics.
type StringSet struct {
	m map[string]struct{}
}

// NewStringSet creates a set containing the given items.
func NewStringSet(items ...string) *StringSet {
	s := &StringSet{m: make(map[string]struct{}, len(items))}
	for _, item := range items {
		s.m[item] = struct{}{}
	}
	return s
}

// Add inserts item into the set. It returns false if the item was already
// present, making repeated adds a no-op.
func (s *StringSet) Add(item string) bool {
	if s.m == nil {
		s.m = make(map[string]struct{})
	}
	if _, ok := s.m[item]; ok {
		return false
	}
	s.m[item] = struct{}{}
	return true
}

// Remove deletes item from the set. Removing an absent item is a no-op.
func (s *StringSet) Remove(item string) {
	if s == nil || s.m == nil {
		return
	}
	delete(s.m, item)
}

// Has reports whether item is in the set.
func (s *StringSet) Has(item string) bool {
	if s == nil || s.m == nil {
		return false
	}
	_, ok := s.m[item]
	return ok
}

// Len returns the number of items in the set.
func (s *StringSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Values returns the items in sorted order.
func (s *StringSet) Values() []string {
	if s == nil || len(s.m) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(s.m))
	for item := range s.m {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s *StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON decodes the set from an array.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	s.m = make(map[string]struct{}, len(items))
	for _, item := range items {
		s.m[item] = struct{}{}
	}
	return nil
}
