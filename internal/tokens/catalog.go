// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package tokens loads and serves the static token catalog: token ID to
// {value, group, media assets, memory type}. The catalog is immutable after
// load.
package tokens

import (
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/models"
)

// Catalog is a read-only token lookup table with group indexing.
type Catalog struct {
	byID    map[string]*models.Token
	byGroup map[string][]*models.Token
}

// NewCatalog builds a catalog from a token list. Duplicate IDs keep the first
// occurrence and log a warning.
func NewCatalog(list []*models.Token) *Catalog {
	c := &Catalog{
		byID:    make(map[string]*models.Token, len(list)),
		byGroup: make(map[string][]*models.Token),
	}
	for _, tok := range list {
		if _, exists := c.byID[tok.ID]; exists {
			logging.Warn().Str("token_id", tok.ID).Msg("duplicate token id in catalog, keeping first")
			continue
		}
		c.byID[tok.ID] = tok
		if tok.GroupID != "" {
			c.byGroup[tok.GroupID] = append(c.byGroup[tok.GroupID], tok)
		}
	}
	return c
}

// LoadFile reads a catalog from a JSON file holding an array of tokens.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token catalog %s: %w", path, err)
	}

	var list []*models.Token
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse token catalog %s: %w", path, err)
	}

	cat := NewCatalog(list)
	logging.Info().Int("tokens", cat.Len()).Int("groups", len(cat.byGroup)).Str("path", path).Msg("token catalog loaded")
	return cat, nil
}

// Get returns the token for id.
func (c *Catalog) Get(id string) (*models.Token, bool) {
	tok, ok := c.byID[id]
	return tok, ok
}

// Len returns the number of tokens in the catalog.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// All returns every token sorted by ID.
func (c *Catalog) All() []*models.Token {
	out := make([]*models.Token, 0, len(c.byID))
	for _, tok := range c.byID {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Group returns the tokens belonging to groupID.
func (c *Catalog) Group(groupID string) []*models.Token {
	return c.byGroup[groupID]
}

// GroupValueSum returns the summed base value of a group's tokens.
func (c *Catalog) GroupValueSum(groupID string) int {
	sum := 0
	for _, tok := range c.byGroup[groupID] {
		sum += tok.Value
	}
	return sum
}
