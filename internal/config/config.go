// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package config loads orchestrator configuration with koanf, layering
// struct defaults, an optional YAML file, and ALN_-prefixed environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the orchestrator.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Storage  StorageConfig  `koanf:"storage"`
	Session  SessionConfig  `koanf:"session"`
	Video    VideoConfig    `koanf:"video"`
	Tokens   TokensConfig   `koanf:"tokens"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig controls the HTTP/socket listener.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// RequestTimeout bounds HTTP handler execution.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// ShutdownTimeout caps graceful socket drain and server close.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists allowed origins for browser clients. "*" allows all.
	CORSOrigins []string `koanf:"cors_origins"`
}

// SecurityConfig controls admin authentication.
type SecurityConfig struct {
	// AdminPassword is the shared admin password. A bcrypt hash (prefix
	// "$2") is compared with bcrypt; any other value is compared in
	// constant time.
	AdminPassword string `koanf:"admin_password"`

	// JWTSecret signs bearer tokens. Minimum 32 characters.
	JWTSecret string `koanf:"jwt_secret"`

	// TokenTTL is the bearer token lifetime.
	TokenTTL time.Duration `koanf:"token_ttl"`

	// AuthRateLimit caps login attempts per window per IP.
	AuthRateLimit  int           `koanf:"auth_rate_limit"`
	AuthRateWindow time.Duration `koanf:"auth_rate_window"`

	// ScanRatePerSecond throttles player-scanner ingress per device.
	ScanRatePerSecond float64 `koanf:"scan_rate_per_second"`
	ScanRateBurst     int     `koanf:"scan_rate_burst"`
}

// StorageConfig controls the KV persistence layer.
type StorageConfig struct {
	// Path is the badger database directory. Empty selects the in-memory
	// store (tests, dry runs).
	Path string `koanf:"path"`

	// Required makes startup fail when the store cannot be opened. When
	// false the orchestrator degrades to the in-memory store with a warning.
	Required bool `koanf:"required"`

	// FlushInterval is how often the persister writes dirty session state.
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// SessionConfig tunes the session engine.
type SessionConfig struct {
	// RecentTransactionLimit caps the recentTransactions slice in sync:full.
	RecentTransactionLimit int `koanf:"recent_transaction_limit"`

	// OfflineQueueLimit caps per-client offline drains.
	OfflineQueueLimit int `koanf:"offline_queue_limit"`

	// HeartbeatTimeout marks devices reconnecting when heartbeats stop.
	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout"`
}

// VideoConfig controls the video queue and the external player.
type VideoConfig struct {
	// PlayerURL is the VLC HTTP interface base URL. Empty runs the queue in
	// degraded mode from the start.
	PlayerURL      string        `koanf:"player_url"`
	PlayerPassword string        `koanf:"player_password"`
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// PollInterval is how often the worker polls player status.
	PollInterval time.Duration `koanf:"poll_interval"`

	// DefaultDuration estimates playback length when the player does not
	// report one; it feeds the waitTime conflict hint.
	DefaultDuration time.Duration `koanf:"default_duration"`

	// MediaDir is the directory video paths are resolved against.
	MediaDir string `koanf:"media_dir"`
}

// TokensConfig locates the static token catalog.
type TokensConfig struct {
	Path string `koanf:"path"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns a Config with production-ready defaults. Defaults are
// applied first, then overridden by file and env layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Security: SecurityConfig{
			AdminPassword:     "",
			JWTSecret:         "",
			TokenTTL:          24 * time.Hour,
			AuthRateLimit:     5,
			AuthRateWindow:    5 * time.Minute,
			ScanRatePerSecond: 5,
			ScanRateBurst:     10,
		},
		Storage: StorageConfig{
			Path:          "/data/orchestrator",
			Required:      false,
			FlushInterval: 1 * time.Second,
		},
		Session: SessionConfig{
			RecentTransactionLimit: 100,
			OfflineQueueLimit:      100,
			HeartbeatTimeout:       15 * time.Second,
		},
		Video: VideoConfig{
			PlayerURL:       "",
			PlayerPassword:  "",
			RequestTimeout:  2 * time.Second,
			PollInterval:    1 * time.Second,
			DefaultDuration: 30 * time.Second,
			MediaDir:        "/data/media",
		},
		Tokens: TokensConfig{
			Path: "tokens.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks invariants that cannot be expressed as defaults.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.Security.AdminPassword == "" {
		return fmt.Errorf("security.admin_password is required")
	}
	if c.Session.OfflineQueueLimit <= 0 {
		return fmt.Errorf("session.offline_queue_limit must be positive")
	}
	if c.Storage.FlushInterval <= 0 {
		return fmt.Errorf("storage.flush_interval must be positive")
	}
	return nil
}
