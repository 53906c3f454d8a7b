// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef" // 32 chars

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ALN_SECURITY_JWT_SECRET", testSecret)
	t.Setenv("ALN_SECURITY_ADMIN_PASSWORD", "hunter2-hunter2")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("default port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 10*time.Second {
		t.Errorf("default request timeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Session.OfflineQueueLimit != 100 {
		t.Errorf("default offline queue limit = %d, want 100", cfg.Session.OfflineQueueLimit)
	}
	if cfg.Security.TokenTTL != 24*time.Hour {
		t.Errorf("default token TTL = %v, want 24h", cfg.Security.TokenTTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALN_SERVER_PORT", "8080")
	t.Setenv("ALN_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("env override port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("env override log level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("server:\n  port: 4567\nvideo:\n  player_url: http://127.0.0.1:8080\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4567 {
		t.Errorf("file port = %d, want 4567", cfg.Server.Port)
	}
	if cfg.Video.PlayerURL != "http://127.0.0.1:8080" {
		t.Errorf("file player url = %q", cfg.Video.PlayerURL)
	}
}

func TestValidateRejectsShortSecret(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = "short"
	cfg.Security.AdminPassword = "pw"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for short JWT secret")
	}
}

func TestValidateRejectsMissingPassword(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = testSecret
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty admin password")
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ALN_SERVER_PORT", "server.port"},
		{"ALN_SECURITY_JWT_SECRET", "security.jwt_secret"},
		{"ALN_VIDEO_DEFAULT_DURATION", "video.default_duration"},
	}
	for _, tc := range tests {
		if got := envTransform(tc.in); got != tc.want {
			t.Errorf("envTransform(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
