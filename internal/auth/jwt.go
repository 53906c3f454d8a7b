// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

// Package auth implements the admin authentication flow: the shared password
// is exchanged for a signed bearer token, which admin HTTP routes and GM
// socket handshakes present. There is exactly one privilege level.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/aboutlastnight/orchestrator/internal/config"
)

// ErrInvalidCredentials is returned when the presented password is wrong.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Claims are the bearer token claims. DeviceID binds the token to the
// requesting station for audit logs; it is not an authorization boundary.
type Claims struct {
	DeviceID string `json:"deviceId,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and validates bearer tokens and checks the admin password.
type Manager struct {
	secret   []byte
	ttl      time.Duration
	password string
}

// NewManager creates a manager from the security configuration. Config
// validation has already enforced the 32-character secret minimum.
func NewManager(cfg config.SecurityConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Manager{
		secret:   []byte(cfg.JWTSecret),
		ttl:      cfg.TokenTTL,
		password: cfg.AdminPassword,
	}, nil
}

// CheckPassword verifies the shared admin password. Values with a bcrypt
// prefix are compared as hashes; anything else is compared in constant time.
func (m *Manager) CheckPassword(presented string) error {
	if strings.HasPrefix(m.password, "$2") {
		if err := bcrypt.CompareHashAndPassword([]byte(m.password), []byte(presented)); err != nil {
			return ErrInvalidCredentials
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(m.password), []byte(presented)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateToken signs a bearer token for a device. HS256 only.
func (m *Manager) GenerateToken(deviceID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		DeviceID: deviceID,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token, rejecting any signing
// method other than HMAC.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
