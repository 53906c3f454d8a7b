// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/aboutlastnight/orchestrator/internal/models"
)

type contextKey string

// claimsKey carries the validated claims through the request context.
const claimsKey contextKey = "auth.claims"

// ClaimsFromContext returns the claims stored by RequireAdmin, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// RequireAdmin guards admin HTTP routes with bearer token validation.
// Missing tokens answer AUTH_REQUIRED, invalid ones AUTH_INVALID, both 401.
func RequireAdmin(manager *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, models.ErrCodeAuthRequired, "authorization required")
				return
			}
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeAuthError(w, models.ErrCodeAuthInvalid, "malformed authorization header")
				return
			}

			claims, err := manager.ValidateToken(tokenString)
			if err != nil {
				writeAuthError(w, models.ErrCodeAuthInvalid, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(models.APIError{Error: code, Message: message})
}
