// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/models"
	"github.com/aboutlastnight/orchestrator/internal/session"
	"github.com/aboutlastnight/orchestrator/internal/validation"
)

// decodeBody unmarshals and validates a JSON request body. A nil return means
// the error response was already written.
func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "malformed JSON body", nil)
		return false
	}
	if reqErr := validation.ValidateStruct(out); reqErr != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, reqErr.Error(), reqErr.Details())
		return false
	}
	return true
}

// Health is the liveness probe.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"vlc":    s.worker.Healthy(),
	})
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
	DeviceID string `json:"deviceId,omitempty"`
}

// Login exchanges the admin password for a bearer token.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.auth.CheckPassword(req.Password); err != nil {
		logging.Warn().Str("remote", r.RemoteAddr).Msg("admin login rejected")
		respondError(w, http.StatusUnauthorized, models.ErrCodeAuthInvalid, "invalid credentials", nil)
		return
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = "GM_STATION"
	}
	token, err := s.auth.GenerateToken(deviceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, "token generation failed", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresIn": int(s.cfg.Security.TokenTTL.Seconds()),
	})
}

// playerScanRequest is the fire-and-forget scan body. Player scanners carry
// no team; their scans never reach the transaction log.
type playerScanRequest struct {
	TokenID  string `json:"tokenId" validate:"required"`
	DeviceID string `json:"deviceId" validate:"required"`
}

// Scan is the player scan path: look the token up, arbitrate video playback,
// hand back media assets. Player scans never score; transactions belong to
// the GM paths. With no session the scan is accepted into the client's
// offline queue instead of failing.
func (s *Server) Scan(w http.ResponseWriter, r *http.Request) {
	var req playerScanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if !s.scanLimiter.Allow(req.DeviceID) {
		respondError(w, http.StatusTooManyRequests, models.ErrCodeRateLimit, "scan rate exceeded", nil)
		return
	}

	if !s.engine.HasActiveSession() {
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"queued":      true,
			"offlineMode": true,
		})
		return
	}

	resp := map[string]interface{}{
		"status":  "accepted",
		"tokenId": req.TokenID,
	}
	token, known := s.catalog.Get(req.TokenID)
	if !known {
		logging.Debug().Str("token_id", req.TokenID).Str("device_id", req.DeviceID).
			Msg("player scan for unknown token")
		respondJSON(w, http.StatusOK, resp)
		return
	}

	resp["mediaAssets"] = token.MediaAssets
	resp["memoryType"] = token.MemoryType

	if token.HasVideo() {
		queued, wait := s.worker.TryPlayerScan(token.ID, token.MediaAssets.Video, req.DeviceID)
		if !queued {
			respondJSON(w, http.StatusConflict, map[string]interface{}{
				"status":   "rejected",
				"message":  "video already playing",
				"waitTime": wait,
			})
			return
		}
		resp["videoQueued"] = true
	}

	respondJSON(w, http.StatusOK, resp)
}

type playerScanBatchRequest struct {
	Transactions []playerScanRequest `json:"transactions" validate:"required,min=1"`
}

// ScanBatch drains a player scanner's offline log over HTTP. Entries are
// acknowledged and logged; they never score and never start a playback, so a
// stale video scan from an offline stretch cannot preempt the live queue.
func (s *Server) ScanBatch(w http.ResponseWriter, r *http.Request) {
	var req playerScanBatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Transactions) > s.cfg.Session.OfflineQueueLimit {
		respondError(w, http.StatusRequestEntityTooLarge, models.ErrCodeQueueFull,
			"offline batch exceeds queue limit", nil)
		return
	}

	var processed, failed int
	for i := range req.Transactions {
		item := req.Transactions[i]
		if reqErr := validation.ValidateStruct(&item); reqErr != nil {
			failed++
			continue
		}
		_, known := s.catalog.Get(item.TokenID)
		logging.Info().Str("device_id", item.DeviceID).Str("token_id", item.TokenID).
			Bool("known", known).Msg("offline player scan logged")
		processed++
	}

	respondJSON(w, http.StatusOK, map[string]int{"processed": processed, "failed": failed})
}

// SubmitTransaction is the authenticated GM scan path. GM scans of
// video-bearing tokens queue behind the current playback instead of being
// rejected.
func (s *Server) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req session.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "malformed JSON body", nil)
		return
	}
	if req.Mode == "" {
		req.Mode = models.ModeBlackmarket
	}
	if reqErr := validation.ValidateStruct(&req); reqErr != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, reqErr.Error(), reqErr.Details())
		return
	}

	result, err := s.engine.ProcessScan(r.Context(), req)
	switch {
	case errors.Is(err, session.ErrNoSession):
		respondError(w, http.StatusConflict, models.ErrCodeNoSession, "no active session", nil)
		return
	case errors.Is(err, session.ErrSessionPaused):
		respondError(w, http.StatusConflict, models.ErrCodeSessionPaused, "session is paused", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, err.Error(), nil)
		return
	}

	if result.Transaction.Status == models.TransactionAccepted && result.Transaction.Mode == models.ModeBlackmarket {
		if token, ok := s.catalog.Get(req.TokenID); ok && token.HasVideo() {
			s.worker.Enqueue(token.ID, token.MediaAssets.Video, req.DeviceID)
		}
	}

	respondJSON(w, http.StatusOK, result)
}

type createSessionRequest struct {
	Name  string   `json:"name" validate:"required"`
	Teams []string `json:"teams" validate:"required,min=1,dive,required"`
}

// CreateSession starts a new game session.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	snap, err := s.engine.CreateSession(r.Context(), req.Name, req.Teams)
	if errors.Is(err, session.ErrSessionExists) {
		respondError(w, http.StatusConflict, models.ErrCodeSessionExists, "a session is already active", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusCreated, snap)
}

type updateSessionRequest struct {
	Status models.SessionStatus `json:"status" validate:"required,oneof=active paused ended"`
}

// UpdateSession pauses, resumes, or ends the current session.
func (s *Server) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		snap *models.Session
		err  error
	)
	switch req.Status {
	case models.SessionPaused:
		snap, err = s.engine.Pause(r.Context())
	case models.SessionActive:
		snap, err = s.engine.Resume(r.Context())
	case models.SessionEnded:
		snap, err = s.engine.EndSession(r.Context())
	}

	if errors.Is(err, session.ErrNoSession) {
		respondError(w, http.StatusConflict, models.ErrCodeNoSession, "no active session", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// State returns the full snapshot, scoped to the deviceId query parameter.
func (s *Server) State(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.fab.BuildSyncFull(r.URL.Query().Get("deviceId"), false))
}

// Status is the coarse subsystem dashboard.
func (s *Server) Status(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"systemStatus": models.SystemStatus{
			Orchestrator: true,
			VLC:          s.worker.Healthy(),
		},
		"sessionActive": s.engine.HasActiveSession(),
		"videoStatus":   s.worker.Status(),
	})
}

// Tokens lists the token catalog.
func (s *Server) Tokens(w http.ResponseWriter, _ *http.Request) {
	all := s.catalog.All()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": all,
		"count":  len(all),
	})
}

type videoControlRequest struct {
	Command string `json:"command" validate:"required,oneof=play pause resume stop skip clear"`
	TokenID string `json:"tokenId,omitempty"`
}

// VideoControl drives the video queue from the admin panel.
func (s *Server) VideoControl(w http.ResponseWriter, r *http.Request) {
	var req videoControlRequest
	if !decodeBody(w, r, &req) {
		return
	}

	success := true
	switch req.Command {
	case "play":
		if req.TokenID != "" {
			token, ok := s.catalog.Get(req.TokenID)
			if !ok || !token.HasVideo() {
				respondError(w, http.StatusBadRequest, models.ErrCodeValidation,
					"token has no video", nil)
				return
			}
			s.worker.Enqueue(token.ID, token.MediaAssets.Video, "admin")
		} else {
			success = s.worker.Resume(r.Context())
		}
	case "pause":
		success = s.worker.Pause(r.Context())
	case "resume":
		success = s.worker.Resume(r.Context())
	case "stop":
		success = s.worker.Stop(r.Context())
	case "skip":
		success = s.worker.Skip(r.Context())
	case "clear":
		s.worker.ClearQueue()
	}

	status := s.worker.Status()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       success,
		"currentStatus": status,
		"degraded":      status.Degraded,
	})
}
