// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/aboutlastnight/orchestrator/internal/auth"
	"github.com/aboutlastnight/orchestrator/internal/commands"
	"github.com/aboutlastnight/orchestrator/internal/config"
	"github.com/aboutlastnight/orchestrator/internal/events"
	"github.com/aboutlastnight/orchestrator/internal/fabric"
	"github.com/aboutlastnight/orchestrator/internal/models"
	"github.com/aboutlastnight/orchestrator/internal/session"
	"github.com/aboutlastnight/orchestrator/internal/storage"
	"github.com/aboutlastnight/orchestrator/internal/tokens"
	"github.com/aboutlastnight/orchestrator/internal/video"
)

type fixture struct {
	srv    *httptest.Server
	engine *session.Engine
	worker *video.Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	bus := events.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	cfg := config.Config{
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
			CORSOrigins:    []string{"*"},
		},
		Security: config.SecurityConfig{
			AdminPassword:  "letmein",
			JWTSecret:      "0123456789abcdef0123456789abcdef",
			TokenTTL:       time.Hour,
			AuthRateLimit:  100,
			AuthRateWindow: time.Minute,
		},
		Session: config.SessionConfig{
			RecentTransactionLimit: 100,
			OfflineQueueLimit:      10,
			HeartbeatTimeout:       15 * time.Second,
		},
		Video: config.VideoConfig{
			PollInterval:    20 * time.Millisecond,
			DefaultDuration: 30 * time.Second,
			MediaDir:        "/data/media",
		},
	}

	catalog := tokens.NewCatalog([]*models.Token{
		{ID: "jaw001", Value: 500, MemoryType: "Personal"},
		{ID: "rat001", Value: 1000, MemoryType: "Business", GroupID: "Marcus Sucks", GroupMultiplier: 2},
		{ID: "vid001", Value: 300, MemoryType: "Personal", MediaAssets: models.MediaAssets{Video: "vid001.mp4"}},
		{ID: "vid002", Value: 700, MemoryType: "Personal", MediaAssets: models.MediaAssets{Video: "vid002.mp4"}},
	})

	engine := session.NewEngine(storage.NewMemoryStore(), bus, catalog, cfg.Session)
	worker := video.NewWorker(video.NewQueue(), nil, bus, cfg.Video)

	hub := fabric.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()
	go func() { _ = worker.Serve(ctx) }()

	authMgr, err := auth.NewManager(cfg.Security)
	if err != nil {
		t.Fatalf("auth.NewManager: %v", err)
	}

	fab := fabric.NewFabric(hub, engine, worker, bus, authMgr, catalog,
		commands.NewDispatcher(engine, worker, catalog), cfg.Session)
	if err := fab.AttachServices(ctx); err != nil {
		t.Fatalf("AttachServices: %v", err)
	}
	if err := fab.AttachHandlers(); err != nil {
		t.Fatalf("AttachHandlers: %v", err)
	}
	if err := fab.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(fab.Cleanup)

	server := NewServer(cfg, engine, worker, fab, authMgr, catalog)
	srv := httptest.NewServer(server.Routes())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, engine: engine, worker: worker}
}

func (fx *fixture) post(t *testing.T, path, token, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, fx.srv.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (fx *fixture) login(t *testing.T) string {
	t.Helper()
	resp, body := fx.post(t, "/api/admin/auth", "", `{"password":"letmein","deviceId":"GM_STATION_1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	return token
}

func (fx *fixture) startSession(t *testing.T, token string) {
	t.Helper()
	resp, _ := fx.post(t, "/api/session", token, `{"name":"Friday Night Run","teams":["team-alpha","team-beta"]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	fx := newFixture(t)
	resp, body := fx.post(t, "/api/admin/auth", "", `{"password":"wrong"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if body["error"] != models.ErrCodeAuthInvalid {
		t.Errorf("error = %v, want AUTH_INVALID", body["error"])
	}
}

func TestSessionRequiresAuth(t *testing.T) {
	fx := newFixture(t)
	resp, body := fx.post(t, "/api/session", "", `{"name":"x","teams":["a"]}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if body["error"] != models.ErrCodeAuthRequired {
		t.Errorf("error = %v, want AUTH_REQUIRED", body["error"])
	}
}

func TestPlayerScanReturnsMediaWithoutScoring(t *testing.T) {
	fx := newFixture(t)
	token := fx.login(t)
	fx.startSession(t, token)

	resp, body := fx.post(t, "/api/scan", "", `{"tokenId":"jaw001","deviceId":"TABLET_1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "accepted" {
		t.Errorf("status = %v, want accepted", body["status"])
	}
	if body["memoryType"] != "Personal" {
		t.Errorf("memoryType = %v", body["memoryType"])
	}
	if _, ok := body["mediaAssets"]; !ok {
		t.Error("player scan should return mediaAssets")
	}
	if _, ok := body["points"]; ok {
		t.Errorf("player scan response carries points = %v", body["points"])
	}

	// Fire-and-forget: no transaction, no dedup entry, no score movement.
	snap := fx.engine.Snapshot()
	if len(snap.Transactions) != 0 {
		t.Errorf("transactions = %d, want 0 after a player scan", len(snap.Transactions))
	}
	for teamID, score := range snap.Scores {
		if score.CurrentScore != 0 {
			t.Errorf("team %s score = %d, want 0", teamID, score.CurrentScore)
		}
	}
	if got := fx.engine.ScannedTokensFor("TABLET_1"); len(got) != 0 {
		t.Errorf("scanned tokens = %v, want none recorded for a player scanner", got)
	}
}

func TestSubmitTransactionScores(t *testing.T) {
	fx := newFixture(t)
	token := fx.login(t)
	fx.startSession(t, token)

	resp, body := fx.post(t, "/api/transaction/submit", token,
		`{"tokenId":"jaw001","teamId":"team-alpha","deviceId":"GM_STATION_1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	tx, _ := body["transaction"].(map[string]interface{})
	if tx == nil || tx["status"] != "accepted" {
		t.Fatalf("transaction = %v, want accepted", body["transaction"])
	}

	snap := fx.engine.Snapshot()
	if len(snap.Transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(snap.Transactions))
	}
	if score := snap.Scores["team-alpha"]; score == nil || score.CurrentScore != 500 {
		t.Errorf("team-alpha score = %+v, want 500", score)
	}
}

func TestScanWithoutSessionQueuesOffline(t *testing.T) {
	fx := newFixture(t)

	resp, body := fx.post(t, "/api/scan", "",
		`{"tokenId":"jaw001","teamId":"team-alpha","deviceId":"TABLET_1"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if body["offlineMode"] != true || body["queued"] != true {
		t.Errorf("body = %v, want offline queue marker", body)
	}
}

func TestSubmitPausedSessionRejected(t *testing.T) {
	fx := newFixture(t)
	token := fx.login(t)
	fx.startSession(t, token)

	req, _ := http.NewRequest(http.MethodPut, fx.srv.URL+"/api/session", bytes.NewBufferString(`{"status":"paused"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}

	scanResp, body := fx.post(t, "/api/transaction/submit", token,
		`{"tokenId":"jaw001","teamId":"team-alpha","deviceId":"GM_STATION_1"}`)
	if scanResp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", scanResp.StatusCode)
	}
	if body["error"] != models.ErrCodeSessionPaused {
		t.Errorf("error = %v, want SESSION_PAUSED", body["error"])
	}
}

func TestScanVideoConflict(t *testing.T) {
	fx := newFixture(t)
	token := fx.login(t)
	fx.startSession(t, token)

	resp, body := fx.post(t, "/api/scan", "", `{"tokenId":"vid001","deviceId":"TABLET_1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first video scan status = %d", resp.StatusCode)
	}
	if body["videoQueued"] != true {
		t.Fatalf("first video scan should queue, body = %v", body)
	}

	// Degraded playback starts on the next worker tick.
	deadline := time.Now().Add(2 * time.Second)
	for fx.worker.Status().Status != "playing" {
		if time.Now().After(deadline) {
			t.Fatal("video never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp2, body2 := fx.post(t, "/api/scan", "", `{"tokenId":"vid002","deviceId":"TABLET_2"}`)
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp2.StatusCode)
	}
	if body2["status"] != "rejected" {
		t.Errorf("status = %v, want rejected", body2["status"])
	}
	wait, _ := body2["waitTime"].(float64)
	if wait <= 0 {
		t.Errorf("waitTime = %v, want > 0", body2["waitTime"])
	}
}

func TestScanRateLimit(t *testing.T) {
	fx := newFixture(t)
	token := fx.login(t)
	fx.startSession(t, token)

	limited := false
	for i := 0; i < 15; i++ {
		resp, _ := fx.post(t, "/api/scan", "",
			`{"tokenId":"jaw001","teamId":"team-alpha","deviceId":"FLOOD_1"}`)
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected at least one 429 from the per-device limiter")
	}
}

func TestScanBatchOverHTTP(t *testing.T) {
	fx := newFixture(t)
	token := fx.login(t)
	fx.startSession(t, token)

	resp, body := fx.post(t, "/api/scan/batch", "", `{"transactions":[
		{"tokenId":"jaw001","deviceId":"TABLET_1"},
		{"tokenId":"rat001","deviceId":"TABLET_1"},
		{"tokenId":"nope","deviceId":"TABLET_1"}
	]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	// Unknown tokens are still acknowledged; the log is fire-and-forget.
	if body["processed"] != float64(3) {
		t.Errorf("processed = %v, want 3", body["processed"])
	}

	// Drained player logs never reach the transaction log.
	if n := len(fx.engine.Snapshot().Transactions); n != 0 {
		t.Errorf("transactions = %d, want 0 after a player batch", n)
	}
}

func TestDuplicateSessionConflict(t *testing.T) {
	fx := newFixture(t)
	token := fx.login(t)
	fx.startSession(t, token)

	resp, body := fx.post(t, "/api/session", token, `{"name":"Second","teams":["team-x"]}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	if body["error"] != models.ErrCodeSessionExists {
		t.Errorf("error = %v, want SESSION_EXISTS", body["error"])
	}
}

func TestStateSnapshot(t *testing.T) {
	fx := newFixture(t)
	token := fx.login(t)
	fx.startSession(t, token)

	if _, err := fx.engine.ProcessScan(context.Background(), session.ScanRequest{
		TokenID: "jaw001", TeamID: "team-alpha", DeviceID: "TABLET_1", Mode: models.ModeBlackmarket,
	}); err != nil {
		t.Fatalf("ProcessScan: %v", err)
	}

	resp, err := http.Get(fx.srv.URL + "/api/state?deviceId=TABLET_1")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	defer resp.Body.Close()

	var sf models.SyncFull
	if err := json.NewDecoder(resp.Body).Decode(&sf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sf.Session == nil || sf.Session.Name != "Friday Night Run" {
		t.Errorf("session = %+v", sf.Session)
	}
	if len(sf.DeviceScannedTokens) != 1 || sf.DeviceScannedTokens[0] != "jaw001" {
		t.Errorf("deviceScannedTokens = %v", sf.DeviceScannedTokens)
	}
	if !sf.SystemStatus.Orchestrator {
		t.Error("orchestrator status should be true")
	}
}

func TestTokenCatalogEndpoint(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Get(fx.srv.URL + "/api/tokens")
	if err != nil {
		t.Fatalf("GET tokens: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["count"] != float64(4) {
		t.Errorf("count = %v, want 4", body["count"])
	}
}

func TestVideoControlRequiresAuth(t *testing.T) {
	fx := newFixture(t)
	resp, _ := fx.post(t, "/api/video/control", "", `{"command":"stop"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestVideoControlClear(t *testing.T) {
	fx := newFixture(t)
	token := fx.login(t)

	resp, body := fx.post(t, "/api/video/control", token, `{"command":"clear"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["degraded"] != true {
		t.Errorf("degraded = %v, want true with no player", body["degraded"])
	}
}

func TestHealth(t *testing.T) {
	fx := newFixture(t)
	resp, err := http.Get(fx.srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
