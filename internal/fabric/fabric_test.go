// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package fabric

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/aboutlastnight/orchestrator/internal/auth"
	"github.com/aboutlastnight/orchestrator/internal/commands"
	"github.com/aboutlastnight/orchestrator/internal/config"
	"github.com/aboutlastnight/orchestrator/internal/events"
	"github.com/aboutlastnight/orchestrator/internal/models"
	"github.com/aboutlastnight/orchestrator/internal/session"
	"github.com/aboutlastnight/orchestrator/internal/storage"
	"github.com/aboutlastnight/orchestrator/internal/tokens"
	"github.com/aboutlastnight/orchestrator/internal/video"
)

// stubValidator accepts exactly one token value.
type stubValidator struct{ token string }

func (s *stubValidator) ValidateToken(token string) (*auth.Claims, error) {
	if token != s.token {
		return nil, errors.New("bad token")
	}
	return &auth.Claims{DeviceID: "GM_STATION_1", Role: "admin"}, nil
}

func testTokens() *tokens.Catalog {
	return tokens.NewCatalog([]*models.Token{
		{ID: "jaw001", Value: 500, MemoryType: "Personal"},
		{ID: "rat001", Value: 1000, MemoryType: "Business", GroupID: "Marcus Sucks", GroupMultiplier: 2},
		{ID: "asm001", Value: 2000, MemoryType: "Business", GroupID: "Marcus Sucks", GroupMultiplier: 2},
		{ID: "fli001", Value: 4000, MemoryType: "Business", GroupID: "Marcus Sucks", GroupMultiplier: 2},
		{ID: "vid001", Value: 300, MemoryType: "Personal", MediaAssets: models.MediaAssets{Video: "vid001.mp4"}},
		{ID: "vid002", Value: 700, MemoryType: "Personal", MediaAssets: models.MediaAssets{Video: "vid002.mp4"}},
	})
}

type fixture struct {
	fabric *Fabric
	hub    *Hub
	engine *session.Engine
	worker *video.Worker
	bus    *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	bus := events.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	cfg := config.SessionConfig{
		RecentTransactionLimit: 100,
		OfflineQueueLimit:      5,
		HeartbeatTimeout:       15 * time.Second,
	}
	catalog := testTokens()
	engine := session.NewEngine(storage.NewMemoryStore(), bus, catalog, cfg)

	worker := video.NewWorker(video.NewQueue(), nil, bus, config.VideoConfig{
		PollInterval:    50 * time.Millisecond,
		DefaultDuration: 30 * time.Second,
		MediaDir:        "/data/media",
	})

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()
	go func() { _ = worker.Serve(ctx) }()

	dispatcher := commands.NewDispatcher(engine, worker, catalog)
	f := NewFabric(hub, engine, worker, bus, &stubValidator{token: "good"}, catalog, dispatcher, cfg)

	if err := f.AttachServices(ctx); err != nil {
		t.Fatalf("AttachServices: %v", err)
	}
	if err := f.AttachHandlers(); err != nil {
		t.Fatalf("AttachHandlers: %v", err)
	}
	if err := f.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(f.Cleanup)

	return &fixture{fabric: f, hub: hub, engine: engine, worker: worker, bus: bus}
}

// attach registers a connection-less client and joins it to rooms.
func (fx *fixture) attach(t *testing.T, deviceID string, deviceType models.DeviceType, rooms ...string) *Client {
	t.Helper()
	c := NewClient(fx.hub, nil, deviceID, deviceType)
	c.handle = fx.fabric.handleFrame
	fx.hub.Register <- c
	for _, room := range rooms {
		fx.hub.JoinRoom(c, room)
	}
	return c
}

func waitEvent(t *testing.T, c *Client, event string) models.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-c.send:
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
		}
	}
}

func assertNoEvent(t *testing.T, c *Client, event string) {
	t.Helper()
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case env := <-c.send:
			if env.Event == event {
				t.Fatalf("unexpected %q frame", event)
			}
		case <-deadline:
			return
		}
	}
}

func TestLifecycleOutOfOrder(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	catalog := testTokens()
	engine := session.NewEngine(storage.NewMemoryStore(), bus, catalog, config.SessionConfig{})
	worker := video.NewWorker(video.NewQueue(), nil, bus, config.VideoConfig{DefaultDuration: time.Second})
	f := NewFabric(NewHub(), engine, worker, bus, &stubValidator{token: "good"}, catalog,
		commands.NewDispatcher(engine, worker, catalog), config.SessionConfig{})

	var lifecycleErr *ErrLifecycle
	if err := f.AttachHandlers(); !errors.As(err, &lifecycleErr) {
		t.Fatalf("AttachHandlers before AttachServices = %v, want ErrLifecycle", err)
	}
	if err := f.Listen(); !errors.As(err, &lifecycleErr) {
		t.Fatalf("Listen before AttachServices = %v, want ErrLifecycle", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.AttachServices(ctx); err != nil {
		t.Fatalf("AttachServices: %v", err)
	}
	if err := f.AttachServices(ctx); !errors.As(err, &lifecycleErr) {
		t.Fatalf("double AttachServices = %v, want ErrLifecycle", err)
	}
	if err := f.AttachHandlers(); err != nil {
		t.Fatalf("AttachHandlers: %v", err)
	}
	if err := f.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if f.State() != Listening {
		t.Errorf("state = %s, want listening", f.State())
	}
}

func TestCleanupCancelsSubscriptions(t *testing.T) {
	fx := newFixture(t)

	if fx.bus.SubscriberCount() == 0 {
		t.Fatal("expected bridge subscriptions after AttachServices")
	}
	fx.fabric.Cleanup()

	// Cancellation propagates through watermill asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for fx.bus.SubscriberCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriptions leaked: %d", fx.bus.SubscriberCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if fx.fabric.State() != Uninitialized {
		t.Errorf("state after cleanup = %s, want uninitialized", fx.fabric.State())
	}
}

func TestBridgeTransactionOrdering(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	s, err := fx.engine.CreateSession(ctx, "Friday Night Run", []string{"team-alpha"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	gm := fx.attach(t, "GM_STATION_1", models.DeviceGM, RoomGM, RoomSession(s.ID))

	for _, tokenID := range []string{"rat001", "asm001", "fli001"} {
		if _, err := fx.engine.ProcessScan(ctx, session.ScanRequest{
			TokenID: tokenID, TeamID: "team-alpha", DeviceID: "GM_STATION_1", Mode: models.ModeBlackmarket,
		}); err != nil {
			t.Fatalf("scan %s: %v", tokenID, err)
		}
	}

	// The completing scan must arrive as transaction:new, then score:updated,
	// then group:completed, with nothing reordered in between.
	var order []string
	deadline := time.After(2 * time.Second)
	for len(order) < 7 {
		select {
		case env := <-gm.send:
			switch env.Event {
			case "transaction:new", "score:updated", "group:completed":
				order = append(order, env.Event)
			}
		case <-deadline:
			t.Fatalf("timed out, got %v", order)
		}
	}

	want := []string{
		"transaction:new", "score:updated",
		"transaction:new", "score:updated",
		"transaction:new", "score:updated", "group:completed",
	}
	got := order[:7]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event order = %v, want %v", got, want)
		}
	}
}

func TestScoresResetScopedToSessionRoom(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	s, err := fx.engine.CreateSession(ctx, "Friday Night Run", []string{"team-alpha"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	insider := fx.attach(t, "TABLET_1", models.DevicePlayer, RoomSession(s.ID))
	outsider := fx.attach(t, "TABLET_2", models.DevicePlayer)

	if _, err := fx.engine.ResetTeamScores(ctx, nil); err != nil {
		t.Fatalf("ResetTeamScores: %v", err)
	}

	waitEvent(t, insider, "scores:reset")
	env := waitEvent(t, insider, "sync:full")

	raw, _ := json.Marshal(env.Data)
	var sf models.SyncFull
	if err := json.Unmarshal(raw, &sf); err != nil {
		t.Fatalf("sync:full decode: %v", err)
	}
	if sf.Session == nil || sf.Session.ID != s.ID {
		t.Errorf("sync:full session = %+v", sf.Session)
	}

	assertNoEvent(t, outsider, "scores:reset")
}

func TestHeartbeatAndUnknownEvent(t *testing.T) {
	fx := newFixture(t)
	c := fx.attach(t, "TABLET_1", models.DevicePlayer)

	fx.fabric.handleFrame(c, InboundFrame{Event: "heartbeat"})
	waitEvent(t, c, "heartbeat:ack")

	fx.fabric.handleFrame(c, InboundFrame{Event: "bogus:event"})
	env := waitEvent(t, c, "error")
	raw, _ := json.Marshal(env.Data)
	var apiErr models.APIError
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		t.Fatalf("error decode: %v", err)
	}
	if apiErr.Error != models.ErrCodeValidation {
		t.Errorf("error code = %s, want VALIDATION_ERROR", apiErr.Error)
	}
}

func TestGMCommandRequiresGM(t *testing.T) {
	fx := newFixture(t)
	player := fx.attach(t, "TABLET_1", models.DevicePlayer)

	fx.fabric.handleFrame(player, InboundFrame{
		Event: "gm:command",
		Data:  json.RawMessage(`{"action":"session:end"}`),
	})

	env := waitEvent(t, player, "error")
	raw, _ := json.Marshal(env.Data)
	var apiErr models.APIError
	_ = json.Unmarshal(raw, &apiErr)
	if apiErr.Error != models.ErrCodeAuthRequired {
		t.Errorf("error code = %s, want AUTH_REQUIRED", apiErr.Error)
	}
}

func TestGMCommandSessionCreate(t *testing.T) {
	fx := newFixture(t)
	gm := fx.attach(t, "GM_STATION_1", models.DeviceGM, RoomGM)

	fx.fabric.handleFrame(gm, InboundFrame{
		Event: "gm:command",
		Data:  json.RawMessage(`{"action":"session:create","payload":{"name":"Friday Night Run","teams":["team-alpha"]}}`),
	})

	env := waitEvent(t, gm, "gm:command:ack")
	raw, _ := json.Marshal(env.Data)
	var ack commands.Ack
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatalf("ack decode: %v", err)
	}
	if !ack.Success || ack.Action != "session:create" {
		t.Fatalf("ack = %+v", ack)
	}

	// Creating a session moves connected sockets into its room, so a
	// subsequent scan reaches this client as transaction:new.
	if _, err := fx.engine.ProcessScan(context.Background(), session.ScanRequest{
		TokenID: "jaw001", TeamID: "team-alpha", DeviceID: "GM_STATION_1", Mode: models.ModeBlackmarket,
	}); err != nil {
		t.Fatalf("ProcessScan: %v", err)
	}
	txEnv := waitEvent(t, gm, "transaction:new")
	raw, _ = json.Marshal(txEnv.Data)
	var frame struct {
		Transaction *models.Transaction `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("transaction:new decode: %v", err)
	}
	if frame.Transaction == nil || frame.Transaction.TokenID != "jaw001" {
		t.Errorf("transaction:new data.transaction = %+v, want the committed tx nested", frame.Transaction)
	}
}

func TestOfflineBatchDrain(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.engine.CreateSession(ctx, "Friday Night Run", []string{"team-alpha"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	c := fx.attach(t, "TABLET_1", models.DevicePlayer)

	batch := `{"transactions":[
		{"tokenId":"jaw001","teamId":"team-alpha"},
		{"tokenId":"rat001","teamId":"team-alpha"}
	]}`
	fx.fabric.handleFrame(c, InboundFrame{Event: "transaction:batch", Data: json.RawMessage(batch)})

	env := waitEvent(t, c, "sync:full")
	raw, _ := json.Marshal(env.Data)
	var sf models.SyncFull
	if err := json.Unmarshal(raw, &sf); err != nil {
		t.Fatalf("sync:full decode: %v", err)
	}
	if !sf.Reconnection {
		t.Error("drain snapshot should mark reconnection")
	}
	if len(sf.DeviceScannedTokens) != 2 {
		t.Errorf("deviceScannedTokens = %v, want both drained tokens", sf.DeviceScannedTokens)
	}
}

func TestOfflineBatchOverLimit(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.engine.CreateSession(ctx, "Friday Night Run", []string{"team-alpha"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	c := fx.attach(t, "TABLET_1", models.DevicePlayer)

	// Limit in the fixture is 5.
	var items []string
	for i := 0; i < 6; i++ {
		items = append(items, fmt.Sprintf(`{"tokenId":"tok%03d","teamId":"team-alpha"}`, i))
	}
	batch := `{"transactions":[` + strings.Join(items, ",") + `]}`
	fx.fabric.handleFrame(c, InboundFrame{Event: "transaction:batch", Data: json.RawMessage(batch)})

	env := waitEvent(t, c, "error")
	raw, _ := json.Marshal(env.Data)
	var apiErr models.APIError
	_ = json.Unmarshal(raw, &apiErr)
	if apiErr.Error != models.ErrCodeQueueFull {
		t.Errorf("error code = %s, want QUEUE_FULL", apiErr.Error)
	}
}

func TestHandleWSRejections(t *testing.T) {
	fx := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(fx.fabric.HandleWS))
	defer srv.Close()

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing device id", "", http.StatusBadRequest},
		{"gm without token", "deviceId=GM_STATION_1&deviceType=gm", http.StatusUnauthorized},
		{"gm bad token", "deviceId=GM_STATION_1&deviceType=gm&token=bad", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "?" + tt.query)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestHandleWSDeviceCollision(t *testing.T) {
	fx := newFixture(t)
	fx.attach(t, "TABLET_1", models.DevicePlayer, RoomDevice("TABLET_1"))

	srv := httptest.NewServer(http.HandlerFunc(fx.fabric.HandleWS))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?deviceId=TABLET_1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}

	var apiErr models.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("body decode: %v", err)
	}
	if apiErr.Error != models.ErrCodeDeviceIDCollision {
		t.Errorf("error code = %s, want DEVICE_ID_COLLISION", apiErr.Error)
	}
}

func TestHandleWSHandshake(t *testing.T) {
	fx := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(fx.fabric.HandleWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?deviceId=GM_STATION_1&deviceType=gm&token=good", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first models.Envelope
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.Event != "gm:identified" {
		t.Fatalf("first frame = %s, want gm:identified", first.Event)
	}
	if first.Timestamp == "" {
		t.Error("envelope missing timestamp")
	}

	var second models.Envelope
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read: %v", err)
	}
	if second.Event != "sync:full" {
		t.Fatalf("second frame = %s, want sync:full", second.Event)
	}
}

func TestSyncFullAfterSessionEnd(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.engine.CreateSession(ctx, "Friday Night Run", []string{"team-alpha"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := fx.engine.ProcessScan(ctx, session.ScanRequest{
		TokenID: "jaw001", TeamID: "team-alpha", DeviceID: "GM_STATION_1", Mode: models.ModeBlackmarket,
	}); err != nil {
		t.Fatalf("ProcessScan: %v", err)
	}
	if _, err := fx.engine.EndSession(ctx); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	// A reconnect after the session ended gets a clean slate.
	sf := fx.fabric.BuildSyncFull("GM_STATION_1", true)
	if sf.Session != nil {
		t.Errorf("session = %+v, want null after end", sf.Session)
	}
	if sf.Scores == nil || len(sf.Scores) != 0 {
		t.Errorf("scores = %v, want empty array", sf.Scores)
	}
	if sf.Devices == nil || len(sf.Devices) != 0 {
		t.Errorf("devices = %v, want empty array", sf.Devices)
	}
	if len(sf.RecentTransactions) != 0 {
		t.Errorf("recentTransactions = %v, want empty", sf.RecentTransactions)
	}
	if len(sf.DeviceScannedTokens) != 0 {
		t.Errorf("deviceScannedTokens = %v, want empty", sf.DeviceScannedTokens)
	}
}

func TestSubmitQueuesVideoBehindPlayback(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	s, err := fx.engine.CreateSession(ctx, "Friday Night Run", []string{"team-alpha"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	gm := fx.attach(t, "GM_STATION_1", models.DeviceGM, RoomGM, RoomSession(s.ID))

	fx.worker.Enqueue("vid001", "vid001.mp4", "admin")
	deadline := time.Now().Add(2 * time.Second)
	for fx.worker.Status().Status != "playing" {
		if time.Now().After(deadline) {
			t.Fatal("video never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A GM scan of a video token during playback commits and queues behind
	// the running video; only player scans get the reject rule.
	fx.fabric.handleFrame(gm, InboundFrame{
		Event: "transaction:submit",
		Data:  json.RawMessage(`{"tokenId":"vid002","teamId":"team-alpha"}`),
	})

	waitEvent(t, gm, "transaction:new")
	assertNoEvent(t, gm, "error")

	if n := fx.worker.Status().QueueLength; n != 1 {
		t.Errorf("queue length = %d, want vid002 queued behind the playback", n)
	}
}
