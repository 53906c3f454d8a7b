// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package video

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// fakeVLC records the commands it receives and serves a canned status.
type fakeVLC struct {
	mu       sync.Mutex
	commands []string
	inputs   []string
	password string
	state    string
	length   int
	fail     bool
}

func (f *fakeVLC) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, pass, ok := r.BasicAuth()
		if !ok || pass != f.password {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		if cmd := r.URL.Query().Get("command"); cmd != "" {
			f.commands = append(f.commands, cmd)
		}
		if input := r.URL.Query().Get("input"); input != "" {
			f.inputs = append(f.inputs, input)
		}
		state, length := f.state, f.length
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"state":%q,"length":%d,"time":10}`, state, length)
	}
}

func TestVLCPlay(t *testing.T) {
	fake := &fakeVLC{password: "secret", state: "playing", length: 90}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewVLCClient(srv.URL, "secret", time.Second)
	length, err := client.Play(context.Background(), "/media/clip.mp4")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if length != 90*time.Second {
		t.Errorf("length = %v, want 90s", length)
	}
	if len(fake.commands) != 1 || fake.commands[0] != "in_play" {
		t.Errorf("commands = %v, want [in_play]", fake.commands)
	}
	if len(fake.inputs) != 1 || fake.inputs[0] != "/media/clip.mp4" {
		t.Errorf("inputs = %v", fake.inputs)
	}
}

func TestVLCStatus(t *testing.T) {
	fake := &fakeVLC{password: "secret", state: "paused", length: 120}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewVLCClient(srv.URL, "secret", time.Second)
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != PlayerStatePaused {
		t.Errorf("state = %s, want paused", status.State)
	}
	if status.Remaining() != 110*time.Second {
		t.Errorf("remaining = %v, want 110s", status.Remaining())
	}
}

func TestVLCControlCommands(t *testing.T) {
	fake := &fakeVLC{password: "secret", state: "playing"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewVLCClient(srv.URL, "secret", time.Second)
	ctx := context.Background()
	if err := client.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := client.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := client.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"pl_forcepause", "pl_forceresume", "pl_stop"}
	if len(fake.commands) != len(want) {
		t.Fatalf("commands = %v, want %v", fake.commands, want)
	}
	for i := range want {
		if fake.commands[i] != want[i] {
			t.Errorf("commands[%d] = %s, want %s", i, fake.commands[i], want[i])
		}
	}
}

func TestVLCWrongPassword(t *testing.T) {
	fake := &fakeVLC{password: "secret", state: "playing"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewVLCClient(srv.URL, "wrong", time.Second)
	if _, err := client.Status(context.Background()); err == nil {
		t.Error("expected error for wrong password")
	}
}

func TestVLCBreakerOpensAfterFailures(t *testing.T) {
	fake := &fakeVLC{password: "secret", state: "playing", fail: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewVLCClient(srv.URL, "secret", time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.Status(ctx); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}

	// The breaker is open now; calls fail without touching the server.
	_, err := client.Status(ctx)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if client.BreakerState() != "open" {
		t.Errorf("breaker state = %s, want open", client.BreakerState())
	}
}
