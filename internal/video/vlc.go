// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/aboutlastnight/orchestrator/internal/logging"
	"github.com/aboutlastnight/orchestrator/internal/metrics"
)

// vlcStatus mirrors the fields of VLC's /requests/status.json this client
// cares about. Length and Time are reported in whole seconds.
type vlcStatus struct {
	State  string `json:"state"`
	Length int    `json:"length"`
	Time   int    `json:"time"`
}

// VLCClient drives VLC through its HTTP interface. Every request runs behind
// a circuit breaker so a dead player trips fast instead of stacking timeouts
// in the worker loop.
type VLCClient struct {
	baseURL  string
	password string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[*vlcStatus]
}

// NewVLCClient creates a client for the VLC HTTP interface at baseURL.
// VLC authenticates with an empty username and the configured password.
func NewVLCClient(baseURL, password string, timeout time.Duration) *VLCClient {
	settings := gobreaker.Settings{
		Name:        "vlc-http",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("player circuit breaker state changed")
			if to == gobreaker.StateOpen {
				metrics.VideoPlayerDegraded.Set(1)
			} else if to == gobreaker.StateClosed {
				metrics.VideoPlayerDegraded.Set(0)
			}
		},
	}
	return &VLCClient{
		baseURL:  baseURL,
		password: password,
		client:   &http.Client{Timeout: timeout},
		breaker:  gobreaker.NewCircuitBreaker[*vlcStatus](settings),
	}
}

// request performs one status.json call, optionally carrying a command, and
// decodes the returned player status.
func (c *VLCClient) request(ctx context.Context, params url.Values) (*vlcStatus, error) {
	return c.breaker.Execute(func() (*vlcStatus, error) {
		endpoint := c.baseURL + "/requests/status.json"
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build player request: %w", err)
		}
		req.SetBasicAuth("", c.password)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("player request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("player returned %d", resp.StatusCode)
		}

		var status vlcStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return nil, fmt.Errorf("decode player status: %w", err)
		}
		return &status, nil
	})
}

// Play implements Player. VLC's in_play replaces the playlist entry and
// starts playback immediately.
func (c *VLCClient) Play(ctx context.Context, path string) (time.Duration, error) {
	params := url.Values{}
	params.Set("command", "in_play")
	params.Set("input", path)
	status, err := c.request(ctx, params)
	if err != nil {
		return 0, err
	}
	return time.Duration(status.Length) * time.Second, nil
}

// Pause implements Player.
func (c *VLCClient) Pause(ctx context.Context) error {
	params := url.Values{}
	params.Set("command", "pl_forcepause")
	_, err := c.request(ctx, params)
	return err
}

// Resume implements Player.
func (c *VLCClient) Resume(ctx context.Context) error {
	params := url.Values{}
	params.Set("command", "pl_forceresume")
	_, err := c.request(ctx, params)
	return err
}

// Stop implements Player.
func (c *VLCClient) Stop(ctx context.Context) error {
	params := url.Values{}
	params.Set("command", "pl_stop")
	_, err := c.request(ctx, params)
	return err
}

// Status implements Player.
func (c *VLCClient) Status(ctx context.Context) (*PlayerStatus, error) {
	status, err := c.request(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &PlayerStatus{
		State:  status.State,
		Length: time.Duration(status.Length) * time.Second,
		Time:   time.Duration(status.Time) * time.Second,
	}, nil
}

// BreakerState exposes the circuit breaker state for health reporting.
func (c *VLCClient) BreakerState() string {
	return c.breaker.State().String()
}
