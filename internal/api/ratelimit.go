// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// deviceLimiter hands out one token-bucket limiter per device ID. Devices at
// a live event number in the dozens; entries are never evicted.
type deviceLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newDeviceLimiter(perSecond float64, burst int) *deviceLimiter {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &deviceLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the device may submit another scan now.
func (d *deviceLimiter) Allow(deviceID string) bool {
	d.mu.Lock()
	lim, ok := d.limiters[deviceID]
	if !ok {
		lim = rate.NewLimiter(d.perSecond, d.burst)
		d.limiters[deviceID] = lim
	}
	d.mu.Unlock()
	return lim.Allow()
}
