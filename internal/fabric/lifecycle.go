// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package fabric

import "fmt"

// State is the fabric's initialization stage. Transitions are strictly
// forward (Uninitialized → ServicesReady → HandlersReady → Listening) and
// Cleanup returns to Uninitialized. Out-of-order calls fail fast.
type State int32

// Lifecycle states.
const (
	Uninitialized State = iota
	ServicesReady
	HandlersReady
	Listening
)

// String implements fmt.Stringer for log fields.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case ServicesReady:
		return "services_ready"
	case HandlersReady:
		return "handlers_ready"
	case Listening:
		return "listening"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrLifecycle reports an out-of-order lifecycle call.
type ErrLifecycle struct {
	Op   string
	Have State
	Want State
}

func (e *ErrLifecycle) Error() string {
	return fmt.Sprintf("fabric: %s requires state %s, have %s", e.Op, e.Want, e.Have)
}
