// Package rules declares the contracts the session core depends on but does
// not implement: the rules engine that interprets commands and the projection
// layer that computes visibility-safe views. Both are treated as black boxes;
// the core relies on the documented purity and visibility guarantees for
// correctness.
package rules

import (
	"context"
	"encoding/json"

	"github.com/duelgate/game-server-go/game"
)

// State is the opaque authoritative game-state value. The core never
// inspects it; it only snapshots, passes, and commits it. It is an alias so
// engine implementations can use plain any in their signatures.
type State = any

// Engine interprets role-scoped commands against a state value.
//
// Apply must behave value-in/value-out: it returns the successor state and
// must leave the input state usable as the rollback snapshot when it fails.
// The core serializes Apply calls per session, so implementations may assume
// single-writer access for the duration of a call.
type Engine interface {
	// InitSession produces the initial state for a session that has just
	// transitioned to active.
	InitSession(ctx context.Context, sessionID string, seats []game.Seat) (State, error)

	// Apply executes one command for the given role. A returned error
	// rejects the mutation; nothing is committed and nothing is broadcast
	// beyond the originator's opaque failure signal.
	Apply(ctx context.Context, state State, role game.Role, command string, args json.RawMessage) (State, error)
}

// Projection computes role-scoped views of state.
//
// Both methods must be pure: derived solely from their inputs, safe to call
// repeatedly for the same inputs, and guaranteed never to expose information
// the game rules consider hidden from the requested role.
type Projection interface {
	// Diff computes the role-keyed payloads and history entry describing the
	// transition from before to after.
	Diff(before, after State) (*game.DiffBundle, error)

	// FullView computes a complete snapshot of state as visible to role.
	FullView(state State, role game.Role) (json.RawMessage, error)
}
