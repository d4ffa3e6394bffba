// Package rulestest provides a small scripted rules engine and projection
// used by the core's tests and the example server. The game is trivial: each
// player holds a hand of opaque cards, "draw" adds one, and every other
// participant only ever learns hand sizes. That is enough to exercise the
// visibility contract without a real rules engine.
package rulestest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/duelgate/game-server-go/game"
)

// TableState is the scripted engine's state value. It is treated as
// immutable: Apply returns a fresh copy.
type TableState struct {
	SessionID  string
	Hands      map[game.Role][]string
	Chat       []string
	Notices    []string
	ConcededBy game.Role
	LastAction string
}

func (s *TableState) clone() *TableState {
	next := &TableState{
		SessionID:  s.SessionID,
		Hands:      make(map[game.Role][]string, len(s.Hands)),
		Chat:       append([]string(nil), s.Chat...),
		Notices:    append([]string(nil), s.Notices...),
		ConcededBy: s.ConcededBy,
	}
	for r, h := range s.Hands {
		next.Hands[r] = append([]string(nil), h...)
	}
	return next
}

// Scripted implements rules.Engine and rules.Projection.
type Scripted struct {
	// Fail maps command names to the error Apply returns for them, letting
	// tests exercise the rollback path.
	Fail map[string]error
}

// New returns a scripted engine with no failure injections.
func New() *Scripted { return &Scripted{} }

func (e *Scripted) InitSession(ctx context.Context, sessionID string, seats []game.Seat) (any, error) {
	st := &TableState{
		SessionID:  sessionID,
		Hands:      make(map[game.Role][]string, len(seats)),
		LastAction: "session started",
	}
	for _, seat := range seats {
		st.Hands[seat.Role] = []string{}
	}
	return st, nil
}

func (e *Scripted) Apply(ctx context.Context, state any, role game.Role, command string, args json.RawMessage) (any, error) {
	if err, ok := e.Fail[command]; ok {
		return nil, err
	}
	cur, ok := state.(*TableState)
	if !ok {
		return nil, fmt.Errorf("unexpected state type %T", state)
	}
	next := cur.clone()

	switch command {
	case "draw":
		hand := next.Hands[role]
		next.Hands[role] = append(hand, fmt.Sprintf("card-%d", len(hand)+1))
		next.LastAction = fmt.Sprintf("%s drew a card", role)
	case "say":
		var text string
		_ = json.Unmarshal(args, &text)
		next.Chat = append(next.Chat, fmt.Sprintf("%s: %s", role, text))
		next.LastAction = "chat"
	case "concede":
		next.ConcededBy = role
		next.LastAction = fmt.Sprintf("%s conceded", role)
	case "announce":
		var text string
		_ = json.Unmarshal(args, &text)
		next.Notices = append(next.Notices, text)
		next.LastAction = "announcement"
	case "rejoin":
		next.LastAction = fmt.Sprintf("%s rejoined", role)
	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
	return next, nil
}

// view is the role-scoped window over TableState. Hand is populated only for
// the owning player; everyone else sees HandCounts.
type view struct {
	Hand       []string       `json:"hand,omitempty"`
	HandCounts map[string]int `json:"handCounts"`
	Chat       []string       `json:"chat,omitempty"`
	Notices    []string       `json:"notices,omitempty"`
	ConcededBy game.Role      `json:"concededBy,omitempty"`
	LastAction string         `json:"lastAction,omitempty"`
}

func (e *Scripted) viewFor(st *TableState, role game.Role) view {
	v := view{
		HandCounts: make(map[string]int, len(st.Hands)),
		Chat:       st.Chat,
		Notices:    st.Notices,
		ConcededBy: st.ConcededBy,
		LastAction: st.LastAction,
	}
	for r, h := range st.Hands {
		v.HandCounts[string(r)] = len(h)
	}
	if role.IsPlayer() {
		v.Hand = st.Hands[role]
	}
	return v
}

func (e *Scripted) Diff(before, after any) (*game.DiffBundle, error) {
	st, ok := after.(*TableState)
	if !ok {
		return nil, fmt.Errorf("unexpected state type %T", after)
	}
	bundle := &game.DiffBundle{
		ByRole: make(map[game.Role]json.RawMessage, 3),
		Entry:  game.HistoryEntry{Summary: st.LastAction},
	}
	for _, role := range []game.Role{game.RolePlayerA, game.RolePlayerB, game.RoleSpectator} {
		payload, err := json.Marshal(e.viewFor(st, role))
		if err != nil {
			return nil, fmt.Errorf("marshal %s diff: %w", role, err)
		}
		bundle.ByRole[role] = payload
	}
	return bundle, nil
}

func (e *Scripted) FullView(state any, role game.Role) (json.RawMessage, error) {
	st, ok := state.(*TableState)
	if !ok {
		return nil, fmt.Errorf("unexpected state type %T", state)
	}
	return json.Marshal(e.viewFor(st, role))
}
