package game

import (
	"encoding/json"
	"time"
)

// HistoryEntry summarizes one applied mutation. Seq is assigned by the
// session's state container when the entry is committed and is strictly
// monotonic within a session.
type HistoryEntry struct {
	Seq     uint64          `json:"seq"`
	At      time.Time       `json:"at"`
	Summary string          `json:"summary"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DiffBundle is the result of one mutation: a payload per distinct role
// present in the session plus exactly one history entry to append.
type DiffBundle struct {
	ByRole map[Role]json.RawMessage
	Entry  HistoryEntry
}

// PayloadFor selects the payload a participant with the given role may see.
// A player whose slot has no dedicated payload falls back to the spectator
// payload, which conceals strictly more. The reverse never happens: a
// spectator only ever sees the spectator payload.
func (b *DiffBundle) PayloadFor(r Role) (json.RawMessage, bool) {
	if b == nil || len(b.ByRole) == 0 {
		return nil, false
	}
	if p, ok := b.ByRole[r]; ok {
		return p, true
	}
	if r.IsPlayer() {
		if p, ok := b.ByRole[RoleSpectator]; ok {
			return p, true
		}
	}
	return nil, false
}
