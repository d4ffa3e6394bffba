package sessions

import (
	"sort"
	"time"

	"github.com/duelgate/game-server-go/game"
)

// Status describes the lifecycle state of a session.
type Status string

const (
	// StatusWaiting means the session has been created but not started.
	StatusWaiting Status = "waiting"
	// StatusActive means the session has authoritative state and accepts
	// mutations.
	StatusActive Status = "active"
	// StatusEnded means the session is finished and about to be removed.
	StatusEnded Status = "ended"
)

// Session is an immutable roster/lifecycle snapshot. Mutation happens by
// deriving a modified copy (the With* helpers) and swapping it in through
// Registry.Upsert; the State container pointer is shared across snapshots and
// carries its own synchronization.
//
// Seats is indexed by slot: slot i holds game.PlayerRoles[i]. A nil entry is
// a vacant slot.
type Session struct {
	ID    string
	Title string

	Status        Status
	Seats         [2]*game.Seat
	Spectators    map[string]game.Participant
	FirstPlayerID string

	SpectatorPassword string
	SpectatorsMuted   bool

	CreatedAt    time.Time
	StartedAt    time.Time
	LastActivity time.Time

	// State is non-nil iff Status == StatusActive.
	State *StateContainer

	// OriginalRoster captures the seated participant ids at start time and
	// gates rejoin eligibility.
	OriginalRoster []string
}

func (s *Session) clone() *Session {
	next := *s
	next.Spectators = make(map[string]game.Participant, len(s.Spectators))
	for id, p := range s.Spectators {
		next.Spectators[id] = p
	}
	next.OriginalRoster = append([]string(nil), s.OriginalRoster...)
	return &next
}

// SeatedCount returns the number of occupied player slots.
func (s *Session) SeatedCount() int {
	n := 0
	for _, seat := range s.Seats {
		if seat != nil {
			n++
		}
	}
	return n
}

// Seated returns the seat held by the participant, if any.
func (s *Session) Seated(pid string) (game.Seat, bool) {
	for _, seat := range s.Seats {
		if seat != nil && seat.ParticipantID == pid {
			return *seat, true
		}
	}
	return game.Seat{}, false
}

// IsSpectator reports whether the participant is in the spectator set.
func (s *Session) IsSpectator(pid string) bool {
	_, ok := s.Spectators[pid]
	return ok
}

// IsParticipant reports whether the participant is seated or spectating.
func (s *Session) IsParticipant(pid string) bool {
	if _, ok := s.Seated(pid); ok {
		return true
	}
	return s.IsSpectator(pid)
}

// RoleOf returns the participant's role within the session.
func (s *Session) RoleOf(pid string) (game.Role, bool) {
	if seat, ok := s.Seated(pid); ok {
		return seat.Role, true
	}
	if s.IsSpectator(pid) {
		return game.RoleSpectator, true
	}
	return game.RoleNone, false
}

// InOriginalRoster reports whether the participant was seated when the
// session started.
func (s *Session) InOriginalRoster(pid string) bool {
	for _, id := range s.OriginalRoster {
		if id == pid {
			return true
		}
	}
	return false
}

// Empty reports whether the session has neither players nor spectators.
func (s *Session) Empty() bool {
	return s.SeatedCount() == 0 && len(s.Spectators) == 0
}

// Participants lists everyone currently in the session, players first in
// slot order, then spectators in a stable order.
func (s *Session) Participants() []game.Participant {
	out := make([]game.Participant, 0, s.SeatedCount()+len(s.Spectators))
	for _, seat := range s.Seats {
		if seat != nil {
			out = append(out, game.Participant{ID: seat.ParticipantID, Name: seat.Name, Role: seat.Role})
		}
	}
	specIDs := make([]string, 0, len(s.Spectators))
	for id := range s.Spectators {
		specIDs = append(specIDs, id)
	}
	sort.Strings(specIDs)
	for _, id := range specIDs {
		out = append(out, s.Spectators[id])
	}
	return out
}

// participantIDs returns every participant id for registry indexing.
func (s *Session) participantIDs() []string {
	ids := make([]string, 0, s.SeatedCount()+len(s.Spectators))
	for _, seat := range s.Seats {
		if seat != nil {
			ids = append(ids, seat.ParticipantID)
		}
	}
	for id := range s.Spectators {
		ids = append(ids, id)
	}
	return ids
}

// WithSeated places the participant into the lowest vacant slot and returns
// the derived snapshot. The second return is false when no slot is free.
func (s *Session) WithSeated(pid, name string) (*Session, bool) {
	for i, seat := range s.Seats {
		if seat == nil {
			next := s.clone()
			next.Seats[i] = &game.Seat{ParticipantID: pid, Name: name, Role: game.PlayerRoles[i]}
			return next, true
		}
	}
	return s, false
}

// WithSpectator adds the participant to the spectator set.
func (s *Session) WithSpectator(pid, name string, now time.Time) *Session {
	next := s.clone()
	next.Spectators[pid] = game.Participant{ID: pid, Name: name, Role: game.RoleSpectator, LastActive: now}
	return next
}

// WithoutParticipant removes the participant from their seat or the
// spectator set, leaving the slot vacant for rejoin.
func (s *Session) WithoutParticipant(pid string) *Session {
	next := s.clone()
	for i, seat := range next.Seats {
		if seat != nil && seat.ParticipantID == pid {
			next.Seats[i] = nil
		}
	}
	delete(next.Spectators, pid)
	return next
}

// WithStatus returns a derived snapshot in the given lifecycle state.
func (s *Session) WithStatus(status Status) *Session {
	next := s.clone()
	next.Status = status
	return next
}

// WithActivity advances the last-activity timestamp.
func (s *Session) WithActivity(now time.Time) *Session {
	next := s.clone()
	next.LastActivity = now
	return next
}

// WithStarted transitions the session to active: it attaches the state
// container, records the start time, and captures the original roster from
// the currently occupied seats.
func (s *Session) WithStarted(state *StateContainer, now time.Time) *Session {
	next := s.clone()
	next.Status = StatusActive
	next.State = state
	next.StartedAt = now
	next.LastActivity = now
	next.OriginalRoster = next.OriginalRoster[:0]
	for _, seat := range next.Seats {
		if seat != nil {
			next.OriginalRoster = append(next.OriginalRoster, seat.ParticipantID)
		}
	}
	return next
}

// WithSpectatorsMuted sets the mute-spectators flag.
func (s *Session) WithSpectatorsMuted(muted bool) *Session {
	next := s.clone()
	next.SpectatorsMuted = muted
	return next
}
