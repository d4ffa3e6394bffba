package game

import "time"

// Role is the visibility category of a participant within a session. It
// governs which projection variant the participant receives on every
// broadcast. The set is closed: there is no implicit role inference from
// display names or seat labels.
type Role string

const (
	// RoleNone marks server-origin mutations (announcements) that commit
	// without acting as any participant.
	RoleNone Role = ""
	// RolePlayerA is the first player slot.
	RolePlayerA Role = "player_a"
	// RolePlayerB is the second player slot.
	RolePlayerB Role = "player_b"
	// RoleSpectator receives only the shared, fully-concealed view.
	RoleSpectator Role = "spectator"
)

// PlayerRoles lists the seat roles in slot order. Index 0 is the slot a
// rejoining participant receives when both slots are vacant.
var PlayerRoles = [2]Role{RolePlayerA, RolePlayerB}

// IsPlayer reports whether the role occupies a seat.
func (r Role) IsPlayer() bool { return r == RolePlayerA || r == RolePlayerB }

// IsValid reports whether the role is a member of the closed enumeration.
// RoleNone is valid only for server-origin mutations and never for a
// participant.
func (r Role) IsValid() bool {
	return r == RolePlayerA || r == RolePlayerB || r == RoleSpectator
}

// Identity is the transport-resolved identity of a message sender: the
// connection id and the display name it authenticated or announced as.
type Identity struct {
	ID   string
	Name string
}

// Seat binds a participant identity to a player slot.
type Seat struct {
	ParticipantID string
	Name          string
	Role          Role
}

// Participant is a connected identity within a session. LastActive is
// advanced by the dispatcher on every message the participant sends.
type Participant struct {
	ID         string
	Name       string
	Role       Role
	LastActive time.Time
}
