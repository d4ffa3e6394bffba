// Package lobby defines the administrative collaborators around the session
// core: the public listing that is refreshed after every roster change and
// the stats recorder notified when a session starts. The core only pushes
// summaries; rendering and durable persistence live elsewhere.
package lobby

import (
	"context"
	"time"

	"github.com/duelgate/game-server-go/sessions"
)

// Summary is the public, visibility-safe view of one session. It carries no
// game state, only roster and lifecycle facts.
type Summary struct {
	ID                string    `json:"id"`
	Title             string    `json:"title,omitempty"`
	Status            string    `json:"status"`
	Players           []string  `json:"players"`
	SpectatorCount    int       `json:"spectatorCount"`
	SpectatorsMuted   bool      `json:"spectatorsMuted"`
	PasswordProtected bool      `json:"passwordProtected"`
	StartedAt         time.Time `json:"startedAt,omitempty"`
}

// Publisher receives listing refreshes. Implementations must tolerate being
// called concurrently from independent sessions.
type Publisher interface {
	// PublishListing replaces the listing entry for the summarized session.
	PublishListing(ctx context.Context, s Summary) error
	// RetractListing removes a session from the listing once it is deleted.
	RetractListing(ctx context.Context, sessionID string) error
}

// StatsRecorder is notified when a session starts. Durable persistence of
// match statistics is out of the core's scope.
type StatsRecorder interface {
	SessionStarted(ctx context.Context, s Summary) error
}

// Summarize builds the public summary of a session snapshot.
func Summarize(s *sessions.Session) Summary {
	players := make([]string, 0, 2)
	for _, seat := range s.Seats {
		if seat != nil {
			players = append(players, seat.Name)
		}
	}
	return Summary{
		ID:                s.ID,
		Title:             s.Title,
		Status:            string(s.Status),
		Players:           players,
		SpectatorCount:    len(s.Spectators),
		SpectatorsMuted:   s.SpectatorsMuted,
		PasswordProtected: s.SpectatorPassword != "",
		StartedAt:         s.StartedAt,
	}
}
