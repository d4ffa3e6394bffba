package sessions

import (
	"fmt"
	"sync/atomic"

	"github.com/duelgate/game-server-go/game"
)

// registrySnapshot is the immutable value the Registry swaps atomically. The
// participant index lives in the same snapshot so a roster change and its
// index entry always commit together.
type registrySnapshot struct {
	sessions      map[string]*Session
	byParticipant map[string]string
}

func emptySnapshot() *registrySnapshot {
	return &registrySnapshot{
		sessions:      map[string]*Session{},
		byParticipant: map[string]string{},
	}
}

// Registry is a concurrency-safe store of sessions keyed by id. All updates
// are optimistic: callers supply a pure transform over the current session
// value and the registry retries the compare-and-swap until it commits.
// Unrelated sessions never block each other and there is no global lock.
type Registry struct {
	cur atomic.Pointer[registrySnapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.cur.Store(emptySnapshot())
	return r
}

// Get returns the current snapshot of the session, if present.
func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.cur.Load().sessions[id]
	return s, ok
}

// FindByParticipant returns the session containing the participant, seated
// or spectating. O(1) via the participant index.
func (r *Registry) FindByParticipant(pid string) (*Session, bool) {
	snap := r.cur.Load()
	id, ok := snap.byParticipant[pid]
	if !ok {
		return nil, false
	}
	s, ok := snap.sessions[id]
	return s, ok
}

// List returns the current sessions in no particular order.
func (r *Registry) List() []*Session {
	snap := r.cur.Load()
	out := make([]*Session, 0, len(snap.sessions))
	for _, s := range snap.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return len(r.cur.Load().sessions)
}

// Upsert atomically replaces the session stored under id with the result of
// transform. The transform receives the current session (nil when absent) and
// returns the replacement; returning nil removes the session. Because the
// swap is retried on concurrent conflict, transform must be pure: no side
// effects, derive everything from its argument.
//
// A transform that would place a participant who is already in a different
// session fails with game.ErrInvalidState; a participant identity occupies at
// most one session across the registry.
func (r *Registry) Upsert(id string, transform func(cur *Session) (*Session, error)) (*Session, error) {
	for {
		snap := r.cur.Load()
		cur := snap.sessions[id]

		next, err := transform(cur)
		if err != nil {
			return nil, err
		}

		nextSnap := &registrySnapshot{
			sessions:      make(map[string]*Session, len(snap.sessions)+1),
			byParticipant: make(map[string]string, len(snap.byParticipant)+2),
		}
		for k, v := range snap.sessions {
			nextSnap.sessions[k] = v
		}
		for k, v := range snap.byParticipant {
			if v == id {
				continue // re-derived below from the replacement session
			}
			nextSnap.byParticipant[k] = v
		}

		if next == nil {
			delete(nextSnap.sessions, id)
		} else {
			nextSnap.sessions[id] = next
			for _, pid := range next.participantIDs() {
				if other, taken := nextSnap.byParticipant[pid]; taken && other != id {
					return nil, fmt.Errorf("participant %s already in session %s: %w", pid, other, game.ErrInvalidState)
				}
				nextSnap.byParticipant[pid] = id
			}
		}

		if r.cur.CompareAndSwap(snap, nextSnap) {
			return next, nil
		}
	}
}

// Remove deletes the session, if present.
func (r *Registry) Remove(id string) {
	_, _ = r.Upsert(id, func(*Session) (*Session, error) { return nil, nil })
}
