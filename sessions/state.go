package sessions

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/duelgate/game-server-go/game"
	"github.com/duelgate/game-server-go/rules"
)

// stateSnapshot pairs the opaque state value with the history as of one
// committed mutation. Snapshots are immutable once stored.
type stateSnapshot struct {
	state   rules.State
	history []game.HistoryEntry
}

// StateContainer owns one authoritative game-state value plus the append-only
// history of applied mutations. Mutations are serialized by the container's
// mutex, so the rules engine always has single-writer access; arrival order
// at the mutex is the total history order. Reads never take the mutex.
type StateContainer struct {
	mu  sync.Mutex
	cur atomic.Pointer[stateSnapshot]

	now func() time.Time
}

// NewStateContainer wraps an initial state produced by Engine.InitSession.
func NewStateContainer(initial rules.State) *StateContainer {
	c := &StateContainer{now: time.Now}
	c.cur.Store(&stateSnapshot{state: initial})
	return c
}

// Snapshot returns the current state value and history without locking.
// The returned history slice must not be mutated.
func (c *StateContainer) Snapshot() (rules.State, []game.HistoryEntry) {
	snap := c.cur.Load()
	return snap.state, snap.history
}

// HistoryLen returns the number of committed mutations.
func (c *StateContainer) HistoryLen() int {
	return len(c.cur.Load().history)
}

// Apply runs one mutation as an atomic read-transform-write. The transform
// receives the current state and returns the successor state plus the history
// entry describing it. A transform error commits nothing: the pre-mutation
// snapshot stays current, which is the rollback the pipeline relies on.
//
// The committed entry's Seq and At fields are assigned here; history grows by
// exactly one entry per successful call.
//
// committed, when non-nil, runs after the commit while the container is still
// held, before the next mutation can begin. Work done there — enqueueing
// deliveries, most importantly — is therefore ordered identically to history:
// no later commit's callback can run first.
func (c *StateContainer) Apply(transform func(cur rules.State) (rules.State, game.HistoryEntry, error), committed func(game.HistoryEntry)) (game.HistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.cur.Load()
	next, entry, err := transform(snap.state)
	if err != nil {
		return game.HistoryEntry{}, err
	}

	entry.Seq = uint64(len(snap.history)) + 1
	entry.At = c.now().UTC()

	history := make([]game.HistoryEntry, len(snap.history)+1)
	copy(history, snap.history)
	history[len(snap.history)] = entry

	c.cur.Store(&stateSnapshot{state: next, history: history})
	if committed != nil {
		committed(entry)
	}
	return entry, nil
}
