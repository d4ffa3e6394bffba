package lobby

import (
	"context"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/duelgate/game-server-go/sessions"
)

// Memory is an in-process Publisher and StatsRecorder. It keeps the live
// listing in a map and a bounded LRU of recently ended sessions so a lobby
// page can show "just finished" matches without unbounded growth.
type Memory struct {
	mu      sync.RWMutex
	live    map[string]Summary
	ended   *lru.Cache[string, Summary]
	started int64
}

// NewMemory creates a memory lobby retaining up to recentN ended sessions.
func NewMemory(recentN int) (*Memory, error) {
	cache, err := lru.New[string, Summary](recentN)
	if err != nil {
		return nil, fmt.Errorf("create recent-sessions cache: %w", err)
	}
	return &Memory{live: make(map[string]Summary), ended: cache}, nil
}

func (m *Memory) PublishListing(ctx context.Context, s Summary) error {
	m.mu.Lock()
	m.live[s.ID] = s
	m.mu.Unlock()
	return nil
}

func (m *Memory) RetractListing(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if s, ok := m.live[sessionID]; ok {
		delete(m.live, sessionID)
		s.Status = string(sessions.StatusEnded)
		m.ended.Add(sessionID, s)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) SessionStarted(ctx context.Context, s Summary) error {
	m.mu.Lock()
	m.started++
	m.mu.Unlock()
	return nil
}

// Listing returns the live sessions ordered by id.
func (m *Memory) Listing() []Summary {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.live))
	for _, s := range m.live {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Recent returns summaries of recently ended sessions, most recent last.
func (m *Memory) Recent() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := m.ended.Keys()
	out := make([]Summary, 0, len(keys))
	for _, k := range keys {
		if s, ok := m.ended.Peek(k); ok {
			out = append(out, s)
		}
	}
	return out
}

// StartedCount reports how many sessions have started since process boot.
func (m *Memory) StartedCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

var (
	_ Publisher     = (*Memory)(nil)
	_ StatsRecorder = (*Memory)(nil)
)
