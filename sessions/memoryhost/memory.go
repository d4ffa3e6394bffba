package memoryhost

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/duelgate/game-server-go/sessions"
)

// Host is an in-memory implementation of sessions.DeliveryHost.
type Host struct {
	mu      sync.Mutex
	logs    map[string]*participantLog
	counter atomic.Int64
}

type participantLog struct {
	mu       sync.Mutex
	messages []message
	subs     map[*subscriber]struct{}
	closed   bool
}

type message struct {
	id   string
	data []byte
}

type subscriber struct {
	notify chan struct{}
}

func New() *Host {
	return &Host{logs: make(map[string]*participantLog)}
}

func (h *Host) ensureLog(pid string) *participantLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	pl, ok := h.logs[pid]
	if !ok {
		pl = &participantLog{subs: make(map[*subscriber]struct{})}
		h.logs[pid] = pl
	}
	return pl
}

func (h *Host) Deliver(ctx context.Context, participantID string, data []byte) (string, error) {
	evID := strconv.FormatInt(h.counter.Add(1), 10)
	pl := h.ensureLog(participantID)

	pl.mu.Lock()
	pl.messages = append(pl.messages, message{id: evID, data: append([]byte(nil), data...)})
	for sub := range pl.subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
	pl.mu.Unlock()

	return evID, nil
}

func (h *Host) Subscribe(ctx context.Context, participantID string, lastEventID string, handler sessions.MessageHandlerFunc) error {
	pl := h.ensureLog(participantID)

	sub := &subscriber{notify: make(chan struct{}, 1)}

	pl.mu.Lock()
	cursor := 0
	if lastEventID != "" {
		found := false
		for i := range pl.messages {
			if pl.messages[i].id == lastEventID {
				cursor = i + 1
				found = true
				break
			}
		}
		if !found {
			pl.mu.Unlock()
			return sessions.ErrUnknownEventID
		}
	}
	pl.subs[sub] = struct{}{}
	pl.mu.Unlock()

	defer func() {
		pl.mu.Lock()
		delete(pl.subs, sub)
		pl.mu.Unlock()
	}()

	for {
		// Drain everything past the cursor in order before blocking again.
		pl.mu.Lock()
		pending := make([]message, len(pl.messages)-cursor)
		copy(pending, pl.messages[cursor:])
		cursor = len(pl.messages)
		closed := pl.closed
		pl.mu.Unlock()

		for _, m := range pending {
			if err := handler(ctx, m.id, m.data); err != nil {
				return err
			}
		}
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.notify:
		}
	}
}

func (h *Host) Cleanup(ctx context.Context, participantID string) error {
	h.mu.Lock()
	pl, ok := h.logs[participantID]
	if ok {
		delete(h.logs, participantID)
	}
	h.mu.Unlock()
	if !ok {
		return nil
	}

	pl.mu.Lock()
	pl.closed = true
	for sub := range pl.subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
	pl.mu.Unlock()
	return nil
}

var _ sessions.DeliveryHost = (*Host)(nil)
