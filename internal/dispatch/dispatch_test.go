package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/duelgate/game-server-go/game"
	"github.com/duelgate/game-server-go/rules/rulestest"
	"github.com/duelgate/game-server-go/sessions"
)

var (
	alice = game.Identity{ID: "p1", Name: "alice"}
	bob   = game.Identity{ID: "p2", Name: "bob"}
	carol = game.Identity{ID: "p3", Name: "carol"}
)

// recordingHost captures every delivery per participant so tests can assert
// exactly who saw what.
type recordingHost struct {
	mu      sync.Mutex
	seq     int
	events  map[string][]game.ServerEvent
	cleaned []string
}

func newRecordingHost() *recordingHost {
	return &recordingHost{events: map[string][]game.ServerEvent{}}
}

func (h *recordingHost) Deliver(ctx context.Context, participantID string, data []byte) (string, error) {
	var ev game.ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", fmt.Errorf("recording host: bad envelope: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.events[participantID] = append(h.events[participantID], ev)
	return fmt.Sprintf("%d", h.seq), nil
}

func (h *recordingHost) Subscribe(ctx context.Context, participantID string, lastEventID string, handler sessions.MessageHandlerFunc) error {
	<-ctx.Done()
	return ctx.Err()
}

func (h *recordingHost) Cleanup(ctx context.Context, participantID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleaned = append(h.cleaned, participantID)
	return nil
}

func (h *recordingHost) eventsFor(pid string) []game.ServerEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]game.ServerEvent(nil), h.events[pid]...)
}

func (h *recordingHost) ofKind(pid string, kind game.EventKind) []game.ServerEvent {
	var out []game.ServerEvent
	for _, ev := range h.eventsFor(pid) {
		if ev.Event == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (h *recordingHost) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = map[string][]game.ServerEvent{}
}

var _ sessions.DeliveryHost = (*recordingHost)(nil)

// viewPayload mirrors the scripted projection's role-scoped view.
type viewPayload struct {
	Hand       []string       `json:"hand"`
	HandCounts map[string]int `json:"handCounts"`
	Chat       []string       `json:"chat"`
	Notices    []string       `json:"notices"`
	ConcededBy string         `json:"concededBy"`
	LastAction string         `json:"lastAction"`
}

func decodeView(t *testing.T, payload json.RawMessage) viewPayload {
	t.Helper()
	var v viewPayload
	if err := json.Unmarshal(payload, &v); err != nil {
		t.Fatalf("decode view payload: %v", err)
	}
	return v
}

func decodeNote(t *testing.T, payload json.RawMessage) game.Notification {
	t.Helper()
	var n game.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		t.Fatalf("decode notification payload: %v", err)
	}
	return n
}

func decodeErrorInfo(t *testing.T, payload json.RawMessage) game.ErrorInfo {
	t.Helper()
	var e game.ErrorInfo
	if err := json.Unmarshal(payload, &e); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return e
}

type fixture struct {
	d      *Dispatcher
	reg    *sessions.Registry
	host   *recordingHost
	engine *rulestest.Scripted
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	reg := sessions.NewRegistry()
	host := newRecordingHost()
	engine := rulestest.New()

	ids := 0
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("sess-%d", ids)
		}),
	}
	d := New(reg, engine, engine, host, append(base, opts...)...)
	return &fixture{d: d, reg: reg, host: host, engine: engine}
}

// newWaiting creates a session with alice seated and bob joined.
func (f *fixture) newWaiting(t *testing.T) *sessions.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := f.d.CreateSession(ctx, alice, "test table", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := f.d.Join(ctx, bob, sess.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	return sess
}

// newActive creates a two-player session and starts it, discarding the
// setup traffic so tests see only their own deliveries.
func (f *fixture) newActive(t *testing.T) *sessions.Session {
	t.Helper()
	sess := f.newWaiting(t)
	if err := f.d.Handle(context.Background(), alice, &game.ClientMessage{Type: game.MessageStart, SessionID: sess.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.host.reset()
	started, ok := f.reg.Get(sess.ID)
	if !ok {
		t.Fatalf("started session missing from registry")
	}
	return started
}

// watch adds carol as spectator and discards the resulting traffic.
func (f *fixture) watch(t *testing.T, sessionID, password string) {
	t.Helper()
	err := f.d.Handle(context.Background(), carol, &game.ClientMessage{Type: game.MessageWatch, SessionID: sessionID, Password: password})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	f.host.reset()
}
