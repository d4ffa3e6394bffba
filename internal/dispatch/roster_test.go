package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/duelgate/game-server-go/game"
	"github.com/duelgate/game-server-go/sessions"
)

func TestCreateSessionSeatsCreator(t *testing.T) {
	f := newFixture(t)
	sess, err := f.d.CreateSession(context.Background(), alice, "my table", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.Status != sessions.StatusWaiting {
		t.Fatalf("status = %q, want waiting", sess.Status)
	}
	seat, ok := sess.Seated(alice.ID)
	if !ok || seat.Role != game.RolePlayerA {
		t.Fatalf("creator seat = %+v, %v", seat, ok)
	}
	if sess.FirstPlayerID != alice.ID {
		t.Fatalf("FirstPlayerID = %q", sess.FirstPlayerID)
	}
	if got, ok := f.reg.FindByParticipant(alice.ID); !ok || got.ID != sess.ID {
		t.Fatalf("participant index missing creator")
	}
}

func TestJoinSeatsSecondPlayerAndNotifies(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.d.CreateSession(context.Background(), alice, "t", "")
	f.host.reset()

	joined, err := f.d.Join(context.Background(), bob, sess.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	seat, ok := joined.Seated(bob.ID)
	if !ok || seat.Role != game.RolePlayerB {
		t.Fatalf("bob seat = %+v, %v", seat, ok)
	}

	for _, pid := range []string{alice.ID, bob.ID} {
		notes := f.host.ofKind(pid, game.EventNotification)
		if len(notes) != 1 {
			t.Fatalf("%s notifications = %d, want 1", pid, len(notes))
		}
		if n := decodeNote(t, notes[0].Payload); n.Kind != "joined" || n.ParticipantID != bob.ID {
			t.Fatalf("notification = %+v", n)
		}
	}
}

func TestJoinIsIdempotentForSeatedParticipant(t *testing.T) {
	f := newFixture(t)
	sess := f.newWaiting(t)
	again, err := f.d.Join(context.Background(), bob, sess.ID)
	if err != nil {
		t.Fatalf("repeat join: %v", err)
	}
	if again.SeatedCount() != 2 {
		t.Fatalf("SeatedCount = %d, want 2", again.SeatedCount())
	}
}

func TestJoinRejectsFullSession(t *testing.T) {
	f := newFixture(t)
	sess := f.newWaiting(t)
	_, err := f.d.Join(context.Background(), carol, sess.ID)
	if !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestJoinRejectsActiveSession(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.d.CreateSession(context.Background(), alice, "t", "")
	if err := f.d.Handle(context.Background(), alice, &game.ClientMessage{Type: game.MessageStart, SessionID: sess.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := f.d.Join(context.Background(), bob, sess.ID)
	if !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestStartOnlyByFirstPlayer(t *testing.T) {
	f := newFixture(t)
	sess := f.newWaiting(t)
	f.host.reset()

	err := f.d.Handle(context.Background(), bob, &game.ClientMessage{Type: game.MessageStart, SessionID: sess.ID})
	if !errors.Is(err, game.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	// The failure is reported to bob alone.
	if got := f.host.ofKind(bob.ID, game.EventError); len(got) != 1 {
		t.Fatalf("bob error events = %d, want 1", len(got))
	} else if info := decodeErrorInfo(t, got[0].Payload); info.Code != "permission_denied" {
		t.Fatalf("error code = %q", info.Code)
	}
	if got := f.host.eventsFor(alice.ID); len(got) != 0 {
		t.Fatalf("alice saw %d events, want 0", len(got))
	}
}

func TestStartTransitionsToActiveAndBroadcastsFullViews(t *testing.T) {
	f := newFixture(t)
	sess := f.newWaiting(t)
	f.host.reset()

	if err := f.d.Handle(context.Background(), alice, &game.ClientMessage{Type: game.MessageStart, SessionID: sess.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}

	started, _ := f.reg.Get(sess.ID)
	if started.Status != sessions.StatusActive {
		t.Fatalf("status = %q, want active", started.Status)
	}
	if started.State == nil {
		t.Fatal("active session must carry state")
	}
	if !started.InOriginalRoster(alice.ID) || !started.InOriginalRoster(bob.ID) {
		t.Fatalf("original roster = %v", started.OriginalRoster)
	}

	for _, pid := range []string{alice.ID, bob.ID} {
		views := f.host.ofKind(pid, game.EventFullState)
		if len(views) != 1 {
			t.Fatalf("%s full views = %d, want 1", pid, len(views))
		}
		v := decodeView(t, views[0].Payload)
		if v.HandCounts["player_a"] != 0 || v.HandCounts["player_b"] != 0 {
			t.Fatalf("%s hand counts = %v", pid, v.HandCounts)
		}
	}
}

func TestStartRequiresWaitingSession(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)
	err := f.d.Handle(context.Background(), alice, &game.ClientMessage{Type: game.MessageStart, SessionID: sess.ID})
	if !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestWatchWrongPassword(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.d.CreateSession(context.Background(), alice, "t", "secret")
	f.host.reset()

	err := f.d.Handle(context.Background(), carol, &game.ClientMessage{Type: game.MessageWatch, SessionID: sess.ID, Password: "nope"})
	if !errors.Is(err, game.ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure, got %v", err)
	}
	cur, _ := f.reg.Get(sess.ID)
	if cur.IsSpectator(carol.ID) {
		t.Fatal("wrong password must not add the spectator")
	}
	if got := f.host.ofKind(carol.ID, game.EventError); len(got) != 1 {
		t.Fatalf("carol error events = %d, want 1", len(got))
	} else if info := decodeErrorInfo(t, got[0].Payload); info.Code != "auth_failure" {
		t.Fatalf("error code = %q", info.Code)
	}
}

func TestWatchAddsSpectatorAndDeliversView(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.d.CreateSession(context.Background(), alice, "t", "secret")
	if err := f.d.Handle(context.Background(), alice, &game.ClientMessage{Type: game.MessageStart, SessionID: sess.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.host.reset()

	if err := f.d.Handle(context.Background(), carol, &game.ClientMessage{Type: game.MessageWatch, SessionID: sess.ID, Password: "secret"}); err != nil {
		t.Fatalf("watch: %v", err)
	}

	cur, _ := f.reg.Get(sess.ID)
	if !cur.IsSpectator(carol.ID) {
		t.Fatal("carol should be a spectator")
	}
	if role, _ := cur.RoleOf(carol.ID); role != game.RoleSpectator {
		t.Fatalf("role = %q", role)
	}

	views := f.host.ofKind(carol.ID, game.EventFullState)
	if len(views) != 1 {
		t.Fatalf("carol full views = %d, want 1", len(views))
	}
	if v := decodeView(t, views[0].Payload); len(v.Hand) != 0 {
		t.Fatalf("spectator view leaks a hand: %v", v.Hand)
	}

	notes := f.host.ofKind(alice.ID, game.EventNotification)
	if len(notes) != 1 {
		t.Fatalf("alice notifications = %d, want 1", len(notes))
	}
	if n := decodeNote(t, notes[0].Payload); n.Kind != "watching" || n.ParticipantID != carol.ID {
		t.Fatalf("notification = %+v", n)
	}
}

func TestWatchWhileSeatedElsewhere(t *testing.T) {
	f := newFixture(t)
	f.newWaiting(t)
	other, _ := f.d.CreateSession(context.Background(), carol, "other", "")

	err := f.d.Handle(context.Background(), bob, &game.ClientMessage{Type: game.MessageWatch, SessionID: other.ID})
	if !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLeaveNotifiesSurvivors(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)

	if err := f.d.Handle(context.Background(), bob, &game.ClientMessage{Type: game.MessageLeave, SessionID: sess.ID}); err != nil {
		t.Fatalf("leave: %v", err)
	}

	cur, ok := f.reg.Get(sess.ID)
	if !ok {
		t.Fatal("session should survive with one player remaining")
	}
	if _, seated := cur.Seated(bob.ID); seated {
		t.Fatal("bob should be unseated")
	}
	if cur.SeatedCount() != 1 {
		t.Fatalf("SeatedCount = %d, want 1", cur.SeatedCount())
	}

	notes := f.host.ofKind(alice.ID, game.EventNotification)
	if len(notes) != 1 {
		t.Fatalf("alice notifications = %d, want 1", len(notes))
	}
	if n := decodeNote(t, notes[0].Payload); n.Kind != "left" || n.ParticipantID != bob.ID {
		t.Fatalf("notification = %+v", n)
	}
	if len(f.host.cleaned) != 1 || f.host.cleaned[0] != bob.ID {
		t.Fatalf("cleaned = %v", f.host.cleaned)
	}
}

func TestLastParticipantLeavingDeletesSession(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)

	for _, who := range []game.Identity{bob, alice} {
		if err := f.d.Handle(context.Background(), who, &game.ClientMessage{Type: game.MessageLeave, SessionID: sess.ID}); err != nil {
			t.Fatalf("leave %s: %v", who.ID, err)
		}
	}
	if _, ok := f.reg.Get(sess.ID); ok {
		t.Fatal("empty session should be deleted")
	}
	if _, ok := f.reg.FindByParticipant(alice.ID); ok {
		t.Fatal("participant index should be cleared")
	}
}

func TestLastSpectatorLeavingDeletesSession(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)
	f.watch(t, sess.ID, "")

	for _, who := range []game.Identity{alice, bob} {
		if err := f.d.Handle(context.Background(), who, &game.ClientMessage{Type: game.MessageLeave, SessionID: sess.ID}); err != nil {
			t.Fatalf("leave %s: %v", who.ID, err)
		}
	}
	if _, ok := f.reg.Get(sess.ID); !ok {
		t.Fatal("session should survive while a spectator remains")
	}
	if err := f.d.Handle(context.Background(), carol, &game.ClientMessage{Type: game.MessageLeave, SessionID: sess.ID}); err != nil {
		t.Fatalf("spectator leave: %v", err)
	}
	if _, ok := f.reg.Get(sess.ID); ok {
		t.Fatal("session should be deleted once the last spectator leaves")
	}
}

func TestConnectionCloseWithoutSessionIsNoop(t *testing.T) {
	f := newFixture(t)
	err := f.d.Handle(context.Background(), carol, &game.ClientMessage{Type: game.MessageConnectionClose})
	if err != nil {
		t.Fatalf("connection close: %v", err)
	}
	if len(f.host.cleaned) != 1 || f.host.cleaned[0] != carol.ID {
		t.Fatalf("cleaned = %v", f.host.cleaned)
	}
}

func TestConnectionCloseActsAsLeave(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)

	if err := f.d.Handle(context.Background(), bob, &game.ClientMessage{Type: game.MessageConnectionClose}); err != nil {
		t.Fatalf("connection close: %v", err)
	}
	cur, _ := f.reg.Get(sess.ID)
	if _, seated := cur.Seated(bob.ID); seated {
		t.Fatal("bob should be unseated after connection close")
	}
}

func TestRejoinAfterDisconnect(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)

	if err := f.d.Handle(context.Background(), bob, &game.ClientMessage{Type: game.MessageConnectionClose}); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	f.host.reset()

	// No session id: the dispatcher finds the active session whose original
	// roster contains bob.
	if err := f.d.Handle(context.Background(), bob, &game.ClientMessage{Type: game.MessageRejoin}); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	cur, _ := f.reg.Get(sess.ID)
	seat, ok := cur.Seated(bob.ID)
	if !ok {
		t.Fatal("bob should be reseated")
	}
	if seat.Role != game.RolePlayerB {
		t.Fatalf("bob reseated as %q, want player_b", seat.Role)
	}

	// The rejoiner catches up from a full view; everyone sees the rejoin as
	// a committed mutation.
	if views := f.host.ofKind(bob.ID, game.EventFullState); len(views) != 1 {
		t.Fatalf("bob full views = %d, want 1", len(views))
	}
	diffs := f.host.ofKind(alice.ID, game.EventDiff)
	if len(diffs) != 1 {
		t.Fatalf("alice diffs = %d, want 1", len(diffs))
	}
	if v := decodeView(t, diffs[0].Payload); v.LastAction != "player_b rejoined" {
		t.Fatalf("lastAction = %q", v.LastAction)
	}
	if cur.State.HistoryLen() != 1 {
		t.Fatalf("history length = %d, want 1", cur.State.HistoryLen())
	}
}

func TestAllPlayersDisconnectingDeletesSession(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)

	for _, who := range []game.Identity{alice, bob} {
		if err := f.d.Handle(context.Background(), who, &game.ClientMessage{Type: game.MessageConnectionClose}); err != nil {
			t.Fatalf("disconnect %s: %v", who.ID, err)
		}
	}
	if _, ok := f.reg.Get(sess.ID); ok {
		t.Fatal("session should be deleted once everyone disconnects")
	}
}

// Rejoin after all players dropped: the spectator keeps the session alive
// and the first rejoiner lands back in the lowest vacant slot.
func TestRejoinIntoSessionHeldBySpectator(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)
	f.watch(t, sess.ID, "")

	for _, who := range []game.Identity{alice, bob} {
		if err := f.d.Handle(context.Background(), who, &game.ClientMessage{Type: game.MessageConnectionClose}); err != nil {
			t.Fatalf("disconnect %s: %v", who.ID, err)
		}
	}
	f.host.reset()

	if err := f.d.Handle(context.Background(), alice, &game.ClientMessage{Type: game.MessageRejoin}); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	cur, _ := f.reg.Get(sess.ID)
	seat, ok := cur.Seated(alice.ID)
	if !ok || seat.Role != game.RolePlayerA {
		t.Fatalf("alice seat = %+v, %v; want player_a", seat, ok)
	}
}

func TestRejoinRequiresOriginalRoster(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)

	err := f.d.Handle(context.Background(), carol, &game.ClientMessage{Type: game.MessageRejoin, SessionID: sess.ID})
	if !errors.Is(err, game.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestRejoinWhileSeated(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)

	err := f.d.Handle(context.Background(), alice, &game.ClientMessage{Type: game.MessageRejoin, SessionID: sess.ID})
	if !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestRejoinWithNoEligibleSession(t *testing.T) {
	f := newFixture(t)
	f.newActive(t)

	err := f.d.Handle(context.Background(), carol, &game.ClientMessage{Type: game.MessageRejoin})
	if !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejoinRequiresActiveSession(t *testing.T) {
	f := newFixture(t)
	sess := f.newWaiting(t)

	err := f.d.Handle(context.Background(), carol, &game.ClientMessage{Type: game.MessageRejoin, SessionID: sess.ID})
	if !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestResyncDeliversOnlyToRequester(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)

	if err := f.d.Handle(context.Background(), bob, &game.ClientMessage{Type: game.MessageResync, SessionID: sess.ID}); err != nil {
		t.Fatalf("resync: %v", err)
	}

	views := f.host.ofKind(bob.ID, game.EventFullState)
	if len(views) != 1 {
		t.Fatalf("bob full views = %d, want 1", len(views))
	}
	if got := f.host.eventsFor(alice.ID); len(got) != 0 {
		t.Fatalf("alice saw %d events, want 0", len(got))
	}
	cur, _ := f.reg.Get(sess.ID)
	if cur.State.HistoryLen() != 0 {
		t.Fatal("resync must not touch history")
	}
}

func TestResyncRequiresActiveState(t *testing.T) {
	f := newFixture(t)
	sess := f.newWaiting(t)
	err := f.d.Handle(context.Background(), bob, &game.ClientMessage{Type: game.MessageResync, SessionID: sess.ID})
	if !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestMuteSpectatorsToggles(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)
	f.watch(t, sess.ID, "")

	if err := f.d.Handle(context.Background(), alice, &game.ClientMessage{Type: game.MessageMuteSpectators, SessionID: sess.ID}); err != nil {
		t.Fatalf("mute: %v", err)
	}
	cur, _ := f.reg.Get(sess.ID)
	if !cur.SpectatorsMuted {
		t.Fatal("spectators should be muted")
	}
	notes := f.host.ofKind(carol.ID, game.EventNotification)
	if len(notes) != 1 || decodeNote(t, notes[0].Payload).Kind != "spectators-muted" {
		t.Fatalf("carol notifications = %+v", notes)
	}

	if err := f.d.Handle(context.Background(), alice, &game.ClientMessage{Type: game.MessageMuteSpectators, SessionID: sess.ID}); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	cur, _ = f.reg.Get(sess.ID)
	if cur.SpectatorsMuted {
		t.Fatal("spectators should be unmuted again")
	}
}

func TestMuteSpectatorsRequiresSeat(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)
	f.watch(t, sess.ID, "")

	err := f.d.Handle(context.Background(), carol, &game.ClientMessage{Type: game.MessageMuteSpectators, SessionID: sess.ID})
	if !errors.Is(err, game.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestTypingReachesOnlyOtherSeatedPlayers(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)
	f.watch(t, sess.ID, "")

	if err := f.d.Handle(context.Background(), alice, &game.ClientMessage{Type: game.MessageTyping, SessionID: sess.ID, Typing: true}); err != nil {
		t.Fatalf("typing: %v", err)
	}

	got := f.host.ofKind(bob.ID, game.EventTyping)
	if len(got) != 1 {
		t.Fatalf("bob typing events = %d, want 1", len(got))
	}
	var ind game.TypingIndicator
	if err := json.Unmarshal(got[0].Payload, &ind); err != nil {
		t.Fatalf("decode indicator: %v", err)
	}
	if ind.ParticipantID != alice.ID || !ind.Typing {
		t.Fatalf("indicator = %+v", ind)
	}
	if len(f.host.ofKind(alice.ID, game.EventTyping)) != 0 {
		t.Fatal("sender must not receive their own indicator")
	}
	if len(f.host.ofKind(carol.ID, game.EventTyping)) != 0 {
		t.Fatal("spectators must not receive typing indicators")
	}
	cur, _ := f.reg.Get(sess.ID)
	if cur.State.HistoryLen() != 0 {
		t.Fatal("typing must not touch history")
	}
}

func TestTypingRequiresSeat(t *testing.T) {
	f := newFixture(t)
	sess := f.newActive(t)
	f.watch(t, sess.ID, "")

	err := f.d.Handle(context.Background(), carol, &game.ClientMessage{Type: game.MessageTyping, SessionID: sess.ID, Typing: true})
	if !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
