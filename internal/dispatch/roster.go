package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/duelgate/game-server-go/game"
	"github.com/duelgate/game-server-go/lobby"
	"github.com/duelgate/game-server-go/sessions"
)

// CreateSession registers a new waiting session with the creator seated in
// slot 0 and recorded as first player.
func (d *Dispatcher) CreateSession(ctx context.Context, creator game.Identity, title, spectatorPassword string) (*sessions.Session, error) {
	id := d.newID()
	now := d.now()

	fresh := &sessions.Session{
		ID:                id,
		Title:             title,
		Status:            sessions.StatusWaiting,
		Spectators:        map[string]game.Participant{},
		FirstPlayerID:     creator.ID,
		SpectatorPassword: spectatorPassword,
		CreatedAt:         now,
		LastActivity:      now,
	}
	fresh.Seats[0] = &game.Seat{ParticipantID: creator.ID, Name: creator.Name, Role: game.PlayerRoles[0]}

	committed, err := d.reg.Upsert(id, func(cur *sessions.Session) (*sessions.Session, error) {
		if cur != nil {
			return nil, fmt.Errorf("session id collision: %w", game.ErrInvalidState)
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	d.refreshListing(ctx, id)
	return committed, nil
}

// Join seats a participant into a waiting session's free slot.
func (d *Dispatcher) Join(ctx context.Context, joiner game.Identity, sessionID string) (*sessions.Session, error) {
	committed, err := d.reg.Upsert(sessionID, func(cur *sessions.Session) (*sessions.Session, error) {
		if cur == nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, game.ErrNotFound)
		}
		if cur.Status != sessions.StatusWaiting {
			return nil, fmt.Errorf("join requires a waiting session: %w", game.ErrInvalidState)
		}
		if _, ok := cur.Seated(joiner.ID); ok {
			return cur, nil
		}
		next, ok := cur.WithSeated(joiner.ID, joiner.Name)
		if !ok {
			return nil, fmt.Errorf("session %s is full: %w", sessionID, game.ErrInvalidState)
		}
		return next.WithActivity(d.now()), nil
	})
	if err != nil {
		return nil, err
	}
	d.notifyAll(ctx, committed, game.Notification{Kind: "joined", Text: joiner.Name + " joined", ParticipantID: joiner.ID})
	d.refreshListing(ctx, sessionID)
	return committed, nil
}

// handleStart transitions a waiting session to active. Only the recorded
// first player may start it. The engine initializes state before the swap;
// the swap's transform re-validates the preconditions so a concurrent roster
// change aborts the start instead of committing a stale roster.
func (d *Dispatcher) handleStart(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	ctx, sess, err := d.resolve(ctx, sender.ID, msg)
	if err != nil {
		return err
	}
	if sess.FirstPlayerID != sender.ID {
		return fmt.Errorf("only the first player may start: %w", game.ErrPermissionDenied)
	}
	if sess.Status != sessions.StatusWaiting {
		return fmt.Errorf("start requires a waiting session: %w", game.ErrInvalidState)
	}

	seats := make([]game.Seat, 0, 2)
	for _, seat := range sess.Seats {
		if seat != nil {
			seats = append(seats, *seat)
		}
	}

	state, err := d.engine.InitSession(ctx, sess.ID, seats)
	if err != nil {
		return fmt.Errorf("init session state: %w", err)
	}
	container := sessions.NewStateContainer(state)

	committed, err := d.reg.Upsert(sess.ID, func(cur *sessions.Session) (*sessions.Session, error) {
		if cur == nil {
			return nil, fmt.Errorf("session %s: %w", sess.ID, game.ErrNotFound)
		}
		if cur.Status != sessions.StatusWaiting {
			return nil, fmt.Errorf("start requires a waiting session: %w", game.ErrInvalidState)
		}
		if cur.FirstPlayerID != sender.ID {
			return nil, fmt.Errorf("only the first player may start: %w", game.ErrPermissionDenied)
		}
		for i := range cur.Seats {
			if !sameOccupant(cur.Seats[i], sess.Seats[i]) {
				return nil, fmt.Errorf("roster changed during start: %w", game.ErrInvalidState)
			}
		}
		return cur.WithStarted(container, d.now()), nil
	})
	if err != nil {
		return err
	}

	if err := d.stats.SessionStarted(ctx, lobby.Summarize(committed)); err != nil {
		d.log.WarnContext(ctx, "dispatch.stats.fail", slog.String("err", err.Error()))
	}
	d.broadcastFullViews(ctx, committed)
	d.refreshListing(ctx, sess.ID)
	return nil
}

func sameOccupant(a, b *game.Seat) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || a.ParticipantID == b.ParticipantID
}

// handleWatch adds the sender as spectator after the password check. A wrong
// password changes nothing; a requester already seated elsewhere is not
// permitted to watch.
func (d *Dispatcher) handleWatch(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	ctx, sess, err := d.resolve(ctx, sender.ID, msg)
	if err != nil {
		return err
	}
	if existing, ok := d.reg.FindByParticipant(sender.ID); ok && existing.ID != sess.ID {
		return fmt.Errorf("already in session %s: %w", existing.ID, game.ErrNotFound)
	}

	committed, err := d.reg.Upsert(sess.ID, func(cur *sessions.Session) (*sessions.Session, error) {
		if cur == nil {
			return nil, fmt.Errorf("session %s: %w", sess.ID, game.ErrNotFound)
		}
		if _, seated := cur.Seated(sender.ID); seated {
			return nil, fmt.Errorf("seated players cannot watch: %w", game.ErrInvalidState)
		}
		if cur.SpectatorPassword != "" && msg.Password != cur.SpectatorPassword {
			return nil, fmt.Errorf("wrong spectator password: %w", game.ErrAuthFailure)
		}
		if cur.IsSpectator(sender.ID) {
			return cur, nil
		}
		return cur.WithSpectator(sender.ID, sender.Name, d.now()), nil
	})
	if err != nil {
		return err
	}

	d.notifyAll(ctx, committed, game.Notification{Kind: "watching", Text: sender.Name + " is watching", ParticipantID: sender.ID})
	if serr := d.sendFullView(ctx, committed, sender.ID, game.RoleSpectator); serr != nil {
		d.log.WarnContext(ctx, "dispatch.watch.full_view_fail", slog.String("err", serr.Error()))
	}
	d.refreshListing(ctx, sess.ID)
	return nil
}

// handleRejoin reseats a participant from the original roster into an active
// session. When both slots are vacant the lowest slot index wins.
func (d *Dispatcher) handleRejoin(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	ctx, sess, err := d.findRejoinable(ctx, sender.ID, msg)
	if err != nil {
		return err
	}

	committed, err := d.reg.Upsert(sess.ID, func(cur *sessions.Session) (*sessions.Session, error) {
		if cur == nil {
			return nil, fmt.Errorf("session %s: %w", sess.ID, game.ErrNotFound)
		}
		if cur.Status != sessions.StatusActive {
			return nil, fmt.Errorf("rejoin requires an active session: %w", game.ErrInvalidState)
		}
		if !cur.InOriginalRoster(sender.ID) {
			return nil, fmt.Errorf("not in original roster: %w", game.ErrPermissionDenied)
		}
		if _, seated := cur.Seated(sender.ID); seated {
			return nil, fmt.Errorf("already seated: %w", game.ErrInvalidState)
		}
		if cur.SeatedCount() >= 2 {
			return nil, fmt.Errorf("no vacant slot: %w", game.ErrInvalidState)
		}
		next, ok := cur.WithSeated(sender.ID, sender.Name)
		if !ok {
			return nil, fmt.Errorf("no vacant slot: %w", game.ErrInvalidState)
		}
		return next.WithActivity(d.now()), nil
	})
	if err != nil {
		return err
	}

	role, _ := committed.RoleOf(sender.ID)
	if serr := d.sendFullView(ctx, committed, sender.ID, role); serr != nil {
		d.log.WarnContext(ctx, "dispatch.rejoin.full_view_fail", slog.String("err", serr.Error()))
	}

	// The rejoin notification rides the mutation pipeline so it lands in the
	// history and reaches everyone as a diff.
	args, _ := json.Marshal(sender.Name)
	if _, perr := d.applyAndBroadcast(ctx, committed, role, "rejoin", args); perr != nil {
		d.log.WarnContext(ctx, "dispatch.rejoin.notify_fail", slog.String("err", perr.Error()))
	}
	d.refreshListing(ctx, sess.ID)
	return nil
}

// findRejoinable resolves the rejoin target: the named session, or the
// active session whose original roster contains the requester.
func (d *Dispatcher) findRejoinable(ctx context.Context, pid string, msg *game.ClientMessage) (context.Context, *sessions.Session, error) {
	if msg.SessionID != "" {
		s, ok := d.reg.Get(msg.SessionID)
		if !ok {
			return ctx, nil, fmt.Errorf("session %s: %w", msg.SessionID, game.ErrNotFound)
		}
		return d.withSessionData(ctx, s), s, nil
	}
	for _, s := range d.reg.List() {
		if s.Status == sessions.StatusActive && s.InOriginalRoster(pid) {
			return d.withSessionData(ctx, s), s, nil
		}
	}
	return ctx, nil, fmt.Errorf("no rejoinable session for %s: %w", pid, game.ErrNotFound)
}

// handleLeave removes the sender from the session, deleting the session once
// the roster empties.
func (d *Dispatcher) handleLeave(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	ctx, sess, err := d.resolve(ctx, sender.ID, msg)
	if err != nil {
		return err
	}
	if !sess.IsParticipant(sender.ID) {
		return fmt.Errorf("not a participant of %s: %w", sess.ID, game.ErrInvalidState)
	}
	return d.removeParticipant(ctx, sess.ID, sender)
}

// handleConnectionClose is leave driven by the transport: no session id, no
// error when the participant has no session.
func (d *Dispatcher) handleConnectionClose(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	sess, ok := d.reg.FindByParticipant(sender.ID)
	if !ok {
		_ = d.host.Cleanup(ctx, sender.ID)
		return nil
	}
	return d.removeParticipant(ctx, sess.ID, sender)
}

func (d *Dispatcher) removeParticipant(ctx context.Context, sessionID string, who game.Identity) error {
	committed, err := d.reg.Upsert(sessionID, func(cur *sessions.Session) (*sessions.Session, error) {
		if cur == nil {
			return nil, nil
		}
		if !cur.IsParticipant(who.ID) {
			return cur, nil
		}
		next := cur.WithoutParticipant(who.ID)
		if next.Empty() {
			return nil, nil // last participant out deletes the session
		}
		return next.WithActivity(d.now()), nil
	})
	if err != nil {
		return err
	}
	if cerr := d.host.Cleanup(ctx, who.ID); cerr != nil {
		d.log.WarnContext(ctx, "dispatch.leave.cleanup_fail", slog.String("err", cerr.Error()))
	}
	if committed != nil {
		d.notifyAll(ctx, committed, game.Notification{Kind: "left", Text: who.Name + " left", ParticipantID: who.ID})
	}
	d.refreshListing(ctx, sessionID)
	return nil
}

// handleResync delivers the requester's current full view. Read-only: no
// mutation, no broadcast to anyone else.
func (d *Dispatcher) handleResync(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	ctx, sess, err := d.resolve(ctx, sender.ID, msg)
	if err != nil {
		return err
	}
	role, ok := sess.RoleOf(sender.ID)
	if !ok {
		return fmt.Errorf("not a participant of %s: %w", sess.ID, game.ErrInvalidState)
	}
	if sess.Status != sessions.StatusActive || sess.State == nil {
		return fmt.Errorf("session %s has no state: %w", sess.ID, game.ErrInvalidState)
	}
	return d.sendFullView(ctx, sess, sender.ID, role)
}

// handleMuteSpectators toggles the mute flag. Only a seated player may do it.
func (d *Dispatcher) handleMuteSpectators(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	committed, err := d.reg.Upsert(msg.SessionID, func(cur *sessions.Session) (*sessions.Session, error) {
		if cur == nil {
			return nil, fmt.Errorf("session %s: %w", msg.SessionID, game.ErrNotFound)
		}
		if _, seated := cur.Seated(sender.ID); !seated {
			return nil, fmt.Errorf("only seated players may mute spectators: %w", game.ErrPermissionDenied)
		}
		return cur.WithSpectatorsMuted(!cur.SpectatorsMuted), nil
	})
	if err != nil {
		return err
	}

	kind := "spectators-unmuted"
	if committed.SpectatorsMuted {
		kind = "spectators-muted"
	}
	d.notifyAll(ctx, committed, game.Notification{Kind: kind, ParticipantID: sender.ID})
	d.refreshListing(ctx, msg.SessionID)
	return nil
}

// handleTyping pushes the transient indicator to the other seated players.
// Never persisted, never part of a diff.
func (d *Dispatcher) handleTyping(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	ctx, sess, err := d.resolve(ctx, sender.ID, msg)
	if err != nil {
		return err
	}
	if _, seated := sess.Seated(sender.ID); !seated {
		return fmt.Errorf("typing requires a seat: %w", game.ErrInvalidState)
	}

	payload, err := json.Marshal(game.TypingIndicator{ParticipantID: sender.ID, Typing: msg.Typing})
	if err != nil {
		return err
	}
	for _, seat := range sess.Seats {
		if seat == nil || seat.ParticipantID == sender.ID {
			continue
		}
		d.deliverTo(ctx, seat.ParticipantID, &game.ServerEvent{Event: game.EventTyping, SessionID: sess.ID, Payload: payload})
	}
	return nil
}

// handleAction runs an arbitrary engine command through the pipeline.
func (d *Dispatcher) handleAction(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	ctx, sess, err := d.resolve(ctx, sender.ID, msg)
	if err != nil {
		return err
	}
	seat, ok := sess.Seated(sender.ID)
	if !ok {
		return fmt.Errorf("action requires a seat: %w", game.ErrInvalidState)
	}
	_, err = d.applyAndBroadcast(ctx, sess, seat.Role, msg.Command, msg.Args)
	return err
}

// handleConcede applies the engine's forced-loss command for the sender.
func (d *Dispatcher) handleConcede(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	ctx, sess, err := d.resolve(ctx, sender.ID, msg)
	if err != nil {
		return err
	}
	seat, ok := sess.Seated(sender.ID)
	if !ok {
		return fmt.Errorf("concede requires a seat: %w", game.ErrInvalidState)
	}
	_, err = d.applyAndBroadcast(ctx, sess, seat.Role, "concede", nil)
	return err
}

// handleSay applies a chat mutation. Spectator chat is accepted only while
// the session's spectators are unmuted.
func (d *Dispatcher) handleSay(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	ctx, sess, err := d.resolve(ctx, sender.ID, msg)
	if err != nil {
		return err
	}

	var role game.Role
	if seat, ok := sess.Seated(sender.ID); ok {
		role = seat.Role
	} else if sess.IsSpectator(sender.ID) {
		if sess.SpectatorsMuted {
			return fmt.Errorf("spectators are muted: %w", game.ErrPermissionDenied)
		}
		role = game.RoleSpectator
	} else {
		return fmt.Errorf("not a participant of %s: %w", sess.ID, game.ErrInvalidState)
	}

	args, err := json.Marshal(msg.Text)
	if err != nil {
		return err
	}
	_, err = d.applyAndBroadcast(ctx, sess, role, "say", args)
	return err
}
