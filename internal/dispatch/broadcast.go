package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/duelgate/game-server-go/game"
	"github.com/duelgate/game-server-go/internal/wire"
	"github.com/duelgate/game-server-go/sessions"
)

// broadcast fans a role-keyed bundle out to every connected participant,
// players first, then spectators. Fire-and-forget: a failed delivery to one
// participant never aborts delivery to the rest and never rolls anything
// back.
func (d *Dispatcher) broadcast(ctx context.Context, sess *sessions.Session, kind game.EventKind, bundle *game.DiffBundle) {
	for _, p := range sess.Participants() {
		payload, ok := bundle.PayloadFor(p.Role)
		if !ok {
			continue
		}
		d.deliverTo(ctx, p.ID, &game.ServerEvent{Event: kind, SessionID: sess.ID, Payload: payload})
	}
}

// notifyAll broadcasts a roster/lifecycle notification to every participant.
func (d *Dispatcher) notifyAll(ctx context.Context, sess *sessions.Session, note game.Notification) {
	payload, err := json.Marshal(note)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatch.broadcast.encode_fail", slog.String("err", err.Error()))
		return
	}
	for _, p := range sess.Participants() {
		d.deliverTo(ctx, p.ID, &game.ServerEvent{Event: game.EventNotification, SessionID: sess.ID, Payload: payload})
	}
}

// broadcastFullViews computes and delivers a per-role full snapshot to every
// participant. Used at session start.
func (d *Dispatcher) broadcastFullViews(ctx context.Context, sess *sessions.Session) {
	if sess.State == nil {
		return
	}
	state, _ := sess.State.Snapshot()
	for _, p := range sess.Participants() {
		view, err := d.proj.FullView(state, p.Role)
		if err != nil {
			d.log.ErrorContext(ctx, "dispatch.broadcast.full_view_fail",
				slog.String("participant_id", p.ID),
				slog.String("err", err.Error()))
			continue
		}
		d.deliverTo(ctx, p.ID, &game.ServerEvent{Event: game.EventFullState, SessionID: sess.ID, Payload: view})
	}
}

// sendFullView delivers the current full view to a single participant.
func (d *Dispatcher) sendFullView(ctx context.Context, sess *sessions.Session, pid string, role game.Role) error {
	if sess.State == nil {
		return nil
	}
	state, _ := sess.State.Snapshot()
	view, err := d.proj.FullView(state, role)
	if err != nil {
		return err
	}
	d.deliverTo(ctx, pid, &game.ServerEvent{Event: game.EventFullState, SessionID: sess.ID, Payload: view})
	return nil
}

// deliverTo writes one event to a single participant's stream, logging and
// swallowing failures.
func (d *Dispatcher) deliverTo(ctx context.Context, pid string, ev *game.ServerEvent) {
	data, err := wire.EncodeServerEvent(ev)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatch.deliver.encode_fail", slog.String("err", err.Error()))
		return
	}
	if _, err := d.host.Deliver(ctx, pid, data); err != nil {
		d.log.WarnContext(ctx, "dispatch.deliver.fail",
			slog.String("participant_id", pid),
			slog.String("event", string(ev.Event)),
			slog.String("err", err.Error()))
	}
}
