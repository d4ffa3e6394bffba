package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/duelgate/game-server-go/game"
	"github.com/duelgate/game-server-go/rules"
	"github.com/duelgate/game-server-go/sessions"
)

// applyAndBroadcast is the mutation pipeline: apply one role-scoped command
// to an active session's state and broadcast the resulting diff, as a single
// effectively-atomic step relative to other mutations on the same session.
//
// Failure is part of the normal control flow, not unwinding: when the rules
// engine rejects the command nothing commits — the pre-mutation snapshot
// stays current — and the caller reports an opaque game.ErrMutationFailed to
// the originator only. The engine error is logged here with full context and
// is never retried.
func (d *Dispatcher) applyAndBroadcast(ctx context.Context, sess *sessions.Session, role game.Role, command string, args json.RawMessage) (*game.DiffBundle, error) {
	if sess.Status != sessions.StatusActive || sess.State == nil {
		return nil, fmt.Errorf("session %s is not active: %w", sess.ID, game.ErrInvalidState)
	}

	// The broadcast is enqueued by the commit callback, inside the same
	// per-session region as the commit itself: a later mutation cannot slip
	// its diffs into a participant's delivery log ahead of this one's, so
	// each stream replays in history order.
	var bundle *game.DiffBundle
	delivered := false
	_, err := sess.State.Apply(func(cur rules.State) (rules.State, game.HistoryEntry, error) {
		next, err := d.engine.Apply(ctx, cur, role, command, args)
		if err != nil {
			return nil, game.HistoryEntry{}, err
		}
		b, err := d.proj.Diff(cur, next)
		if err != nil {
			return nil, game.HistoryEntry{}, fmt.Errorf("projection diff: %w", err)
		}
		bundle = b
		return next, b.Entry, nil
	}, func(entry game.HistoryEntry) {
		bundle.Entry = entry

		// Resolve the roster as of after the commit. If the session was
		// removed while the mutation was in flight, nothing is broadcast.
		cur, ok := d.reg.Get(sess.ID)
		if !ok {
			d.log.InfoContext(ctx, "dispatch.pipeline.session_gone",
				slog.String("session_id", sess.ID))
			return
		}
		d.broadcast(ctx, cur, game.EventDiff, bundle)
		delivered = true
	})
	if err != nil {
		d.log.ErrorContext(ctx, "dispatch.pipeline.apply_fail",
			slog.String("session_id", sess.ID),
			slog.String("role", string(role)),
			slog.String("command", command),
			slog.String("err", err.Error()))
		return nil, fmt.Errorf("apply %s: %w", command, game.ErrMutationFailed)
	}

	if delivered {
		d.touch(sess.ID)
	}
	return bundle, nil
}

// touch advances the session's last-activity timestamp. Best-effort; a
// session deleted in between is fine.
func (d *Dispatcher) touch(sessionID string) {
	_, _ = d.reg.Upsert(sessionID, func(cur *sessions.Session) (*sessions.Session, error) {
		if cur == nil {
			return nil, nil
		}
		return cur.WithActivity(d.now()), nil
	})
}
