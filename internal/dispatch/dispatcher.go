// Package dispatch is the session core's control plane: it resolves inbound
// messages to sessions, runs the mutation pipeline, drives roster lifecycle,
// and fans results out through the delivery host. One Dispatcher serves every
// session; per-session serialization lives in sessions.StateContainer and the
// registry's compare-and-swap updates, so unrelated sessions never contend.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/duelgate/game-server-go/game"
	"github.com/duelgate/game-server-go/internal/logctx"
	"github.com/duelgate/game-server-go/lobby"
	"github.com/duelgate/game-server-go/rules"
	"github.com/duelgate/game-server-go/sessions"
)

type handlerFunc func(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error

// Dispatcher routes the message catalog through a static handler table.
type Dispatcher struct {
	reg     *sessions.Registry
	engine  rules.Engine
	proj    rules.Projection
	host    sessions.DeliveryHost
	stats   lobby.StatsRecorder
	listing lobby.Publisher
	log     *slog.Logger
	now     func() time.Time
	newID   func() string

	handlers map[game.MessageType]handlerFunc
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithStats sets the stats recorder notified on session start.
func WithStats(s lobby.StatsRecorder) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.stats = s
		}
	}
}

// WithListing sets the public listing publisher.
func WithListing(p lobby.Publisher) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.listing = p
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(d *Dispatcher) {
		if gen != nil {
			d.newID = gen
		}
	}
}

func New(reg *sessions.Registry, engine rules.Engine, proj rules.Projection, host sessions.DeliveryHost, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:     reg,
		engine:  engine,
		proj:    proj,
		host:    host,
		stats:   nopLobby{},
		listing: nopLobby{},
		log:     slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.handlers = map[game.MessageType]handlerFunc{
		game.MessageStart:           d.handleStart,
		game.MessageLeave:           d.handleLeave,
		game.MessageRejoin:          d.handleRejoin,
		game.MessageConcede:         d.handleConcede,
		game.MessageAction:          d.handleAction,
		game.MessageResync:          d.handleResync,
		game.MessageWatch:           d.handleWatch,
		game.MessageMuteSpectators:  d.handleMuteSpectators,
		game.MessageSay:             d.handleSay,
		game.MessageTyping:          d.handleTyping,
		game.MessageConnectionClose: d.handleConnectionClose,
	}
	return d
}

// Handle applies one inbound message. On failure the sender — and only the
// sender — receives an EventError delivery with the taxonomy code; other
// participants observe nothing.
func (d *Dispatcher) Handle(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	start := d.now()
	if msg == nil || !msg.Type.IsValid() {
		return fmt.Errorf("unknown message type: %w", game.ErrInvalidState)
	}

	ctx = logctx.WithMessageData(ctx, &logctx.MessageData{
		Type:          string(msg.Type),
		ParticipantID: sender.ID,
	})
	log := d.log.With(slog.String("type", string(msg.Type)))

	err := d.handlers[msg.Type](ctx, sender, msg)
	if err != nil {
		log.InfoContext(ctx, "dispatch.handle_message.fail",
			slog.String("err", err.Error()),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		d.reportError(ctx, sender.ID, msg.SessionID, err)
		return err
	}

	log.InfoContext(ctx, "dispatch.handle_message.ok",
		slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return nil
}

// reportError delivers an opaque taxonomy error to the originator. Raw
// internal detail never crosses this boundary.
func (d *Dispatcher) reportError(ctx context.Context, pid, sessionID string, err error) {
	info := game.ErrorInfo{Code: "internal", Message: "internal error"}
	for _, sentinel := range []struct {
		err  error
		code string
	}{
		{game.ErrPermissionDenied, "permission_denied"},
		{game.ErrNotFound, "not_found"},
		{game.ErrInvalidState, "invalid_state"},
		{game.ErrAuthFailure, "auth_failure"},
		{game.ErrMutationFailed, "mutation_failed"},
	} {
		if errors.Is(err, sentinel.err) {
			info = game.ErrorInfo{Code: sentinel.code, Message: sentinel.err.Error()}
			break
		}
	}
	payload, merr := json.Marshal(info)
	if merr != nil {
		return
	}
	d.deliverTo(ctx, pid, &game.ServerEvent{Event: game.EventError, SessionID: sessionID, Payload: payload})
}

// resolve loads the session named by the message, falling back to the
// participant index when no id is given, and stamps the session onto the
// context so records logged downstream carry it.
func (d *Dispatcher) resolve(ctx context.Context, pid string, msg *game.ClientMessage) (context.Context, *sessions.Session, error) {
	var (
		s  *sessions.Session
		ok bool
	)
	if msg.SessionID != "" {
		if s, ok = d.reg.Get(msg.SessionID); !ok {
			return ctx, nil, fmt.Errorf("session %s: %w", msg.SessionID, game.ErrNotFound)
		}
	} else {
		if s, ok = d.reg.FindByParticipant(pid); !ok {
			return ctx, nil, fmt.Errorf("participant %s has no session: %w", pid, game.ErrNotFound)
		}
	}
	return d.withSessionData(ctx, s), s, nil
}

func (d *Dispatcher) withSessionData(ctx context.Context, s *sessions.Session) context.Context {
	return logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: s.ID, Status: string(s.Status)})
}

// nopLobby satisfies the lobby contracts when no collaborator is wired.
type nopLobby struct{}

func (nopLobby) PublishListing(context.Context, lobby.Summary) error { return nil }
func (nopLobby) RetractListing(context.Context, string) error        { return nil }
func (nopLobby) SessionStarted(context.Context, lobby.Summary) error { return nil }

func (d *Dispatcher) refreshListing(ctx context.Context, sessionID string) {
	s, ok := d.reg.Get(sessionID)
	if !ok {
		if err := d.listing.RetractListing(ctx, sessionID); err != nil {
			d.log.WarnContext(ctx, "dispatch.listing.retract_fail", slog.String("err", err.Error()))
		}
		return
	}
	if err := d.listing.PublishListing(ctx, lobby.Summarize(s)); err != nil {
		d.log.WarnContext(ctx, "dispatch.listing.publish_fail", slog.String("err", err.Error()))
	}
}
