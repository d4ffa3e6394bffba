// Package gameserver is the real-time session-synchronization core of a
// two-player hidden-information card game. It keeps authoritative session
// state, serializes mutations per session without blocking unrelated ones,
// and fans role-scoped projections out to every connected participant
// through a sessions.DeliveryHost.
//
// The game rules themselves are collaborators: wire a rules.Engine and
// rules.Projection at construction. Transports sit on the other side of the
// delivery host; wsgateway provides a websocket one.
package gameserver

import (
	"context"
	"log/slog"

	"github.com/duelgate/game-server-go/game"
	"github.com/duelgate/game-server-go/internal/dispatch"
	"github.com/duelgate/game-server-go/internal/logctx"
	"github.com/duelgate/game-server-go/internal/wire"
	"github.com/duelgate/game-server-go/lobby"
	"github.com/duelgate/game-server-go/rules"
	"github.com/duelgate/game-server-go/sessions"
)

// Server wires the registry, dispatcher, and delivery host together.
type Server struct {
	reg  *sessions.Registry
	host sessions.DeliveryHost
	disp *dispatch.Dispatcher
	log  *slog.Logger
}

// Option configures a Server.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	stats   lobby.StatsRecorder
	listing lobby.Publisher
}

// WithLogger sets the logger. Its handler is wrapped so records emitted
// during dispatch carry session and message context.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithStats wires the stats recorder notified on session start.
func WithStats(s lobby.StatsRecorder) Option {
	return func(c *config) { c.stats = s }
}

// WithListing wires the public listing publisher refreshed after every
// roster change.
func WithListing(p lobby.Publisher) Option {
	return func(c *config) { c.listing = p }
}

// New constructs a Server around the given rules collaborators and delivery
// host.
func New(engine rules.Engine, proj rules.Projection, host sessions.DeliveryHost, opts ...Option) *Server {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	log := slog.New(logctx.Handler{Handler: cfg.logger.Handler()})

	reg := sessions.NewRegistry()
	dopts := []dispatch.Option{dispatch.WithLogger(log)}
	if cfg.stats != nil {
		dopts = append(dopts, dispatch.WithStats(cfg.stats))
	}
	if cfg.listing != nil {
		dopts = append(dopts, dispatch.WithListing(cfg.listing))
	}

	return &Server{
		reg:  reg,
		host: host,
		disp: dispatch.New(reg, engine, proj, host, dopts...),
		log:  log,
	}
}

// CreateSession registers a new waiting session with the creator seated as
// first player.
func (s *Server) CreateSession(ctx context.Context, creator game.Identity, title, spectatorPassword string) (*sessions.Session, error) {
	return s.disp.CreateSession(ctx, creator, title, spectatorPassword)
}

// Join seats a participant into a waiting session.
func (s *Server) Join(ctx context.Context, joiner game.Identity, sessionID string) (*sessions.Session, error) {
	return s.disp.Join(ctx, joiner, sessionID)
}

// Handle dispatches one decoded client message.
func (s *Server) Handle(ctx context.Context, sender game.Identity, msg *game.ClientMessage) error {
	return s.disp.Handle(ctx, sender, msg)
}

// HandleRaw decodes one wire frame and dispatches it. Transports call this
// per inbound frame.
func (s *Server) HandleRaw(ctx context.Context, sender game.Identity, data []byte) error {
	msg, err := wire.DecodeClientMessage(data)
	if err != nil {
		return err
	}
	return s.Handle(ctx, sender, msg)
}

// Announce injects a server-origin notification into every active session
// and returns how many sessions it reached.
func (s *Server) Announce(ctx context.Context, text string) int {
	return s.disp.Announce(ctx, text)
}

// Registry exposes the session registry for read-side surfaces (listings,
// diagnostics).
func (s *Server) Registry() *sessions.Registry { return s.reg }

// Host exposes the delivery host transports subscribe through.
func (s *Server) Host() sessions.DeliveryHost { return s.host }
