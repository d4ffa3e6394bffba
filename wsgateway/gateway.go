// Package wsgateway adapts the session core to a websocket transport. Each
// connection binds one participant identity: inbound frames are decoded and
// dispatched, outbound events are consumed from the participant's delivery
// stream and written to the socket. Reconnecting clients pass the last event
// id they saw and resume where they left off.
package wsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	gameserver "github.com/duelgate/game-server-go"
	"github.com/duelgate/game-server-go/game"
)

const (
	defaultWriteTimeout = 10 * time.Second
	pingInterval        = 30 * time.Second
)

// Frame wraps one outbound delivery with its event id so clients can resume.
type Frame struct {
	EventID string          `json:"eventId"`
	Message json.RawMessage `json:"message"`
}

// Gateway is an http.Handler that upgrades connections and bridges them to
// the server.
type Gateway struct {
	srv          *gameserver.Server
	log          *slog.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// WithWriteTimeout bounds each socket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.writeTimeout = d
		}
	}
}

// WithCheckOrigin overrides the upgrader's origin policy.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(g *Gateway) { g.upgrader.CheckOrigin = fn }
}

func New(srv *gameserver.Server, opts ...Option) *Gateway {
	g := &Gateway{
		srv:          srv,
		log:          slog.Default(),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// ServeHTTP upgrades the connection and pumps frames both ways until either
// side closes. Identity comes from the transport: the participant query
// parameter (or a fresh id), plus a display name.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pid := q.Get("participant")
	if pid == "" {
		pid = uuid.NewString()
	}
	sender := game.Identity{ID: pid, Name: q.Get("name")}
	lastEventID := q.Get("lastEventId")

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("wsgateway.upgrade_fail", slog.String("err", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.writePump(ctx, cancel, conn, pid, lastEventID)
	g.readPump(ctx, conn, sender)
}

// writePump consumes the participant's delivery stream and writes each event
// to the socket, interleaving pings. A write failure drops the connection.
func (g *Gateway) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, pid, lastEventID string) {
	defer cancel()

	pings := time.NewTicker(pingInterval)
	defer pings.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pings.C:
				_ = conn.SetWriteDeadline(time.Now().Add(g.writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	err := g.srv.Host().Subscribe(ctx, pid, lastEventID, func(ctx context.Context, eventID string, data []byte) error {
		frame, err := json.Marshal(Frame{EventID: eventID, Message: data})
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(g.writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, frame)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		g.log.Warn("wsgateway.subscribe_end",
			slog.String("participant_id", pid),
			slog.String("err", err.Error()))
	}
}

// readPump decodes inbound frames and dispatches them. When the socket
// closes it synthesizes connection-close so the roster reflects the drop.
func (g *Gateway) readPump(ctx context.Context, conn *websocket.Conn, sender game.Identity) {
	defer func() {
		_ = conn.Close()
		// Roster cleanup must outlive the request context.
		closeCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer done()
		_ = g.srv.Handle(closeCtx, sender, &game.ClientMessage{Type: game.MessageConnectionClose})
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// Dispatch errors are already reported to the sender as EventError
		// deliveries; nothing more to do here.
		if err := g.srv.HandleRaw(ctx, sender, data); err != nil {
			g.log.Debug("wsgateway.dispatch_fail",
				slog.String("participant_id", sender.ID),
				slog.String("err", err.Error()))
		}
	}
}
