package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/duelgate/game-server-go/game"
	"github.com/duelgate/game-server-go/sessions"
)

// Announce injects a server-origin notification into every currently active
// session's state. It commits with no role; a session whose engine rejects
// the announcement is logged and skipped, the rest still receive it. Returns
// the number of sessions the announcement reached.
func (d *Dispatcher) Announce(ctx context.Context, text string) int {
	args, err := json.Marshal(text)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatch.announce.encode_fail", slog.String("err", err.Error()))
		return 0
	}

	reached := 0
	for _, s := range d.reg.List() {
		if s.Status != sessions.StatusActive {
			continue
		}
		if _, err := d.applyAndBroadcast(ctx, s, game.RoleNone, "announce", args); err != nil {
			d.log.WarnContext(ctx, "dispatch.announce.apply_fail",
				slog.String("session_id", s.ID),
				slog.String("err", err.Error()))
			continue
		}
		reached++
	}
	return reached
}
