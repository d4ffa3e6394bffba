// Package wire decodes and validates the client message envelope used by
// transports. It enforces the closed message catalog and the per-type
// required fields before anything reaches the dispatcher.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/duelgate/game-server-go/game"
)

// DecodeClientMessage parses one inbound frame and validates its structure.
func DecodeClientMessage(data []byte) (*game.ClientMessage, error) {
	var msg game.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if !msg.Type.IsValid() {
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}

	// rejoin and connection-close resolve the session from the participant
	// index; everything else must name one.
	switch msg.Type {
	case game.MessageRejoin, game.MessageConnectionClose:
	default:
		if msg.SessionID == "" {
			return nil, fmt.Errorf("%s message requires sessionId", msg.Type)
		}
	}

	switch msg.Type {
	case game.MessageAction:
		if msg.Command == "" {
			return nil, fmt.Errorf("action message requires command")
		}
	case game.MessageSay:
		if msg.Text == "" {
			return nil, fmt.Errorf("say message requires text")
		}
	}

	return &msg, nil
}

// EncodeServerEvent marshals an outbound envelope for delivery.
func EncodeServerEvent(ev *game.ServerEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal server event: %w", err)
	}
	return data, nil
}
