package game

import "encoding/json"

// MessageType tags an inbound client message. Dispatch is a static table
// keyed by this tag; there is no dynamic method resolution.
type MessageType string

const (
	// MessageStart transitions a waiting session to active. Only the first
	// player may send it.
	MessageStart MessageType = "start"
	// MessageLeave removes the sender from their seat or the spectator set.
	MessageLeave MessageType = "leave"
	// MessageRejoin reseats a previously-seated participant into an active
	// session after a disconnect.
	MessageRejoin MessageType = "rejoin"
	// MessageConcede applies the engine's forced-loss command for the sender.
	MessageConcede MessageType = "concede"
	// MessageAction applies an arbitrary role-scoped engine command.
	MessageAction MessageType = "action"
	// MessageResync delivers the sender's current full view without mutating
	// anything or broadcasting to anyone else.
	MessageResync MessageType = "resync"
	// MessageWatch adds the sender as a spectator, subject to the session's
	// spectator password when one is set.
	MessageWatch MessageType = "watch"
	// MessageMuteSpectators toggles whether spectator chat is accepted.
	MessageMuteSpectators MessageType = "mute-spectators"
	// MessageSay applies a chat mutation.
	MessageSay MessageType = "say"
	// MessageTyping is ephemeral: pushed to the other seated players, never
	// persisted, never part of a diff.
	MessageTyping MessageType = "typing"
	// MessageConnectionClose is synthesized by the transport when a
	// connection drops. It is equivalent to leave.
	MessageConnectionClose MessageType = "connection-close"
)

// IsValid reports whether the message type is part of the catalog.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageStart, MessageLeave, MessageRejoin, MessageConcede,
		MessageAction, MessageResync, MessageWatch, MessageMuteSpectators,
		MessageSay, MessageTyping, MessageConnectionClose:
		return true
	default:
		return false
	}
}

// ClientMessage is one inbound message after envelope decoding. The sender's
// participant identity is resolved by the transport and carried separately.
type ClientMessage struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Command   string          `json:"command,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Text      string          `json:"text,omitempty"`
	Password  string          `json:"password,omitempty"`
	Typing    bool            `json:"typing,omitempty"`
}

// EventKind tags an outbound delivery.
type EventKind string

const (
	// EventDiff carries the role-scoped payload of one applied mutation.
	EventDiff EventKind = "diff"
	// EventFullState carries a role-scoped full snapshot (start, resync,
	// joiner catch-up).
	EventFullState EventKind = "full-state"
	// EventNotification carries roster and lifecycle notices.
	EventNotification EventKind = "notification"
	// EventTyping carries the transient typing indicator.
	EventTyping EventKind = "typing"
	// EventError reports a failure to the originating participant only.
	EventError EventKind = "error"
)

// ServerEvent is the envelope written to the delivery host for a single
// participant. Payload is already role-scoped by the time it is encoded.
type ServerEvent struct {
	Event     EventKind       `json:"event"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Notification is the payload of EventNotification deliveries: roster and
// lifecycle notices visible to every role.
type Notification struct {
	Kind          string `json:"kind"`
	Text          string `json:"text,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`
}

// TypingIndicator is the payload of EventTyping deliveries. It never touches
// state or history.
type TypingIndicator struct {
	ParticipantID string `json:"participantId"`
	Typing        bool   `json:"typing"`
}

// ErrorInfo is the payload of EventError deliveries. Message is always one of
// the taxonomy sentinels' text; internal detail stays in the server log.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
