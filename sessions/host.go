package sessions

import (
	"context"
	"errors"
)

// ErrUnknownEventID is returned by Subscribe when the resume cursor does not
// name a retained event.
var ErrUnknownEventID = errors.New("last event id not found")

// MessageHandlerFunc handles ordered events for one participant's stream. If
// the handler returns an error, the subscription terminates with that error.
type MessageHandlerFunc func(ctx context.Context, eventID string, data []byte) error

// DeliveryHost abstracts how encoded server events reach participants. Each
// participant id names an ordered message log; transports subscribe with an
// optional lastEventID cursor so a reconnecting client can replay what it
// missed. Delivery is fire-and-forget from the core's perspective: a failed
// delivery to one participant never affects the others.
//
// Implementations: memoryhost (in-process) and redishost (Redis Streams,
// multi-node gateways).
type DeliveryHost interface {
	// Deliver appends an event to the participant's log and returns its id.
	Deliver(ctx context.Context, participantID string, data []byte) (eventID string, err error)

	// Subscribe consumes the participant's log, resuming after lastEventID
	// when non-empty and from the start of the retained log otherwise, and
	// blocks until ctx ends, the log is cleaned up, or the handler errs.
	Subscribe(ctx context.Context, participantID string, lastEventID string, handler MessageHandlerFunc) error

	// Cleanup releases the participant's log and wakes any subscriber.
	Cleanup(ctx context.Context, participantID string) error
}
