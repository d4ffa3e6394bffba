package game

import "errors"

var (
	// ErrPermissionDenied indicates the wrong actor for the operation, such
	// as a non-first-player start or a spectator toggling mute.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound indicates an unknown session id, or a session the
	// requester is not permitted to address.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidState indicates an operation against a session in the wrong
	// lifecycle state, or from a participant who is not seated.
	ErrInvalidState = errors.New("invalid session state")
	// ErrAuthFailure indicates a wrong spectator password.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrMutationFailed is the opaque signal reported to the originating
	// participant when the rules engine rejects a command. The underlying
	// engine error is logged server-side and never surfaced to clients.
	ErrMutationFailed = errors.New("mutation failed")
)
