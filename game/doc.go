// Package game defines the shared vocabulary of the session-synchronization
// core: participant roles, the inbound message catalog, the role-keyed diff
// bundle produced by every state mutation, and the error taxonomy surfaced to
// clients.
//
// The package is deliberately free of behavior beyond validation helpers so
// that the sessions, dispatch, and transport layers can all depend on it
// without cycles. Game rules themselves live behind the rules package
// contracts; nothing here interprets commands or card text.
package game
