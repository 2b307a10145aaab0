package server

import "errors"

// Errors shared by the registry, room, and relay layers. Each is scoped to a
// single connection or a single delivery attempt; none of them should ever
// take down the process.
var (
	// ErrDuplicateConnection is returned when a connection id is registered
	// twice. It indicates a transport-layer bug and is fatal to that
	// connection's setup only.
	ErrDuplicateConnection = errors.New("connection already registered")

	// ErrUnknownConnection is returned when an operation references a
	// connection the registry does not know about. Callers treat it as
	// already-disconnected.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrNotAMember is returned when a connection tries to relay into a
	// conversation it never joined.
	ErrNotAMember = errors.New("not a member of the conversation")

	// ErrNotAuthenticated is returned when a connection sends events before
	// binding its user identity.
	ErrNotAuthenticated = errors.New("connection is not authenticated")

	// ErrHubClosed is returned when a session is started against a hub that
	// is shutting down.
	ErrHubClosed = errors.New("hub is shut down")
)
