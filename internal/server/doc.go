// Package server implements the realtime messaging core of the Pawbook
// social app: a websocket hub that organizes connections into per-user and
// per-conversation rooms, relays chat messages with per-user notification
// fan-out, and tracks short-lived typing signals.
//
// The implementation is split by concern: the connection registry, the room
// multiplexer, the typing tracker, the message relay, and the per-connection
// session lifecycle each live in their own file, with the HTTP surface and
// configuration alongside.
package server
