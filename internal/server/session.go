package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Connection lifecycle states.
type sessionState int32

const (
	stateConnecting sessionState = iota
	stateAuthenticated
	stateActive
	stateDisconnected
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticated:
		return "authenticated"
	case stateActive:
		return "active"
	case stateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// session binds one transport connection to its registry entry and drives it
// through the Connecting -> Authenticated -> Active -> Disconnected states.
// The authenticated identity comes from the token validated at upgrade time;
// join_user only binds it into the registry.
type session struct {
	id       string
	client   *Client
	conn     *Connection
	hub      *Hub
	authUser string
	log      *slog.Logger

	mu    sync.Mutex
	state sessionState

	closeOnce sync.Once
}

// dispatch decodes one inbound frame and routes it. One switch, exhaustive
// over the event kinds; anything else was already rejected by validation.
func (s *session) dispatch(raw []byte) {
	ev, err := decodeInbound(raw)
	if err != nil {
		s.log.Debug("invalid frame", "conn", s.id, "error", err)
		s.sendError("invalid event")
		return
	}
	s.conn.touch()

	switch ev.Type {
	case EventJoinUser:
		s.handleJoinUser(ev)
	case EventJoinConversation:
		s.handleJoinConversation(ev)
	case EventSendMessage:
		s.handleSendMessage(ev)
	case EventTyping:
		s.handleTyping(ev)
	}
}

// handleJoinUser transitions Connecting -> Authenticated: binds the
// authenticated identity and auto-joins the personal notification room. A
// client-supplied user id that disagrees with the token is rejected.
func (s *session) handleJoinUser(ev InboundEvent) {
	if ev.UserID != "" && ev.UserID != s.authUser {
		s.log.Warn("join_user identity mismatch", "conn", s.id, "claimed", ev.UserID, "authenticated", s.authUser)
		s.sendError("user id does not match credentials")
		return
	}

	if _, err := s.hub.registry.BindUser(s.id, s.authUser); err != nil {
		// Already gone; the disconnect cascade won the race.
		s.log.Debug("bind on dead connection", "conn", s.id, "error", err)
		return
	}
	s.hub.rooms.Join(s.conn, UserRoom(s.authUser))

	s.mu.Lock()
	if s.state == stateConnecting {
		s.state = stateAuthenticated
	}
	s.mu.Unlock()
	s.log.Debug("user bound", "conn", s.id, "user", s.authUser)
}

func (s *session) handleJoinConversation(ev InboundEvent) {
	if !s.authenticated() {
		s.sendError(ErrNotAuthenticated.Error())
		return
	}
	if ev.ConversationID == "" {
		s.sendError("conversationId is required")
		return
	}
	s.hub.rooms.Join(s.conn, ConversationRoom(ev.ConversationID))

	s.mu.Lock()
	if s.state == stateAuthenticated {
		s.state = stateActive
	}
	s.mu.Unlock()
}

func (s *session) handleSendMessage(ev InboundEvent) {
	if !s.authenticated() {
		s.sendError(ErrNotAuthenticated.Error())
		return
	}
	if ev.ConversationID == "" || ev.Content == "" {
		s.sendError("conversationId and content are required")
		return
	}
	if max := s.hub.cfg.MaxContentLength; max > 0 && len(ev.Content) > max {
		s.sendError("message too long")
		return
	}

	_, _, err := s.hub.relay.Relay(context.Background(), s.conn, ev.ConversationID, ev.Content)
	switch {
	case errors.Is(err, ErrNotAMember):
		s.log.Warn("relay rejected", "conn", s.id, "conversation", ev.ConversationID, "error", err)
		s.sendError("join the conversation before sending")
	case err != nil:
		s.log.Error("relay failed", "conn", s.id, "conversation", ev.ConversationID, "error", err)
		s.sendError("message could not be delivered")
	}
}

func (s *session) handleTyping(ev InboundEvent) {
	if !s.authenticated() {
		s.sendError(ErrNotAuthenticated.Error())
		return
	}
	roomID := ConversationRoom(ev.ConversationID)
	if !s.conn.InRoom(roomID) {
		// Typing outside a joined room is silently ignored; it carries no
		// content worth an error round-trip.
		return
	}
	s.hub.typing.MarkTyping(roomID, s.authUser)
}

func (s *session) authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateAuthenticated || s.state == stateActive
}

func (s *session) sendError(msg string) {
	s.client.enqueue(encodeOutbound(OutboundEvent{Type: EventError, Error: msg}))
}

// close runs the disconnect cascade exactly once, no matter how many times
// the transport reports the close (network error plus explicit close both
// land here). Order matters: the client is sealed first so no broadcast can
// reach it after removal has logically completed.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateDisconnected
		s.mu.Unlock()

		s.client.close()

		conn, rooms := s.hub.registry.Unregister(s.id)
		if conn == nil {
			return
		}
		for _, roomID := range rooms {
			s.hub.rooms.Leave(conn, roomID)
		}
		if userID := conn.UserID(); userID != "" {
			s.hub.typing.CancelUser(userID, rooms)
		}

		s.hub.dropSession(s.id)
		s.log.Debug("session closed", "conn", s.id, "rooms", len(rooms))
	})
}
