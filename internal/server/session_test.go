package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionStateProgression(t *testing.T) {
	h := newTestHub(t)
	client := newClient(nil, h.cfg, "test:c1", testLogger())
	s, err := h.startSession("c1", client, "alice")
	require.NoError(t, err)
	require.Equal(t, stateConnecting, s.state)

	s.dispatch([]byte(`{"type":"join_user"}`))
	require.Equal(t, stateAuthenticated, s.state)
	require.Equal(t, "alice", s.conn.UserID())
	require.True(t, s.conn.InRoom(UserRoom("alice")))

	s.dispatch([]byte(`{"type":"join_conversation","conversationId":"42"}`))
	require.Equal(t, stateActive, s.state)
	require.True(t, s.conn.InRoom(ConversationRoom("42")))
}

func TestJoinUserRejectsIdentityMismatch(t *testing.T) {
	h := newTestHub(t)
	client := newClient(nil, h.cfg, "test:c1", testLogger())
	s, err := h.startSession("c1", client, "alice")
	require.NoError(t, err)

	s.dispatch([]byte(`{"type":"join_user","userId":"mallory"}`))
	ev := nextEvent(t, s)
	require.Equal(t, EventError, ev.Type)
	require.Empty(t, s.conn.UserID())
	require.Equal(t, stateConnecting, s.state)
}

func TestEventsBeforeAuthenticationAreRejected(t *testing.T) {
	h := newTestHub(t)
	client := newClient(nil, h.cfg, "test:c1", testLogger())
	s, err := h.startSession("c1", client, "alice")
	require.NoError(t, err)

	s.dispatch([]byte(`{"type":"send_message","conversationId":"42","content":"hi"}`))
	require.Equal(t, EventError, nextEvent(t, s).Type)

	s.dispatch([]byte(`{"type":"join_conversation","conversationId":"42"}`))
	require.Equal(t, EventError, nextEvent(t, s).Type)
	require.False(t, s.conn.InRoom(ConversationRoom("42")))
}

func TestDispatchRejectsMalformedFrames(t *testing.T) {
	h := newTestHub(t)
	s := startTestSession(t, h, "c1", "alice")
	drainEvents(s)

	s.dispatch([]byte(`not json`))
	require.Equal(t, EventError, nextEvent(t, s).Type)

	s.dispatch([]byte(`{"type":"launch_missiles"}`))
	require.Equal(t, EventError, nextEvent(t, s).Type)
}

func TestSendMessageRequiresMembership(t *testing.T) {
	h := newTestHub(t)
	s := startTestSession(t, h, "c1", "alice")
	drainEvents(s)

	s.dispatch([]byte(`{"type":"send_message","conversationId":"42","content":"hi"}`))
	ev := nextEvent(t, s)
	require.Equal(t, EventError, ev.Type)
	require.Contains(t, ev.Error, "join the conversation")
}

func TestSendMessageContentLimit(t *testing.T) {
	h := newTestHub(t)
	h.cfg.MaxContentLength = 5
	s := startTestSession(t, h, "c1", "alice")
	s.dispatch([]byte(`{"type":"join_conversation","conversationId":"42"}`))
	drainEvents(s)

	s.dispatch([]byte(`{"type":"send_message","conversationId":"42","content":"far too long"}`))
	ev := nextEvent(t, s)
	require.Equal(t, EventError, ev.Type)
	require.Contains(t, ev.Error, "too long")
}

func TestDisconnectRemovesFromAllRooms(t *testing.T) {
	h := newTestHub(t)
	a := startTestSession(t, h, "a", "alice")
	b := startTestSession(t, h, "b", "bob")
	for _, conv := range []string{"1", "2", "3"} {
		a.dispatch([]byte(`{"type":"join_conversation","conversationId":"` + conv + `"}`))
		b.dispatch([]byte(`{"type":"join_conversation","conversationId":"` + conv + `"}`))
	}

	a.close()

	require.Equal(t, 1, h.Registry().Len())
	for _, conv := range []string{"1", "2", "3"} {
		room := ConversationRoom(conv)
		require.ElementsMatch(t, []string{"b"}, h.Rooms().Members(room))
		// A broadcast after removal never reaches the closed connection.
		drainEvents(a)
		h.Rooms().Broadcast(room, []byte(`{"type":"x"}`), "")
		require.Empty(t, drainEvents(a))
	}
	// alice's personal room is gone with its only member.
	require.Empty(t, h.Rooms().Members(UserRoom("alice")))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	a := startTestSession(t, h, "a", "alice")
	a.dispatch([]byte(`{"type":"join_conversation","conversationId":"42"}`))

	a.close()
	registered := h.Registry().Len()
	rooms := h.Rooms().RoomCount()

	// Both the network-error path and the explicit close can fire; the
	// second run must change nothing.
	a.close()
	require.Equal(t, registered, h.Registry().Len())
	require.Equal(t, rooms, h.Rooms().RoomCount())
	require.Equal(t, stateDisconnected, a.state)
}

func TestDisconnectCancelsTypingSignals(t *testing.T) {
	h := newTestHub(t)
	h.typing = NewTypingTracker(h.rooms, time.Minute, testLogger())
	a := startTestSession(t, h, "a", "alice")
	b := startTestSession(t, h, "b", "bob")
	a.dispatch([]byte(`{"type":"join_conversation","conversationId":"42"}`))
	b.dispatch([]byte(`{"type":"join_conversation","conversationId":"42"}`))
	drainEvents(b)

	a.dispatch([]byte(`{"type":"typing","conversationId":"42"}`))
	require.True(t, h.Typing().Active(ConversationRoom("42"), "alice"))
	require.Equal(t, EventTypingStarted, nextEvent(t, b).Type)

	a.close()
	require.False(t, h.Typing().Active(ConversationRoom("42"), "alice"))
	require.Equal(t, EventTypingStopped, nextEvent(t, b).Type)
}

func TestTypingOutsideJoinedRoomIsIgnored(t *testing.T) {
	h := newTestHub(t)
	s := startTestSession(t, h, "c1", "alice")
	drainEvents(s)

	s.dispatch([]byte(`{"type":"typing","conversationId":"42"}`))
	require.False(t, h.Typing().Active(ConversationRoom("42"), "alice"))
	require.Empty(t, drainEvents(s))
}
