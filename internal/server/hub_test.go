package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TypingTTL = 50 * time.Millisecond
	return NewHub(cfg, nil, testLogger())
}

// startTestSession registers a transport-free session and authenticates it,
// the same path an upgraded connection takes.
func startTestSession(t *testing.T, h *Hub, id, user string) *session {
	t.Helper()
	client := newClient(nil, h.cfg, "test:"+id, testLogger())
	s, err := h.startSession(id, client, user)
	require.NoError(t, err)
	s.handleJoinUser(InboundEvent{Type: EventJoinUser})
	return s
}

// nextEvent pops one queued outbound frame from the session's client.
func nextEvent(t *testing.T, s *session) OutboundEvent {
	t.Helper()
	select {
	case payload, ok := <-s.client.send:
		require.True(t, ok, "send queue closed")
		var ev OutboundEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no outbound event queued")
		return OutboundEvent{}
	}
}

// drainEvents empties the session's outbound queue.
func drainEvents(s *session) []OutboundEvent {
	var events []OutboundEvent
	for {
		select {
		case payload, ok := <-s.client.send:
			if !ok {
				return events
			}
			var ev OutboundEvent
			if err := json.Unmarshal(payload, &ev); err == nil {
				events = append(events, ev)
			}
		default:
			return events
		}
	}
}

func TestStartSessionRegistersConnection(t *testing.T) {
	h := newTestHub(t)
	s := startTestSession(t, h, "c1", "alice")

	require.Equal(t, 1, h.Registry().Len())
	require.Equal(t, 1, h.SessionCount())
	require.Equal(t, "alice", s.conn.UserID())
	require.True(t, s.conn.InRoom(UserRoom("alice")))
}

func TestStartSessionDuplicateID(t *testing.T) {
	h := newTestHub(t)
	startTestSession(t, h, "c1", "alice")

	client := newClient(nil, h.cfg, "test:c1", testLogger())
	_, err := h.startSession("c1", client, "bob")
	require.ErrorIs(t, err, ErrDuplicateConnection)
	// Only the duplicate's setup failed; the original connection survived.
	require.Equal(t, 1, h.Registry().Len())
}

func TestHubShutdownClosesSessions(t *testing.T) {
	h := newTestHub(t)
	startTestSession(t, h, "c1", "alice")
	startTestSession(t, h, "c2", "bob")

	require.NoError(t, h.Shutdown(time.Second))
	require.Equal(t, 0, h.Registry().Len())
	require.Equal(t, 0, h.Rooms().RoomCount())

	client := newClient(nil, h.cfg, "test:c3", testLogger())
	_, err := h.startSession("c3", client, "carol")
	require.ErrorIs(t, err, ErrHubClosed)
}
