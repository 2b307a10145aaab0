package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// capturingStore records every persisted message and can be told to fail.
type capturingStore struct {
	mu    sync.Mutex
	saved []RelayedMessage
	fail  error
}

func (c *capturingStore) SaveMessage(_ context.Context, id, conversationID, senderID, content string, sentAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.saved = append(c.saved, RelayedMessage{
		ID: id, ConversationID: conversationID, SenderID: senderID, Content: content, SentAt: sentAt,
	})
	return nil
}

func TestRelayRejectsNonMember(t *testing.T) {
	h := newTestHub(t)
	a := startTestSession(t, h, "a", "alice")
	b := startTestSession(t, h, "b", "bob")
	b.handleJoinConversation(InboundEvent{Type: EventJoinConversation, ConversationID: "42"})
	drainEvents(a)
	drainEvents(b)

	// alice never joined conversation 42.
	_, reached, err := h.relay.Relay(context.Background(), a.conn, "42", "hi")
	require.ErrorIs(t, err, ErrNotAMember)
	require.Equal(t, 0, reached)
	require.Empty(t, drainEvents(b))
}

func TestRelayDeliversWithSelfEcho(t *testing.T) {
	h := newTestHub(t)
	a := startTestSession(t, h, "a", "alice")
	b := startTestSession(t, h, "b", "bob")
	a.handleJoinConversation(InboundEvent{Type: EventJoinConversation, ConversationID: "42"})
	b.handleJoinConversation(InboundEvent{Type: EventJoinConversation, ConversationID: "42"})
	drainEvents(a)
	drainEvents(b)

	msg, reached, err := h.relay.Relay(context.Background(), a.conn, "42", "hi")
	require.NoError(t, err)
	require.Equal(t, 2, reached)

	got := nextEvent(t, b)
	require.Equal(t, EventMessageDelivered, got.Type)
	require.Equal(t, "42", got.ConversationID)
	require.Equal(t, "alice", got.Message.SenderID)
	require.Equal(t, "hi", got.Message.Content)
	require.Equal(t, msg.ID, got.Message.ID)

	// Self-echo: the sender's own connection receives the message too.
	echo := nextEvent(t, a)
	require.Equal(t, EventMessageDelivered, echo.Type)
	require.Equal(t, msg.ID, echo.Message.ID)

	// bob's personal room gets the out-of-band notification.
	bobEvents := drainEvents(b)
	require.Len(t, bobEvents, 1)
	require.Equal(t, EventNotification, bobEvents[0].Type)
	require.Equal(t, "42", bobEvents[0].ConversationID)

	// The sender gets no notification about their own message.
	require.Empty(t, drainEvents(a))
}

func TestRelayAfterPeerDisconnect(t *testing.T) {
	h := newTestHub(t)
	a := startTestSession(t, h, "a", "alice")
	b := startTestSession(t, h, "b", "bob")
	a.handleJoinConversation(InboundEvent{Type: EventJoinConversation, ConversationID: "42"})
	b.handleJoinConversation(InboundEvent{Type: EventJoinConversation, ConversationID: "42"})

	b.close()
	drainEvents(a)

	_, reached, err := h.relay.Relay(context.Background(), a.conn, "42", "bye")
	require.NoError(t, err)
	// Nobody left besides the sender's own echo.
	require.Equal(t, 1, reached)
}

func TestRelayPersistsBeforeFanOut(t *testing.T) {
	h := newTestHub(t)
	captured := &capturingStore{}
	h.relay = NewRelay(h.rooms, captured, time.Second, testLogger())

	a := startTestSession(t, h, "a", "alice")
	a.handleJoinConversation(InboundEvent{Type: EventJoinConversation, ConversationID: "42"})
	drainEvents(a)

	msg, _, err := h.relay.Relay(context.Background(), a.conn, "42", "hello")
	require.NoError(t, err)
	require.Len(t, captured.saved, 1)
	// Stored record and delivered message share id and timestamp.
	require.Equal(t, msg, captured.saved[0])
}

func TestRelayStoreFailureBlocksDelivery(t *testing.T) {
	h := newTestHub(t)
	h.relay = NewRelay(h.rooms, &capturingStore{fail: errors.New("disk full")}, time.Second, testLogger())

	a := startTestSession(t, h, "a", "alice")
	b := startTestSession(t, h, "b", "bob")
	a.handleJoinConversation(InboundEvent{Type: EventJoinConversation, ConversationID: "42"})
	b.handleJoinConversation(InboundEvent{Type: EventJoinConversation, ConversationID: "42"})
	drainEvents(a)
	drainEvents(b)

	_, reached, err := h.relay.Relay(context.Background(), a.conn, "42", "hi")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotAMember)
	require.Equal(t, 0, reached)
	require.Empty(t, drainEvents(b))
}
