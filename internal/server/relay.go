package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MessageStore is the slice of the persistence collaborator the relay
// needs. Persistence happens before the fan-out so the stored record and
// the delivered one share the same server-assigned timestamp.
type MessageStore interface {
	SaveMessage(ctx context.Context, id, conversationID, senderID, content string, sentAt time.Time) error
}

// Relay validates and fans out inbound chat messages: membership check,
// persist, fan out to the conversation room, then notify each participant's
// personal room.
type Relay struct {
	mux     *Multiplexer
	store   MessageStore
	timeout time.Duration
	log     *slog.Logger
}

// NewRelay builds a relay. store may be nil, in which case messages are
// fan-out only (useful in tests; production always wires the store).
func NewRelay(mux *Multiplexer, store MessageStore, persistTimeout time.Duration, log *slog.Logger) *Relay {
	return &Relay{
		mux:     mux,
		store:   store,
		timeout: persistTimeout,
		log:     log,
	}
}

// Relay accepts one inbound chat message from conn. It fails with
// ErrNotAMember when the sender never joined the conversation room; no
// broadcast happens in that case. On success it returns the relayed message
// and the number of conversation-room recipients reached, the sender's own
// echo included (multi-device sync: every open tab sees the message).
func (r *Relay) Relay(ctx context.Context, conn *Connection, conversationID, content string) (RelayedMessage, int, error) {
	roomID := ConversationRoom(conversationID)
	if !conn.InRoom(roomID) {
		return RelayedMessage{}, 0, ErrNotAMember
	}

	senderID := conn.UserID()
	msg := RelayedMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         time.Now().UTC(),
	}

	if r.store != nil {
		persistCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if err := r.store.SaveMessage(persistCtx, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.SentAt); err != nil {
			return RelayedMessage{}, 0, fmt.Errorf("persisting message: %w", err)
		}
	}

	payload := encodeOutbound(OutboundEvent{
		Type:           EventMessageDelivered,
		ConversationID: conversationID,
		Message:        &msg,
	})
	reached := r.mux.Broadcast(roomID, payload, "")

	r.notifyParticipants(roomID, conversationID, senderID)

	r.log.Debug("message relayed",
		"conversation", conversationID, "sender", senderID, "recipients", reached)
	return msg, reached, nil
}

// notifyParticipants drops a lightweight alert into the personal room of
// every distinct user in the conversation except the sender. Participants
// watching another conversation still learn something arrived; anything
// missed entirely is recovered from the durable store on next fetch.
func (r *Relay) notifyParticipants(roomID, conversationID, senderID string) {
	users := lo.Without(r.mux.MemberUsers(roomID), senderID)
	for _, userID := range users {
		payload := encodeOutbound(OutboundEvent{
			Type:           EventNotification,
			ConversationID: conversationID,
			UserID:         userID,
			Summary:        "new message from " + senderID,
		})
		r.mux.Broadcast(UserRoom(userID), payload, "")
	}
}
