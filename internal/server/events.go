package server

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// Inbound event tags.
const (
	EventJoinUser         = "join_user"
	EventJoinConversation = "join_conversation"
	EventSendMessage      = "send_message"
	EventTyping           = "typing"
)

// Outbound event tags.
const (
	EventMessageDelivered = "message_delivered"
	EventTypingStarted    = "typing_started"
	EventTypingStopped    = "typing_stopped"
	EventNotification     = "notification"
	EventError            = "error"
)

// InboundEvent is the envelope every client frame decodes into. Which fields
// are required depends on the tag; the dispatch switch enforces that.
type InboundEvent struct {
	Type           string `json:"type" validate:"required,oneof=join_user join_conversation send_message typing"`
	UserID         string `json:"userId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Content        string `json:"content,omitempty"`
}

// RelayedMessage is the pass-through chat payload. The id and timestamp are
// assigned server-side; durable storage belongs to the persistence layer.
type RelayedMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
}

// OutboundEvent is the envelope for every server-to-client frame.
type OutboundEvent struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	Message        *RelayedMessage `json:"message,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Error          string          `json:"error,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeInbound parses and validates a raw client frame.
func decodeInbound(raw []byte) (InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return InboundEvent{}, err
	}
	if err := validate.Struct(ev); err != nil {
		return InboundEvent{}, err
	}
	return ev, nil
}

// encodeOutbound marshals a server frame. Marshalling these structs cannot
// fail in practice, so the error is swallowed into a nil payload the caller
// checks.
func encodeOutbound(ev OutboundEvent) []byte {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	return payload
}
