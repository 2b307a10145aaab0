package server

import (
	"log/slog"
	"sync"
	"time"
)

// typingSignal is one active (room, user) indicator together with the timer
// that will retire it. The timer handle is stored so a refresh can cancel
// and replace it instead of leaving stale callbacks behind.
type typingSignal struct {
	timer     *time.Timer
	expiresAt time.Time
}

// TypingTracker enforces at most one live signal per (room, user) pair and
// broadcasts typing_started / typing_stopped events through the multiplexer.
// A signal lives for a fixed TTL; absence of renewal is the stop signal,
// clients never send an explicit stop.
//
// Policy: typing_started is broadcast on every call, not once per window.
// A refresh that re-announces "still typing" is harmless and the client-side
// debounce already limits call frequency.
type TypingTracker struct {
	mux *Multiplexer
	ttl time.Duration
	log *slog.Logger

	mu      sync.Mutex
	signals map[string]map[string]*typingSignal // room id -> user id -> signal
}

func NewTypingTracker(mux *Multiplexer, ttl time.Duration, log *slog.Logger) *TypingTracker {
	return &TypingTracker{
		mux:     mux,
		ttl:     ttl,
		log:     log,
		signals: make(map[string]map[string]*typingSignal),
	}
}

// MarkTyping installs or refreshes the signal for (roomID, userID) and
// broadcasts typing_started to the room, excluding every connection of the
// originating user.
func (t *TypingTracker) MarkTyping(roomID, userID string) {
	t.mu.Lock()
	byUser, ok := t.signals[roomID]
	if !ok {
		byUser = make(map[string]*typingSignal)
		t.signals[roomID] = byUser
	}
	if prev, ok := byUser[userID]; ok {
		// Refresh replaces the pending expiry, never stacks a second one.
		prev.timer.Stop()
	}
	sig := &typingSignal{expiresAt: time.Now().Add(t.ttl)}
	sig.timer = time.AfterFunc(t.ttl, func() {
		t.expire(roomID, userID, sig)
	})
	byUser[userID] = sig
	t.mu.Unlock()

	payload := encodeOutbound(OutboundEvent{
		Type:           EventTypingStarted,
		ConversationID: conversationOf(roomID),
		UserID:         userID,
	})
	t.mux.BroadcastExcludingUser(roomID, payload, userID)
}

// expire runs on the signal's timer. It removes the signal only if it is
// still the current one for the pair, then announces the stop.
func (t *TypingTracker) expire(roomID, userID string, sig *typingSignal) {
	t.mu.Lock()
	byUser, ok := t.signals[roomID]
	if !ok || byUser[userID] != sig {
		t.mu.Unlock()
		return
	}
	delete(byUser, userID)
	if len(byUser) == 0 {
		delete(t.signals, roomID)
	}
	t.mu.Unlock()

	payload := encodeOutbound(OutboundEvent{
		Type:           EventTypingStopped,
		ConversationID: conversationOf(roomID),
		UserID:         userID,
	})
	t.mux.BroadcastExcludingUser(roomID, payload, userID)
}

// Cancel drops the signal for (roomID, userID) if one is live. The stop
// event is still broadcast so other members do not keep a stale indicator.
func (t *TypingTracker) Cancel(roomID, userID string) {
	t.mu.Lock()
	byUser, ok := t.signals[roomID]
	if !ok {
		t.mu.Unlock()
		return
	}
	sig, ok := byUser[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	sig.timer.Stop()
	delete(byUser, userID)
	if len(byUser) == 0 {
		delete(t.signals, roomID)
	}
	t.mu.Unlock()

	payload := encodeOutbound(OutboundEvent{
		Type:           EventTypingStopped,
		ConversationID: conversationOf(roomID),
		UserID:         userID,
	})
	t.mux.BroadcastExcludingUser(roomID, payload, userID)
}

// CancelUser cancels any outstanding signals the user owns in the given
// rooms. Invoked from the disconnect path.
func (t *TypingTracker) CancelUser(userID string, rooms []string) {
	for _, roomID := range rooms {
		t.Cancel(roomID, userID)
	}
}

// Active reports whether an unexpired signal exists for the pair.
func (t *TypingTracker) Active(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	sig, ok := t.signals[roomID][userID]
	return ok && time.Now().Before(sig.expiresAt)
}

// conversationOf strips the room prefix back to the conversation id for the
// wire event; user rooms pass through unchanged.
func conversationOf(roomID string) string {
	const prefix = "conversation:"
	if len(roomID) > len(prefix) && roomID[:len(prefix)] == prefix {
		return roomID[len(prefix):]
	}
	return roomID
}
