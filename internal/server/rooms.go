package server

import (
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// UserRoom returns the personal notification room id for a user.
func UserRoom(userID string) string {
	return "user:" + userID
}

// ConversationRoom returns the chat room id for a conversation.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// Multiplexer maintains the room id -> member connections mapping. Rooms are
// the sole addressing unit: conversation rooms carry the chat traffic,
// per-user rooms carry out-of-band notifications, and there is no direct
// connection-to-connection send. Rooms are created lazily on first join and
// deleted as soon as the last member leaves.
type Multiplexer struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Connection
	log   *slog.Logger
}

func NewMultiplexer(log *slog.Logger) *Multiplexer {
	return &Multiplexer{
		rooms: make(map[string]map[string]*Connection),
		log:   log,
	}
}

// Join adds the connection to the room and the room to the connection's
// joined set, keeping both sides consistent. No-op if already a member.
func (m *Multiplexer) Join(conn *Connection, roomID string) {
	m.mu.Lock()
	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[string]*Connection)
		m.rooms[roomID] = members
	}
	if _, already := members[conn.ID]; already {
		m.mu.Unlock()
		return
	}
	members[conn.ID] = conn
	m.mu.Unlock()

	conn.addRoom(roomID)
	m.log.Debug("joined room", "conn", conn.ID, "room", roomID)
}

// Leave removes the connection from the room; the room itself is deleted
// once its member set is empty.
func (m *Multiplexer) Leave(conn *Connection, roomID string) {
	m.mu.Lock()
	if members, ok := m.rooms[roomID]; ok {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	m.mu.Unlock()

	conn.removeRoom(roomID)
	m.log.Debug("left room", "conn", conn.ID, "room", roomID)
}

// snapshot copies the member list so delivery happens without holding the
// room lock; one slow recipient must never block membership mutations.
func (m *Multiplexer) snapshot(roomID string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Values(m.rooms[roomID])
}

// Broadcast delivers payload to every current member of the room, skipping
// the excluded connection id if one is given. Delivery is best-effort and
// non-blocking per recipient. Returns the number of recipients reached; a
// broadcast into an empty or absent room is a no-op returning 0.
func (m *Multiplexer) Broadcast(roomID string, payload []byte, exclude string) int {
	reached := 0
	for _, conn := range m.snapshot(roomID) {
		if exclude != "" && conn.ID == exclude {
			continue
		}
		if conn.client.enqueue(payload) {
			reached++
		} else {
			// Isolated per-recipient failure: the member stays in the room
			// and gets another chance on the next message.
			m.log.Debug("delivery dropped", "conn", conn.ID, "room", roomID)
		}
	}
	return reached
}

// BroadcastExcludingUser is Broadcast with the exclusion keyed by user
// identity instead of connection id, so all of the originator's devices are
// skipped. Used for typing signals.
func (m *Multiplexer) BroadcastExcludingUser(roomID string, payload []byte, userID string) int {
	reached := 0
	for _, conn := range m.snapshot(roomID) {
		if userID != "" && conn.UserID() == userID {
			continue
		}
		if conn.client.enqueue(payload) {
			reached++
		}
	}
	return reached
}

// Members returns a point-in-time snapshot of the room's member connection
// ids, for diagnostics and tests.
func (m *Multiplexer) Members(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Keys(m.rooms[roomID])
}

// MemberUsers returns the distinct bound user identities currently in the
// room. Unbound connections are not counted.
func (m *Multiplexer) MemberUsers(roomID string) []string {
	users := lo.FilterMap(m.snapshot(roomID), func(conn *Connection, _ int) (string, bool) {
		uid := conn.UserID()
		return uid, uid != ""
	})
	return lo.Uniq(users)
}

// RoomCount returns the number of live rooms.
func (m *Multiplexer) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
