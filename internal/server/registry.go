package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Connection is the registry's view of one live transport connection. It is
// created on accept, owned exclusively by the Registry, and destroyed on
// transport close.
type Connection struct {
	ID     string
	client *Client

	mu         sync.Mutex
	userID     string
	rooms      map[string]struct{}
	lastActive time.Time
}

// UserID returns the bound user identity, or "" before authentication.
func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Rooms returns a snapshot of the joined room identifiers.
func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Keys(c.rooms)
}

// InRoom reports whether the connection has joined the given room.
func (c *Connection) InRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// LastActive returns the last time an inbound event touched this connection.
func (c *Connection) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

func (c *Connection) addRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) removeRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// Registry is the table of live connections. It owns Connection entries; the
// room multiplexer only references them.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		log:   log,
	}
}

// Register creates an entry with no user identity and no room memberships.
// A second registration for the same id fails with ErrDuplicateConnection.
func (r *Registry) Register(id string, client *Client) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[id]; exists {
		return nil, ErrDuplicateConnection
	}
	conn := &Connection{
		ID:         id,
		client:     client,
		rooms:      make(map[string]struct{}),
		lastActive: time.Now(),
	}
	r.conns[id] = conn
	r.log.Debug("connection registered", "conn", id, "total", len(r.conns))
	return conn, nil
}

// BindUser attaches the authenticated identity to a registered connection.
func (r *Registry) BindUser(id, userID string) (*Connection, error) {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownConnection
	}
	conn.mu.Lock()
	conn.userID = userID
	conn.mu.Unlock()
	return conn, nil
}

// Get looks up a connection by id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Unregister removes the connection and hands back the rooms it was a member
// of so the caller can cascade the cleanup. Unregistering an unknown id is a
// no-op returning nil; disconnect handling has to be idempotent.
func (r *Registry) Unregister(id string) (*Connection, []string) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return nil, nil
	}
	delete(r.conns, id)
	total := len(r.conns)
	r.mu.Unlock()

	r.log.Debug("connection unregistered", "conn", id, "total", total)
	return conn, conn.Rooms()
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
