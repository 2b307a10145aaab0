package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub is the lifetime-scoped service object behind the websocket endpoint.
// It owns the connection registry, the room multiplexer, the typing tracker,
// and the relay; it is constructed once at process start and passed by
// handle to the HTTP layer, never kept as an ambient singleton.
type Hub struct {
	cfg      Config
	log      *slog.Logger
	registry *Registry
	rooms    *Multiplexer
	typing   *TypingTracker
	relay    *Relay

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// NewHub wires the core components around the given persistence
// collaborator. store may be nil in tests.
func NewHub(cfg Config, store MessageStore, log *slog.Logger) *Hub {
	registry := NewRegistry(log)
	rooms := NewMultiplexer(log)
	return &Hub{
		cfg:      cfg,
		log:      log,
		registry: registry,
		rooms:    rooms,
		typing:   NewTypingTracker(rooms, cfg.TypingTTL, log),
		relay:    NewRelay(rooms, store, cfg.PersistTimeout, log),
		sessions: make(map[string]*session),
	}
}

// Registry exposes the connection registry for diagnostics and tests.
func (h *Hub) Registry() *Registry { return h.registry }

// Rooms exposes the room multiplexer for diagnostics and tests.
func (h *Hub) Rooms() *Multiplexer { return h.rooms }

// Typing exposes the typing tracker for diagnostics and tests.
func (h *Hub) Typing() *TypingTracker { return h.typing }

// startSession registers an upgraded connection and launches its pumps.
// authUser is the identity the authentication collaborator yielded for the
// connection's credentials. Tests drive sessions through the same path with
// a transport-free client.
func (h *Hub) startSession(id string, client *Client, authUser string) (*session, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		client.close()
		return nil, ErrHubClosed
	}
	h.mu.Unlock()

	conn, err := h.registry.Register(id, client)
	if err != nil {
		client.close()
		return nil, err
	}

	s := &session{
		id:       id,
		client:   client,
		conn:     conn,
		hub:      h,
		authUser: authUser,
		log:      h.log,
		state:    stateConnecting,
	}

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump(s.dispatch, s.close)
		}()
	}
	return s, nil
}

func (h *Hub) dropSession(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every live session and waits for the pump goroutines to
// drain, or gives up when the timeout expires.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.closed = true
	open := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	h.log.Info("shutting down hub", "sessions", len(open))
	for _, s := range open {
		s.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
