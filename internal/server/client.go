package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait      = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeDeadline = 10 * time.Second
)

// Client wraps one WebSocket connection. Outbound delivery goes through a
// buffered channel with a non-blocking send, so a recipient that stops
// reading drops frames instead of stalling broadcasters.
type Client struct {
	conn *websocket.Conn
	addr string
	log  *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool

	limiter        *rateLimiter
	maxMessageSize int64
}

func newClient(conn *websocket.Conn, cfg Config, addr string, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		conn:           conn,
		addr:           addr,
		log:            log,
		send:           make(chan []byte, cfg.SendBuffer),
		limiter:        newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefill),
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// enqueue queues a payload for delivery. It reports false when the client is
// closed or its buffer is full; either way the caller moves on to the next
// recipient (best-effort fan-out).
func (c *Client) enqueue(payload []byte) bool {
	if payload == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close marks the client closed and releases the write pump. Safe to call
// more than once.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("closing connection", "addr", c.addr, "error", err)
		}
	}
}

// readPump feeds every inbound frame to handle until the transport fails or
// the peer disconnects, then invokes onClose exactly once from this side.
func (c *Client) readPump(handle func([]byte), onClose func()) {
	defer onClose()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("setting read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.limiter.allow() {
			c.log.Warn("rate limit exceeded, dropping frame", "addr", c.addr)
			continue
		}
		handle(raw)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("frame exceeded maximum size", "addr", c.addr, "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug("client disconnected", "addr", c.addr, "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug("connection closed", "addr", c.addr, "error", err)
	default:
		c.log.Warn("read error", "addr", c.addr, "error", err)
	}
}

// writePump drains the outbound queue, one WebSocket frame per payload, and
// keeps the connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("closing connection in write pump", "addr", c.addr, "error", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if !ok {
				// Queue closed: say goodbye properly.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug("write failed", "addr", c.addr, "error", err)
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// isExpectedCloseError reports whether an error is part of a normal
// connection teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
