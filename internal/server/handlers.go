package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pawbook/pawbook-server/internal/store"
)

// TokenVerifier is the authentication collaborator: it validates a
// credential and yields a stable user identifier. Invoked once per
// connection, before the user is bound into the registry.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// PostCreator is the slice of the post service the HTTP layer uses.
type PostCreator interface {
	Create(ctx context.Context, authorID, content string) (store.Post, error)
}

// MessageHistory reads back persisted conversation messages with cursor
// pagination.
type MessageHistory interface {
	ConversationMessages(ctx context.Context, conversationID string, cursor *string, limit int) ([]store.Message, *string, error)
}

// Server is the HTTP surface: the websocket upgrade endpoint, the health
// check, and the thin JSON handlers for posts and message history. It is
// built once in main and holds no package-level state.
type Server struct {
	cfg      Config
	hub      *Hub
	verifier TokenVerifier
	posts    PostCreator
	history  MessageHistory
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewServer(cfg Config, hub *Hub, verifier TokenVerifier, posts PostCreator, history MessageHistory, log *slog.Logger) *Server {
	origins := newOriginChecker(cfg.Origins(), log)
	return &Server{
		cfg:      cfg,
		hub:      hub,
		verifier: verifier,
		posts:    posts,
		history:  history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		log: log,
	}
}

// WebSocketHandler authenticates the request, upgrades it, and hands the
// connection to the hub. A bad token never reaches the upgrade.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "websocket endpoint only accepts GET", http.StatusMethodNotAllowed)
		return
	}

	userID, err := s.verifier.Verify(requestToken(r))
	if err != nil {
		s.log.Debug("rejected websocket credentials", "addr", r.RemoteAddr, "error", err)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	client := newClient(conn, s.cfg, r.RemoteAddr, s.log)
	if _, err := s.hub.startSession(id, client, userID); err != nil {
		// Fatal to this connection's setup only; the rest of the hub is fine.
		s.log.Error("session setup failed", "conn", id, "error", err)
	}
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

// CreatePostHandler persists a post and kicks off its asynchronous
// moderation. The author is always the authenticated user.
func (s *Server) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	authorID, err := s.verifier.Verify(requestToken(r))
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	if len(body.Content) > s.cfg.MaxContentLength {
		http.Error(w, "content too long", http.StatusBadRequest)
		return
	}

	post, err := s.posts.Create(r.Context(), authorID, body.Content)
	if err != nil {
		s.log.Error("creating post", "author", authorID, "error", err)
		http.Error(w, "could not save post", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(post)
}

// ConversationMessagesHandler pages through a conversation's stored
// history, newest first.
func (s *Server) ConversationMessagesHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.verifier.Verify(requestToken(r)); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	conversationID := r.PathValue("id")
	if conversationID == "" {
		http.Error(w, "conversation id is required", http.StatusBadRequest)
		return
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	messages, next, err := s.history.ConversationMessages(r.Context(), conversationID, cursor, limit)
	if err != nil {
		s.log.Error("fetching history", "conversation", conversationID, "error", err)
		http.Error(w, "could not fetch messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Messages   []store.Message `json:"messages"`
		NextCursor *string         `json:"nextCursor,omitempty"`
	}{Messages: messages, NextCursor: next})
}

// requestToken digs the credential out of the query string, the
// Authorization header, or a cookie, in that order. Browsers cannot set
// headers on websocket dials, so the query form stays supported.
func requestToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	}
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}
