package server

import "net/http"

// Routes returns the application's HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("POST /api/posts", s.CreatePostHandler)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.ConversationMessagesHandler)
	return mux
}
