package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CreateServer builds an HTTP server with production timeouts. The read
// timeout applies to the initial request only; upgraded websocket
// connections manage their own deadlines.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

// ShutdownServer drains the HTTP server, waiting up to timeout for active
// requests to finish.
func ShutdownServer(server *http.Server, timeout time.Duration, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("http server shutdown", "error", err)
		return err
	}
	log.Info("http server shutdown complete")
	return nil
}
