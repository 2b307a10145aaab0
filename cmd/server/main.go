package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pawbook/pawbook-server/internal/auth"
	"github.com/pawbook/pawbook-server/internal/moderation"
	"github.com/pawbook/pawbook-server/internal/posts"
	"github.com/pawbook/pawbook-server/internal/server"
	"github.com/pawbook/pawbook-server/internal/store"
)

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg server.Config, log *slog.Logger) error {
	db, err := store.Open(cfg.BadgerPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("closing store", "error", err)
		}
	}()

	verifier := auth.NewVerifier([]byte(cfg.JWTSecret))

	fallback, err := moderation.NewWordlistClassifier(moderation.DefaultWordlists())
	if err != nil {
		return err
	}
	classifier := moderation.NewClient(cfg.ModerationURL, fallback, log)
	postService := posts.NewService(db, classifier, log)

	hub := server.NewHub(cfg, db, log)
	srv := server.NewServer(cfg, hub, verifier, postService, db, log)
	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Port)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn("hub shutdown incomplete", "error", err)
	}
	postService.Wait()
	return nil
}
