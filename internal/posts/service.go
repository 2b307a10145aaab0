// Package posts saves feed posts and runs their moderation out of band.
// Classification never blocks the save: the post lands first, the flag is
// set whenever the verdict arrives.
package posts

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pawbook/pawbook-server/internal/moderation"
	"github.com/pawbook/pawbook-server/internal/store"
)

// Store is the slice of the persistence collaborator the post service uses.
type Store interface {
	SavePost(ctx context.Context, post store.Post) error
	SetPostFlag(ctx context.Context, id, flag string) error
}

// Service persists posts and flags them asynchronously.
type Service struct {
	store      Store
	classifier moderation.Classifier
	timeout    time.Duration
	log        *slog.Logger
	wg         sync.WaitGroup
}

func NewService(store Store, classifier moderation.Classifier, log *slog.Logger) *Service {
	return &Service{
		store:      store,
		classifier: classifier,
		timeout:    15 * time.Second,
		log:        log,
	}
}

// Create saves the post and kicks off classification in the background. The
// returned post still has an empty flag; readers see the verdict once the
// classifier lands it.
func (s *Service) Create(ctx context.Context, authorID, content string) (store.Post, error) {
	post := store.Post{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Content:   strings.TrimSpace(content),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SavePost(ctx, post); err != nil {
		return store.Post{}, err
	}

	s.wg.Add(1)
	go s.flag(post)

	return post, nil
}

// flag classifies one stored post and writes the verdict back. Failures are
// logged and dropped; moderation is fire-and-forget by contract.
func (s *Service) flag(post store.Post) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	verdict, err := s.classifier.Classify(ctx, post.Content)
	if err != nil {
		s.log.Warn("classification failed", "post", post.ID, "error", err)
		return
	}
	if err := s.store.SetPostFlag(ctx, post.ID, string(verdict)); err != nil {
		s.log.Warn("storing moderation flag", "post", post.ID, "error", err)
		return
	}
	if verdict != moderation.Safe {
		s.log.Info("post flagged", "post", post.ID, "flag", verdict)
	}
}

// Wait blocks until in-flight classifications finish. Called on shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}
