// Package store is the persistence collaborator: a BadgerDB-backed record
// of chat messages and posts. The realtime core hands it messages before
// fan-out; clients page through history here after reconnecting.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// Message is one stored chat message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
}

// Post is one stored feed post. Flag starts empty and is set by the
// moderation pipeline after classification.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	Flag      string    `json:"flag,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store wraps a Badger database.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens (or creates) the database at path. An empty path opens an
// in-memory database, which tests use.
func Open(path string, log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", path, err)
	}
	return &Store{db: db, log: log}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// messageKey builds "msg:<conversation>:<padded-nanos>:<id>". The 19-digit
// zero padding makes lexicographic order chronological; the id breaks ties
// between messages stored in the same nanosecond.
func messageKey(conversationID string, sentAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationID, sentAt.UnixNano(), id))
}

func messagePrefix(conversationID string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

// SaveMessage persists one chat message. The signature matches what the
// relay consumes, so the Store plugs straight in as its MessageStore.
func (s *Store) SaveMessage(ctx context.Context, id, conversationID, senderID, content string, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         sentAt,
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(conversationID, sentAt, id), value)
	})
}

// ConversationMessages pages through a conversation newest-first. cursor is
// the opaque continuation token from the previous page; nil starts from the
// most recent message. The returned cursor is nil once the conversation is
// exhausted.
func (s *Store) ConversationMessages(ctx context.Context, conversationID string, cursor *string, limit int) ([]Message, *string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	prefix := messagePrefix(conversationID)
	var messages []Message
	var lastKey string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		var seekKey []byte
		if cursor == nil {
			// Past any possible timestamp, so the first step back lands on
			// the newest message.
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		} else {
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			// The cursor names the last message already delivered.
			it.Next()
		}

		for ; it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			err := item.Value(func(value []byte) error {
				var msg Message
				if err := json.Unmarshal(value, &msg); err != nil {
					return fmt.Errorf("decoding message %s: %w", item.Key(), err)
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if len(messages) < limit {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

func postKey(id string) []byte {
	return []byte("post:" + id)
}

// SavePost persists a post record.
func (s *Store) SavePost(ctx context.Context, post Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("encoding post: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(postKey(post.ID), value)
	})
}

// Post loads one post by id.
func (s *Store) Post(ctx context.Context, id string) (Post, error) {
	if err := ctx.Err(); err != nil {
		return Post{}, err
	}
	var post Post
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(postKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &post)
		})
	})
	return post, err
}

// SetPostFlag stores the moderation classification on an existing post.
func (s *Store) SetPostFlag(ctx context.Context, id, flag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(postKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var post Post
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &post)
		}); err != nil {
			return err
		}
		post.Flag = flag
		value, err := json.Marshal(post)
		if err != nil {
			return err
		}
		return txn.Set(postKey(id), value)
	})
}
