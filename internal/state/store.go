package state

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

// Backend persists chat states. Save is a compare-and-set: it commits
// only when the stored version still equals expected and reports a
// VERSION_CONFLICT otherwise. An expected version of zero means the
// chat has no row yet.
type Backend interface {
	Load(ctx context.Context, chatID int64) (*domain.ChatState, error)
	Save(ctx context.Context, st *domain.ChatState, expected int64) error
	Chats(ctx context.Context) ([]int64, error)
}

// DedupIndex remembers recently applied idempotency keys per chat.
// Entries age out; a bounded window is all re-delivery protection
// needs.
type DedupIndex interface {
	Seen(ctx context.Context, chatID int64, key string) (bool, error)
	Record(ctx context.Context, chatID int64, key string, at time.Time) error
}

// MutateFunc applies one logical change to a working copy of the
// state. Returning an error aborts the mutation; nothing is
// committed.
type MutateFunc = func(st *domain.ChatState) error

// Store serializes chat state access behind optimistic versioning.
// Reads return isolated snapshots. Mutations commit atomically and
// bump the version by exactly one.
type Store struct {
	backend Backend
	dedup   DedupIndex
	logger  *zap.Logger
}

func NewStore(backend Backend, dedup DedupIndex, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		dedup:   dedup,
		logger:  logger,
	}
}

// Read returns a snapshot of the chat state. Chats never seen before
// read as an empty state at version zero.
func (s *Store) Read(ctx context.Context, chatID int64) (*domain.ChatState, error) {
	st, err := s.backend.Load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return domain.NewChatState(chatID), nil
	}
	return st, nil
}

// Mutate applies fn to a working copy and commits it at version
// expected+1. A non-empty opKey makes the call idempotent: keys that
// already committed short-circuit to the current state unchanged.
func (s *Store) Mutate(ctx context.Context, chatID, expected int64, opKey string, fn MutateFunc) (*domain.ChatState, error) {
	if opKey != "" {
		seen, err := s.dedup.Seen(ctx, chatID, opKey)
		if err != nil {
			// Fail open: a broken index must not freeze moderation.
			s.logger.Warn("Dedup lookup failed",
				zap.Int64("chat_id", chatID),
				zap.String("op_key", opKey),
				zap.Error(err),
			)
		} else if seen {
			s.logger.Debug("Mutation short-circuited by dedup",
				zap.Int64("chat_id", chatID),
				zap.String("op_key", opKey),
			)
			return s.Read(ctx, chatID)
		}
	}

	current, err := s.Read(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if current.Version != expected {
		return nil, errors.NewVersionConflict(chatID, expected)
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	working.ChatID = chatID
	working.Version = expected + 1

	if err := s.backend.Save(ctx, working, expected); err != nil {
		return nil, err
	}

	if opKey != "" {
		if err := s.dedup.Record(ctx, chatID, opKey, time.Now()); err != nil {
			s.logger.Warn("Dedup record failed",
				zap.Int64("chat_id", chatID),
				zap.String("op_key", opKey),
				zap.Error(err),
			)
		}
	}

	return working, nil
}

// EventSeen reports whether a platform message id already completed a
// full dispatch. Index errors read as unseen.
func (s *Store) EventSeen(ctx context.Context, chatID, messageID int64) bool {
	seen, err := s.dedup.Seen(ctx, chatID, eventKey(messageID))
	if err != nil {
		s.logger.Warn("Event dedup lookup failed",
			zap.Int64("chat_id", chatID),
			zap.Int64("message_id", messageID),
			zap.Error(err),
		)
		return false
	}
	return seen
}

// MarkEventSeen records a fully dispatched platform message id.
func (s *Store) MarkEventSeen(ctx context.Context, chatID, messageID int64) {
	if err := s.dedup.Record(ctx, chatID, eventKey(messageID), time.Now()); err != nil {
		s.logger.Warn("Event dedup record failed",
			zap.Int64("chat_id", chatID),
			zap.Int64("message_id", messageID),
			zap.Error(err),
		)
	}
}

// Chats lists every chat with persisted state.
func (s *Store) Chats(ctx context.Context) ([]int64, error) {
	return s.backend.Chats(ctx)
}

func eventKey(messageID int64) string {
	return fmt.Sprintf("evt:%d", messageID)
}

// OpKey builds the idempotency key for one mutation step of one
// handler. The step counter keeps repeated Mutate calls within a
// single handler distinct while re-delivered events replay the same
// keys.
func OpKey(messageID int64, handler string, step int) string {
	return fmt.Sprintf("op:%d:%s:%d", messageID, handler, step)
}
