package state

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

func newTestStore() *Store {
	return NewStore(NewMemoryBackend(), NewMemoryDedup(time.Hour, 128), zap.NewNop())
}

func TestReadUnknownChatReturnsEmptyState(t *testing.T) {
	store := newTestStore()

	st, err := store.Read(context.Background(), 42)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if st.Version != 0 {
		t.Fatalf("expected version 0, got %d", st.Version)
	}
	if len(st.Warnings) != 0 {
		t.Fatalf("expected empty warnings, got %v", st.Warnings)
	}
	if st.ChatID != 42 {
		t.Fatalf("expected chat id 42, got %d", st.ChatID)
	}
}

func TestMutateCommitsAndBumpsVersion(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	st, err := store.Mutate(ctx, 42, 0, "op:1:warn:0", func(st *domain.ChatState) error {
		st.Warnings[7]++
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if st.Version != 1 {
		t.Fatalf("expected version 1, got %d", st.Version)
	}
	if st.Warnings[7] != 1 {
		t.Fatalf("expected warnings[7]=1, got %d", st.Warnings[7])
	}

	reread, err := store.Read(ctx, 42)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if reread.Version != 1 || reread.Warnings[7] != 1 {
		t.Fatalf("committed state not visible: version=%d warnings=%v", reread.Version, reread.Warnings)
	}
}

func TestMutateStaleVersionConflicts(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.Mutate(ctx, 42, 0, "", func(st *domain.ChatState) error {
		st.Warnings[7] = 1
		return nil
	}); err != nil {
		t.Fatalf("seed mutate failed: %v", err)
	}

	_, err := store.Mutate(ctx, 42, 0, "", func(st *domain.ChatState) error {
		st.Warnings[7] = 99
		return nil
	})
	if !errors.HasCode(err, errors.CodeVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	st, err := store.Read(ctx, 42)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if st.Warnings[7] != 1 {
		t.Fatalf("conflicting mutation leaked: warnings=%v", st.Warnings)
	}
}

func TestMutateFnErrorCommitsNothing(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	wantErr := errors.New(errors.CodeValidation, "bad input")
	_, err := store.Mutate(ctx, 42, 0, "op:1:warn:0", func(st *domain.ChatState) error {
		st.Warnings[7] = 5
		return wantErr
	})
	if err == nil {
		t.Fatal("expected error from Mutate")
	}

	st, err := store.Read(ctx, 42)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if st.Version != 0 || len(st.Warnings) != 0 {
		t.Fatalf("aborted mutation leaked: version=%d warnings=%v", st.Version, st.Warnings)
	}

	// The failed op key must not count as applied.
	st, err = store.Mutate(ctx, 42, 0, "op:1:warn:0", func(st *domain.ChatState) error {
		st.Warnings[7] = 1
		return nil
	})
	if err != nil {
		t.Fatalf("retry after failed fn rejected: %v", err)
	}
	if st.Warnings[7] != 1 {
		t.Fatalf("expected warnings[7]=1 after retry, got %d", st.Warnings[7])
	}
}

func TestMutateDuplicateOpKeyShortCircuits(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	calls := 0
	apply := func(st *domain.ChatState) error {
		calls++
		st.Warnings[7]++
		return nil
	}

	first, err := store.Mutate(ctx, 42, 0, "op:9:warn:0", apply)
	if err != nil {
		t.Fatalf("first Mutate failed: %v", err)
	}
	if first.Version != 1 || first.Warnings[7] != 1 {
		t.Fatalf("unexpected first commit: version=%d warnings=%v", first.Version, first.Warnings)
	}

	second, err := store.Mutate(ctx, 42, 0, "op:9:warn:0", apply)
	if err != nil {
		t.Fatalf("duplicate Mutate failed: %v", err)
	}
	if second.Version != 1 || second.Warnings[7] != 1 {
		t.Fatalf("duplicate op changed state: version=%d warnings=%v", second.Version, second.Warnings)
	}
	if calls != 1 {
		t.Fatalf("mutate fn ran %d times, want 1", calls)
	}
}

func TestReadReturnsIsolatedSnapshot(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.Mutate(ctx, 42, 0, "", func(st *domain.ChatState) error {
		st.Notes["rules"] = "be kind"
		return nil
	}); err != nil {
		t.Fatalf("seed mutate failed: %v", err)
	}

	snap, err := store.Read(ctx, 42)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	snap.Notes["rules"] = "vandalized"
	snap.Warnings[1] = 100

	fresh, err := store.Read(ctx, 42)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if fresh.Notes["rules"] != "be kind" || len(fresh.Warnings) != 0 {
		t.Fatalf("snapshot mutation leaked into store: %v %v", fresh.Notes, fresh.Warnings)
	}
}

func TestEventSeenRoundTrip(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if store.EventSeen(ctx, 42, 1001) {
		t.Fatal("fresh message id reported as seen")
	}

	store.MarkEventSeen(ctx, 42, 1001)

	if !store.EventSeen(ctx, 42, 1001) {
		t.Fatal("marked message id not reported as seen")
	}
	if store.EventSeen(ctx, 43, 1001) {
		t.Fatal("message id leaked across chats")
	}
}

func TestChatsListsPersistedChats(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	for _, chatID := range []int64{5, 3, 9} {
		if _, err := store.Mutate(ctx, chatID, 0, "", func(st *domain.ChatState) error {
			st.Warnings[1] = 1
			return nil
		}); err != nil {
			t.Fatalf("seed mutate failed for chat %d: %v", chatID, err)
		}
	}

	chats, err := store.Chats(ctx)
	if err != nil {
		t.Fatalf("Chats failed: %v", err)
	}
	if len(chats) != 3 {
		t.Fatalf("expected 3 chats, got %v", chats)
	}
	if chats[0] != 3 || chats[1] != 5 || chats[2] != 9 {
		t.Fatalf("unexpected chat order: %v", chats)
	}
}
