package state

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

// MemoryBackend keeps chat states in process memory. Used by tests
// and single-node setups without postgres.
type MemoryBackend struct {
	mu     sync.RWMutex
	states map[int64]*domain.ChatState
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		states: make(map[int64]*domain.ChatState),
	}
}

func (b *MemoryBackend) Load(_ context.Context, chatID int64) (*domain.ChatState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st, ok := b.states[chatID]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (b *MemoryBackend) Save(_ context.Context, st *domain.ChatState, expected int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var current int64
	if existing, ok := b.states[st.ChatID]; ok {
		current = existing.Version
	}
	if current != expected {
		return errors.NewVersionConflict(st.ChatID, expected)
	}

	b.states[st.ChatID] = st.Clone()
	return nil
}

func (b *MemoryBackend) Chats(_ context.Context) ([]int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	chatIDs := make([]int64, 0, len(b.states))
	for chatID := range b.states {
		chatIDs = append(chatIDs, chatID)
	}
	slices.Sort(chatIDs)
	return chatIDs, nil
}

type dedupEntry struct {
	key string
	at  time.Time
}

// MemoryDedup is the in-process dedup index. Entries expire by age
// and each chat keeps at most maxPerChat of them.
type MemoryDedup struct {
	mu         sync.Mutex
	entries    map[int64][]dedupEntry
	window     time.Duration
	maxPerChat int
}

func NewMemoryDedup(window time.Duration, maxPerChat int) *MemoryDedup {
	return &MemoryDedup{
		entries:    make(map[int64][]dedupEntry),
		window:     window,
		maxPerChat: maxPerChat,
	}
}

func (d *MemoryDedup) Seen(_ context.Context, chatID int64, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-d.window)
	for _, e := range d.entries[chatID] {
		if e.key == key && e.at.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (d *MemoryDedup) Record(_ context.Context, chatID int64, key string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-d.window)
	kept := d.entries[chatID][:0]
	for _, e := range d.entries[chatID] {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	kept = append(kept, dedupEntry{key: key, at: at})

	if over := len(kept) - d.maxPerChat; over > 0 {
		kept = kept[over:]
	}
	d.entries[chatID] = kept
	return nil
}
