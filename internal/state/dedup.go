package state

import (
	"context"
	"fmt"
	"time"

	"github.com/kavik/groupwarden-go/internal/service/cache"
)

// RedisDedup keeps applied idempotency keys in one sorted set per
// chat, scored by apply time. Pruning happens on write: first by age,
// then by rank so a single chat cannot grow without bound.
type RedisDedup struct {
	cache      *cache.CacheService
	window     time.Duration
	maxPerChat int64
}

func NewRedisDedup(cacheService *cache.CacheService, window time.Duration, maxPerChat int64) *RedisDedup {
	return &RedisDedup{
		cache:      cacheService,
		window:     window,
		maxPerChat: maxPerChat,
	}
}

func (d *RedisDedup) Seen(ctx context.Context, chatID int64, key string) (bool, error) {
	score, ok, err := d.cache.ZScore(ctx, dedupKey(chatID), key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	appliedAt := time.Unix(int64(score), 0)
	if time.Since(appliedAt) > d.window {
		return false, nil
	}
	return true, nil
}

func (d *RedisDedup) Record(ctx context.Context, chatID int64, key string, at time.Time) error {
	rkey := dedupKey(chatID)

	if err := d.cache.ZAdd(ctx, rkey, key, float64(at.Unix())); err != nil {
		return err
	}

	cutoff := at.Add(-d.window).Unix()
	if err := d.cache.ZRemRangeByScore(ctx, rkey, "-inf", fmt.Sprintf("%d", cutoff)); err != nil {
		return err
	}
	if err := d.cache.ZRemRangeByRank(ctx, rkey, 0, -(d.maxPerChat + 1)); err != nil {
		return err
	}

	// The whole set may vanish once the chat goes quiet.
	return d.cache.Expire(ctx, rkey, d.window)
}

func dedupKey(chatID int64) string {
	return fmt.Sprintf("dedup:%d", chatID)
}
