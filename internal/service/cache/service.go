package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/pkg/errors"
)

// CacheService wraps the redis client used for the dedup index and
// short-lived platform lookups (admin rosters, repeated queries).
type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

type CacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func NewCacheService(cfg CacheConfig, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return &CacheService{
		client: client,
		logger: logger,
	}, nil
}

func (c *CacheService) Get(ctx context.Context, key string, dest any) error {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // Key doesn't exist - not an error
	}
	if err != nil {
		c.logger.Error("Cache get failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("get failed", "get", key, err)
	}

	if dest != nil {
		if err := json.Unmarshal([]byte(value), dest); err != nil {
			c.logger.Error("Cache unmarshal failed", zap.String("key", key), zap.Error(err))
			return errors.NewCacheError("unmarshal failed", "get", key, err)
		}
	}

	return nil
}

// Exists reports whether the key holds a live value. Get cannot tell
// a missing key from a cached empty value, so callers that care use
// this first.
func (c *CacheService) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Error("Cache exists failed", zap.String("key", key), zap.Error(err))
		return false, errors.NewCacheError("exists failed", "exists", key, err)
	}
	return count > 0, nil
}

func (c *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return errors.NewCacheError("marshal failed", "set", key, err)
	}

	if err := c.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		c.logger.Error("Cache set failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("set failed", "set", key, err)
	}

	return nil
}

func (c *CacheService) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Cache delete failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("delete failed", "del", key, err)
	}
	return nil
}

// ZAdd inserts a member with a score into a sorted set. The dedup
// index stores applied message ids this way, scored by apply time.
func (c *CacheService) ZAdd(ctx context.Context, key, member string, score float64) error {
	if err := c.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		c.logger.Error("Cache zadd failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("zadd failed", "zadd", key, err)
	}
	return nil
}

// ZScore returns the member's score and whether it exists.
func (c *CacheService) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := c.client.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		c.logger.Error("Cache zscore failed", zap.String("key", key), zap.Error(err))
		return 0, false, errors.NewCacheError("zscore failed", "zscore", key, err)
	}
	return score, true, nil
}

// ZRemRangeByScore prunes members whose score falls inside the range.
func (c *CacheService) ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	if err := c.client.ZRemRangeByScore(ctx, key, min, max).Err(); err != nil {
		c.logger.Error("Cache zremrangebyscore failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("zremrangebyscore failed", "zremrangebyscore", key, err)
	}
	return nil
}

// ZRemRangeByRank trims a sorted set to a bounded size.
func (c *CacheService) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	if err := c.client.ZRemRangeByRank(ctx, key, start, stop).Err(); err != nil {
		c.logger.Error("Cache zremrangebyrank failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("zremrangebyrank failed", "zremrangebyrank", key, err)
	}
	return nil
}

func (c *CacheService) ZCard(ctx context.Context, key string) (int64, error) {
	count, err := c.client.ZCard(ctx, key).Result()
	if err != nil {
		c.logger.Error("Cache zcard failed", zap.String("key", key), zap.Error(err))
		return 0, errors.NewCacheError("zcard failed", "zcard", key, err)
	}
	return count, nil
}

func (c *CacheService) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
		c.logger.Error("Cache expire failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("expire failed", "expire", key, err)
	}
	return nil
}

func (c *CacheService) Close() error {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection", zap.Error(err))
		return err
	}
	c.logger.Info("Redis disconnected")
	return nil
}

func (c *CacheService) IsConnected(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

func (c *CacheService) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for Redis to be ready")
		case <-ticker.C:
			if c.IsConnected(ctx) {
				return nil
			}
		}
	}
}
