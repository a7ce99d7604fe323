package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lkrent/lkrent-server/pkg/config"
	"github.com/lkrent/lkrent-server/pkg/logger"
)

func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// Limiter provides volatile counters and cooldown locks backed by Redis.
// All checks fail open: if Redis is unreachable the request is allowed.
type Limiter struct {
	rdb *redis.Client
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// Allow increments the counter for key and reports whether it is still within
// limit for the current window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		logger.WarnContext(ctx, "Rate limit check failed, allowing request", "error", err, "key", key)
		return true, nil
	}
	if count == 1 {
		l.rdb.Expire(ctx, key, window)
	}
	return count <= int64(limit), nil
}

// Cooldown acquires a cooldown lock for key. It returns false while a prior
// lock is still live.
func (l *Limiter) Cooldown(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	ok, err := l.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		logger.WarnContext(ctx, "Cooldown check failed, allowing request", "error", err, "key", key)
		return true, nil
	}
	return ok, nil
}

// Store adapts Redis to the idempotency middleware's store contract.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}
