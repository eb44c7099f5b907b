package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:ip:"

// RedisStore implements Store with a fixed window counter in Redis.
// This is the recommended implementation when multiple instances
// serve traffic behind one load balancer.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	redisKey := redisKeyPrefix + key

	// INCR and EXPIRE run in one pipeline so the counter always
	// carries a TTL even if the first request races.
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit check for %q: %w", key, err)
	}

	count := int(incr.Val())
	resetAt := time.Now().Add(ttl.Val())

	if count > limit {
		return &Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   resetAt,
			Limit:     limit,
		}, nil
	}

	return &Result{
		Allowed:   true,
		Remaining: limit - count,
		ResetAt:   resetAt,
		Limit:     limit,
	}, nil
}
