package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "clustify:ratelimit:"

// counter is the subset of *redis.Client the limiter uses.
type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// Redis counts requests in a Redis key per client and window.
//
// INCR creates the key at 1 if it doesn't exist. When the result is 1 we
// are the first request of a new window and set the expiry; Redis then
// deletes the key when the window ends and the next INCR starts over.
type Redis struct {
	client counter
	limit  int
	window time.Duration
}

var _ Limiter = (*Redis)(nil)

func NewRedis(client counter, limit int, window time.Duration) *Redis {
	return &Redis{client: client, limit: limit, window: window}
}

// NewRedisClient opens a client with short timeouts; a slow Redis should
// not hold up logins.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	k := redisKeyPrefix + key

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: incr %s: %w", k, err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: expire %s: %w", k, err)
		}
	}

	if count <= int64(r.limit) {
		return Decision{Allowed: true, Remaining: r.limit - int(count)}, nil
	}

	ttl, err := r.client.TTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: ttl %s: %w", k, err)
	}
	// A key without expiry (-1) means a previous EXPIRE was lost; repair it.
	if ttl < 0 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: expire %s: %w", k, err)
		}
		ttl = r.window
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}
