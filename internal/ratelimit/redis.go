package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces limiter counters in Redis.
const KeyPrefix = "fastcab:ratelimit:"

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisLimiter is a fixed-window limiter shared through Redis.
type RedisLimiter struct {
	client redis.Cmdable
	cfg    Opts
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a limiter counting in client.
func NewRedisLimiter(client redis.Cmdable, opts ...Option) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: buildOpts(opts)}
}

// Allow increments key's counter for the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.cfg.Now().UnixNano() / int64(l.cfg.Window)
	redisKey := KeyPrefix + key + ":" + strconv.FormatInt(bucket, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.cfg.Window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit counter for %s: %w", key, err)
	}
	return incr.Val() <= int64(l.cfg.Limit), nil
}
