package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
)

const (
	defaultMaxAttempts = 5
	defaultWindow      = 15 * time.Minute
	defaultPrefix      = "schoolauth:login:"
)

// Failed login attempts limiter
type Limiter interface {
	// Return apperrors.ErrRateLimited if key has no attempts left
	Check(ctx context.Context, key string) error

	// Count failed attempt
	Fail(ctx context.Context, key string) error

	// Forget failed attempts, called after successful login
	Reset(ctx context.Context, key string) error
}

type Config struct {
	// Failed attempts allowed per window
	MaxAttempts int64

	// Window starts at the first failed attempt
	Window time.Duration

	// Redis key prefix
	Prefix string
}

// Fixed window limiter storing counters in redis
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    Config
}

func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}

	return &RedisLimiter{client: client, cfg: cfg}
}

func (l *RedisLimiter) Check(ctx context.Context, key string) error {
	count, err := l.client.Get(ctx, l.cfg.Prefix+key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("%w: redis error: %w", apperrors.ErrServiceUnavailable, err)
	case count >= l.cfg.MaxAttempts:
		return apperrors.ErrRateLimited
	default:
		return nil
	}
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	key = l.cfg.Prefix + key

	// Fixed window: NX keeps the TTL set by the first hit.
	// Both commands go in one MULTI so a counter never stays without TTL
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.cfg.Window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis error: %w", apperrors.ErrServiceUnavailable, err)
	}

	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.cfg.Prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: redis error: %w", apperrors.ErrServiceUnavailable, err)
	}
	return nil
}

// Limiter that never limits. Used when redis is not configured
type Noop struct{}

func (Noop) Check(context.Context, string) error { return nil }
func (Noop) Fail(context.Context, string) error  { return nil }
func (Noop) Reset(context.Context, string) error { return nil }
