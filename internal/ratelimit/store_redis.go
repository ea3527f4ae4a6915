package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var redisOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ratelimit_redis_operations_total",
	Help: "Redis rate limiter checks by outcome.",
}, []string{"outcome"})

// RedisStore implements the fixed window cap with INCR+EXPIRE: the first
// request in a window sets the TTL, every subsequent request in the same
// window just increments. Because Key already encodes the window boundary,
// a stale EXPIRE from a slow request can only shorten, never extend, the
// window's lifetime.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return Result{}, err
		}
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return Result{}, err
	}
	resetAt := time.Now().Add(ttl)

	allowed := int(count) <= limit
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	redisOps.WithLabelValues(outcome).Inc()

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{Allowed: allowed, Limit: limit, Remaining: remaining, ResetAt: resetAt}, nil
}
