package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var cacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "policy_decision_cache_operations_total",
	Help: "Policy decision cache lookups by outcome.",
}, []string{"outcome"})

// Cache wraps an Engine with a short-TTL Redis-backed decision cache keyed
// by the input's fingerprint. There is no additional in-process cache: a
// decision lives only as long as the key's TTL, never across process
// restarts and never longer than the configured ceiling.
type Cache struct {
	engine Engine
	client *redis.Client
	ttl    time.Duration
}

func NewCache(engine Engine, client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{engine: engine, client: client, ttl: ttl}
}

func (c *Cache) Evaluate(ctx context.Context, in Input) (Decision, error) {
	key := fmt.Sprintf("opa:%s", Fingerprint(in))

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var decision Decision
		if err := json.Unmarshal(raw, &decision); err == nil {
			cacheOps.WithLabelValues("hit").Inc()
			return decision, nil
		}
	}

	decision, err := c.engine.Evaluate(ctx, in)
	if err != nil {
		cacheOps.WithLabelValues("error").Inc()
		return Decision{}, err
	}
	cacheOps.WithLabelValues("miss").Inc()

	if raw, err := json.Marshal(decision); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}

	return decision, nil
}
