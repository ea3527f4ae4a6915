// Package replay detects reused request nonces: the first use of a nonce
// claims a key with SETNX, every later use of the same nonce finds the key
// already held and reports a replay.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var checks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "replay_guard_checks_total",
	Help: "Anti-replay checks by outcome.",
}, []string{"outcome"})

// Guard is the anti-replay nonce store.
type Guard struct {
	client *redis.Client
}

func NewGuard(client *redis.Client) *Guard {
	return &Guard{client: client}
}

// CheckAndRecord reports fresh=true and claims the nonce for ttl the first
// time it is seen; any later call with the same nonce within ttl reports
// fresh=false without error.
func (g *Guard) CheckAndRecord(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("anti-replay:%s", hashNonce(nonce))

	ok, err := g.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, err
	}

	outcome := "fresh"
	if !ok {
		outcome = "replayed"
	}
	checks.WithLabelValues(outcome).Inc()

	return ok, nil
}

func hashNonce(nonce string) string {
	sum := sha256.Sum256([]byte(nonce))
	return hex.EncodeToString(sum[:])
}
