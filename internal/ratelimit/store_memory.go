package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var memoryOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ratelimit_memory_operations_total",
	Help: "In-memory rate limiter checks by outcome.",
}, []string{"outcome"})

type counter struct {
	count   int
	resetAt time.Time
}

// MemoryStore is a fixed-window limiter for tests and single-process
// deployments. Each key's counter self-expires: a lazily-evicted entry past
// resetAt is treated as zero rather than actively swept on a timer.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*counter)}
}

func (m *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c := m.counters[key]
	if c == nil || now.After(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		m.counters[key] = c
	}

	c.count++
	allowed := c.count <= limit
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	memoryOps.WithLabelValues(outcome).Inc()

	remaining := limit - c.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{Allowed: allowed, Limit: limit, Remaining: remaining, ResetAt: c.resetAt}, nil
}
