package session

import (
	"context"
	"encoding/json"
	"time"

	id "credo/pkg/domain"
	dErrors "credo/pkg/domain-errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var redisStoreOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "session_redis_store_operations_total",
	Help: "Redis-backed session store operations by op and outcome.",
}, []string{"op", "outcome"})

// RedisStore is the production Store backend. Mutations that need
// read-modify-write semantics (UpdateRisk, Revoke) use optimistic locking
// via WATCH/MULTI so concurrent callers never clobber each other's writes
// beyond the fields each one actually changes, per §5.
type RedisStore struct {
	client      *redis.Client
	ttl         time.Duration
	indexMargin time.Duration
	maxRetries  int
}

// NewRedisStore constructs a RedisStore backed by client.
func NewRedisStore(client *redis.Client, ttl, indexMargin time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, indexMargin: indexMargin, maxRetries: 5}
}

func (r *RedisStore) Create(ctx context.Context, subjectID id.SubjectID, tenantID id.TenantID, deviceID id.DeviceID, mfaVerified bool) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:              id.NewSessionID(),
		SubjectID:       subjectID,
		TenantID:        tenantID,
		DeviceID:        deviceID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(r.ttl),
		RiskLevel:       RiskLow,
		MFAVerified:     mfaVerified,
		LastEvaluatedAt: now,
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "marshal session", err)
	}

	key := sessionKey(s.ID)
	idxKey := subjectIndexKey(subjectID)

	_, err = pipelinedExec(ctx, r.client, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, r.ttl)
		pipe.SAdd(ctx, idxKey, s.ID.String())
		pipe.Expire(ctx, idxKey, r.ttl+r.indexMargin)
		return nil
	})
	if err != nil {
		redisStoreOps.WithLabelValues("create", "error").Inc()
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "session store write failed", err)
	}

	redisStoreOps.WithLabelValues("create", "ok").Inc()
	return s, nil
}

func pipelinedExec(ctx context.Context, client *redis.Client, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	pipe := client.TxPipeline()
	if err := fn(pipe); err != nil {
		return nil, err
	}
	return pipe.Exec(ctx)
}

func (r *RedisStore) Get(ctx context.Context, sessionID id.SessionID) (GetResult, error) {
	raw, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		redisStoreOps.WithLabelValues("get", "absent").Inc()
		return absentResult(), nil
	}
	if err != nil {
		redisStoreOps.WithLabelValues("get", "error").Inc()
		return GetResult{}, dErrors.Wrap(dErrors.CodeUnavailable, "session store read failed", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		redisStoreOps.WithLabelValues("get", "corrupt").Inc()
		return GetResult{}, dErrors.Wrap(dErrors.CodeInternal, "corrupt session record", err)
	}

	if !s.Live() {
		redisStoreOps.WithLabelValues("get", "revoked").Inc()
		return revokedResult(&s), nil
	}
	redisStoreOps.WithLabelValues("get", "live").Inc()
	return liveResult(&s), nil
}

// UpdateRisk performs a WATCH/GET/MUTATE/MULTI-SET cycle that preserves the
// remaining TTL on the key, retrying on a concurrent-modification error up
// to maxRetries times.
func (r *RedisStore) UpdateRisk(ctx context.Context, sessionID id.SessionID, level RiskLevel, evaluatedAt time.Time, observed Observed) error {
	key := sessionKey(sessionID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil // vanished session: UpdateRisk is a no-op, never recreates it.
		}
		if err != nil {
			return err
		}

		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if !s.Live() {
			return nil
		}

		remaining := tx.TTL(ctx, key).Val()
		if remaining <= 0 {
			remaining = r.ttl
		}

		s.RiskLevel = level
		s.LastEvaluatedAt = evaluatedAt
		s.Observed = observed
		payload, err := json.Marshal(&s)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, remaining)
			return nil
		})
		return err
	}

	err := r.watchWithRetry(ctx, txf, key)
	if err != nil {
		redisStoreOps.WithLabelValues("update_risk", "error").Inc()
		return dErrors.Wrap(dErrors.CodeUnavailable, "session risk update failed", err)
	}
	redisStoreOps.WithLabelValues("update_risk", "ok").Inc()
	return nil
}

// Revoke deletes the session key and removes it from the subject index. It
// is idempotent: revoking an absent session returns no error.
func (r *RedisStore) Revoke(ctx context.Context, sessionID id.SessionID) error {
	key := sessionKey(sessionID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}

		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, subjectIndexKey(s.SubjectID), sessionID.String())
			return nil
		})
		return err
	}

	err := r.watchWithRetry(ctx, txf, key)
	if err != nil {
		redisStoreOps.WithLabelValues("revoke", "error").Inc()
		return dErrors.Wrap(dErrors.CodeUnavailable, "session revoke failed", err)
	}
	redisStoreOps.WithLabelValues("revoke", "ok").Inc()
	return nil
}

// RevokeAllForSubject snapshots the subject's index set, deletes every
// session key in a single batched operation, then deletes the index set
// itself - a single logical step per §5(b).
func (r *RedisStore) RevokeAllForSubject(ctx context.Context, subjectID id.SubjectID) (int, error) {
	idxKey := subjectIndexKey(subjectID)

	members, err := r.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		redisStoreOps.WithLabelValues("revoke_all_for_subject", "error").Inc()
		return 0, dErrors.Wrap(dErrors.CodeUnavailable, "read subject index failed", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = "session:" + m
	}

	_, err = pipelinedExec(ctx, r.client, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.Del(ctx, idxKey)
		return nil
	})
	if err != nil {
		redisStoreOps.WithLabelValues("revoke_all_for_subject", "error").Inc()
		return 0, dErrors.Wrap(dErrors.CodeUnavailable, "revoke all for subject failed", err)
	}

	redisStoreOps.WithLabelValues("revoke_all_for_subject", "ok").Inc()
	return len(members), nil
}

func (r *RedisStore) watchWithRetry(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < r.maxRetries; i++ {
		err := r.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return dErrors.New(dErrors.CodeUnavailable, "session store transaction exceeded retry budget")
}
