// Package config loads process configuration from the environment. There
// are no config files and no flags - every knob follows the FromEnv() idiom
// so main stays lean and operators can tune behavior per deployment without
// a redeploy.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// RedisConfig configures the shared Redis connection backing the session
// store, rate limiter, decision cache, and replay guard.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the audit outbox store.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig configures the audit publish leg feeding downstream SIEM and
// compliance consumers.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Budgets holds the per-call deadlines from §5: every suspension point
// (session store, policy engine, audit enqueue, rate limiter) derives its
// context.WithTimeout from here instead of a hardcoded constant.
type Budgets struct {
	SessionStore time.Duration
	PolicyEngine time.Duration
	AuditEnqueue time.Duration
	RateLimiter  time.Duration
}

// SessionConfig controls session lifetime and subject-index safety margin.
type SessionConfig struct {
	TTL                time.Duration
	SubjectIndexMargin time.Duration
}

// RiskConfig exposes the risk engine's scoring knobs as configuration
// rather than constants, per the design note: treat threshold tuning and
// the signal-weight multiplier as configuration of the risk engine.
type RiskConfig struct {
	SeverityWeight float64
	MediumAt       int
	HighAt         int
	CriticalAt     int
}

// RateLimitConfig holds the per-risk-level request caps and the fixed window.
type RateLimitConfig struct {
	Window       time.Duration
	LimitLow     int
	LimitMedium  int
	LimitHigh    int
	DefaultLimit int
}

// PolicyConfig selects and configures the policy engine backend.
type PolicyConfig struct {
	Backend   string // "remote" or "embedded"
	RemoteURL string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// ReplayConfig configures the anti-replay nonce guard.
type ReplayConfig struct {
	TTL time.Duration
}

// AuthConfig configures verification of the signed access credential (§6).
// Issuing the credential belongs to the authentication collaborator; this
// core only ever verifies, so there is no key-rotation schedule here.
type AuthConfig struct {
	SigningKey string
	Issuer     string
}

// Config aggregates every environment-driven knob for the process.
type Config struct {
	Server    Server
	Redis     RedisConfig
	Postgres  PostgresConfig
	Kafka     KafkaConfig
	Budgets   Budgets
	Session   SessionConfig
	Risk      RiskConfig
	RateLimit RateLimitConfig
	Policy    PolicyConfig
	Replay    ReplayConfig
	Auth      AuthConfig
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// FromEnv builds the full Config from environment variables, falling back
// to the defaults stated in the design notes.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: getEnv("SERVER_ADDR", ":8080"),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 20),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: getEnv("POSTGRES_DSN", ""),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_AUDIT_TOPIC", "authz.audit"),
		},
		Budgets: Budgets{
			SessionStore: getEnvDuration("BUDGET_SESSION_STORE", 100*time.Millisecond),
			PolicyEngine: getEnvDuration("BUDGET_POLICY_ENGINE", 5*time.Second),
			AuditEnqueue: getEnvDuration("BUDGET_AUDIT_ENQUEUE", 5*time.Millisecond),
			RateLimiter:  getEnvDuration("BUDGET_RATE_LIMITER", 50*time.Millisecond),
		},
		Session: SessionConfig{
			TTL:                getEnvDuration("SESSION_TTL", 8*time.Hour),
			SubjectIndexMargin: getEnvDuration("SESSION_INDEX_MARGIN", 60*time.Second),
		},
		Risk: RiskConfig{
			SeverityWeight: getEnvFloat("RISK_SEVERITY_WEIGHT", 5.0),
			MediumAt:       getEnvInt("RISK_MEDIUM_AT", 30),
			HighAt:         getEnvInt("RISK_HIGH_AT", 60),
			CriticalAt:     getEnvInt("RISK_CRITICAL_AT", 80),
		},
		RateLimit: RateLimitConfig{
			Window:       getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
			LimitLow:     getEnvInt("RATE_LIMIT_LOW", 1000),
			LimitMedium:  getEnvInt("RATE_LIMIT_MEDIUM", 200),
			LimitHigh:    getEnvInt("RATE_LIMIT_HIGH", 20),
			DefaultLimit: getEnvInt("RATE_LIMIT_DEFAULT", 10),
		},
		Policy: PolicyConfig{
			Backend:   getEnv("POLICY_BACKEND", "embedded"),
			RemoteURL: getEnv("POLICY_REMOTE_URL", ""),
			Timeout:   getEnvDuration("POLICY_TIMEOUT", 5*time.Second),
			CacheTTL:  getEnvDuration("POLICY_CACHE_TTL", 5*time.Second),
		},
		Replay: ReplayConfig{
			TTL: getEnvDuration("REPLAY_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			SigningKey: getEnv("ACCESS_TOKEN_SIGNING_KEY", ""),
			Issuer:     getEnv("ACCESS_TOKEN_ISSUER", ""),
		},
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
