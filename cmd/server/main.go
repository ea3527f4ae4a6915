// Command server runs the zero-trust authorization core: session
// verification, device binding, continuous risk evaluation, risk-adaptive
// throttling, policy decision, and tamper-evident audit logging, mounted as
// a chi middleware in front of a minimal protected route set.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credo/internal/credential"
	"credo/internal/device"
	"credo/internal/entitlement"
	"credo/internal/pipeline"
	"credo/internal/platform/config"
	"credo/internal/platform/httpserver"
	"credo/internal/platform/logger"
	"credo/internal/platform/redis"
	"credo/internal/policy"
	"credo/internal/ratelimit"
	"credo/internal/replay"
	"credo/internal/risk"
	"credo/internal/session"
	audit "credo/pkg/platform/audit"
	postgresaudit "credo/pkg/platform/audit/store/postgres"
	"credo/pkg/platform/circuit"

	"credo/pkg/platform/audit/outbox"
	memorystore "credo/pkg/platform/audit/store/memory"
	"credo/pkg/platform/audit/worker"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(getenv("LOG_LEVEL", "info"))

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}

	sessions := newSessionStore(cfg, redisClient)
	limiter := newRateLimiter(cfg, redisClient)
	replayGuard := newReplayGuard(redisClient)

	if cfg.Auth.SigningKey == "" {
		log.Warn("ACCESS_TOKEN_SIGNING_KEY is unset, access credentials will never verify")
	}
	credentialVerifier := credential.NewVerifier([]byte(cfg.Auth.SigningKey), cfg.Auth.Issuer)

	auditStore, auditDB, closeAuditStore := newAuditStore(cfg, log)
	defer closeAuditStore()

	relay := newOutboxRelay(cfg, auditDB, log)

	inbox := make(chan audit.Draft, 4096)
	auditWorker := worker.NewWorker(auditStore, inbox, worker.WithLogger(log))
	auditor := &channelAuditor{inbox: inbox, budget: cfg.Budgets.AuditEnqueue}

	riskSvc := risk.NewService(risk.NewEngine(risk.Config{
		SeverityWeight: cfg.Risk.SeverityWeight,
		MediumAt:       cfg.Risk.MediumAt,
		HighAt:         cfg.Risk.HighAt,
		CriticalAt:     cfg.Risk.CriticalAt,
	}), sessions, auditor, log)

	deviceSvc := device.NewService(true)
	entitlements := entitlement.NewService(entitlement.NewMemoryStore(), sessions, auditor, log)
	policyEngine := newPolicyEngine(cfg, redisClient)

	caps := ratelimit.Caps{
		Window:       cfg.RateLimit.Window,
		Low:          cfg.RateLimit.LimitLow,
		Medium:       cfg.RateLimit.LimitMedium,
		High:         cfg.RateLimit.LimitHigh,
		DefaultLimit: cfg.RateLimit.DefaultLimit,
	}

	chain := pipeline.New(
		pipeline.NewRequireSessionStep(sessions, credentialVerifier, cfg.Budgets.SessionStore, log),
		pipeline.NewEnforceDeviceBindingStep(auditor, log),
		pipeline.NewContinuousAccessEvaluationStep(riskSvc, deviceSvc, replayGuard, cfg.Replay.TTL, log),
		pipeline.NewRiskThrottleStep(limiter, caps, cfg.Budgets.RateLimiter, log),
		pipeline.NewBuildPolicyInputStep(entitlements, log),
		pipeline.NewOpaAuthorizeStep(policyEngine, auditor, cfg.Budgets.PolicyEngine, log),
		pipeline.NewAuditDecisionStep(auditor, log),
	)

	router := newRouter(chain, &adminHandlers{
		sessions:     sessions,
		entitlements: entitlements,
		auditor:      auditor,
		logger:       log,
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	// A signal cancels the shared context, which fans out to the audit
	// worker and triggers a graceful server shutdown. Any goroutine
	// returning a non-nil error cancels the others the same way, so a
	// crashed worker and an interrupt shut the process down identically.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if relay != nil {
		group.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		log.Info("starting authorization core", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("authorization core exited with error", "error", err)
		os.Exit(1)
	}
}

func newRouter(chain *pipeline.Chain, admin *adminHandlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Post("/entitlements", admin.grantEntitlement)
		r.Post("/entitlements/{entitlementID}/revoke", admin.revokeEntitlement)
		r.Post("/entitlements/{entitlementID}/suspend", admin.suspendEntitlement)
		r.Post("/entitlements/{entitlementID}/reactivate", admin.reactivateEntitlement)
		r.Post("/sessions/{sessionID}/revoke", admin.revokeSession)
	})

	r.Group(func(r chi.Router) {
		r.Use(pipeline.Middleware(chain, nil))
		r.Get("/api/*", protectedPlaceholder)
		r.Post("/api/*", protectedPlaceholder)
	})

	return r
}

// protectedPlaceholder stands in for the resource handlers this core fronts;
// by the time it runs, the pipeline has already attached the session, risk
// profile, and policy decision to the request context.
func protectedPlaceholder(w http.ResponseWriter, r *http.Request) {
	if _, ok := pipeline.FromContext(r.Context()); !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func newSessionStore(cfg config.Config, redisClient *redis.Client) session.Store {
	if redisClient == nil {
		return session.NewMemoryStore(cfg.Session.TTL)
	}
	return session.NewRedisStore(redisClient.Client, cfg.Session.TTL, cfg.Session.SubjectIndexMargin)
}

func newRateLimiter(cfg config.Config, redisClient *redis.Client) ratelimit.Limiter {
	if redisClient == nil {
		return ratelimit.NewMemoryStore()
	}
	return ratelimit.NewRedisStore(redisClient.Client)
}

func newReplayGuard(redisClient *redis.Client) *replay.Guard {
	if redisClient == nil {
		return nil
	}
	return replay.NewGuard(redisClient.Client)
}

func newPolicyEngine(cfg config.Config, redisClient *redis.Client) policy.Engine {
	var engine policy.Engine
	switch cfg.Policy.Backend {
	case "remote":
		breaker := circuit.New("policy-engine")
		engine = policy.NewRemoteEngine(cfg.Policy.RemoteURL, cfg.Policy.Timeout, breaker)
	default:
		engine = policy.NewEmbeddedEngine(defaultRules())
	}

	if redisClient == nil {
		return engine
	}
	return policy.NewCache(engine, redisClient.Client, cfg.Policy.CacheTTL)
}

// defaultRules seeds the embedded backend for deployments that have not
// supplied a remote policy engine. An operator running in embedded mode is
// expected to fork this list for their own resource/action table.
func defaultRules() []policy.Rule {
	return []policy.Rule{}
}

// newAuditStore returns the audit store and, when it's Postgres-backed, the
// underlying *sql.DB handle so newOutboxRelay can poll the same outbox table
// the store writes to in one transaction with each audit_log insert.
func newAuditStore(cfg config.Config, log *slog.Logger) (audit.Store, *sql.DB, func()) {
	if cfg.Postgres.DSN == "" {
		return memorystore.NewInMemoryStore(), nil, func() {}
	}

	db, err := sql.Open("pgx", cfg.Postgres.DSN)
	if err != nil {
		log.Error("postgres connect failed, falling back to in-memory audit store", "error", err)
		return memorystore.NewInMemoryStore(), nil, func() {}
	}

	return postgresaudit.New(db), db, func() { _ = db.Close() }
}

// newOutboxRelay wires the transactional-outbox-to-Kafka relay for
// deployments that run Postgres-backed audit with a downstream SIEM/compliance
// consumer. Returns nil when either leg isn't configured, since a relay with
// no db or no brokers has nothing to poll or publish to.
func newOutboxRelay(cfg config.Config, db *sql.DB, log *slog.Logger) *outbox.Relay {
	if db == nil || len(cfg.Kafka.Brokers) == 0 {
		return nil
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
	if err != nil {
		log.Error("kafka client init failed, outbox relay disabled", "error", err)
		return nil
	}

	return outbox.NewRelay(db, client, cfg.Kafka.Topic)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
