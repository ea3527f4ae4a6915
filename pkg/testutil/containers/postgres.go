//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps a testcontainers Postgres instance with the
// audit_log/outbox schema the postgres audit store and outbox relay expect.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	seq               BIGSERIAL PRIMARY KEY,
	id                UUID NOT NULL UNIQUE,
	prev_hash         TEXT NOT NULL,
	subject_id        UUID NOT NULL,
	session_id        UUID,
	action            TEXT NOT NULL,
	resource          TEXT,
	decision          TEXT NOT NULL,
	policy_package    TEXT,
	policy_rule       TEXT,
	roles             TEXT[] NOT NULL DEFAULT '{}',
	entitlements      TEXT[] NOT NULL DEFAULT '{}',
	risk_level        TEXT,
	mfa_verified      BOOLEAN NOT NULL DEFAULT false,
	ip                TEXT,
	user_agent        TEXT,
	policy_input_hash TEXT,
	evaluated_at      TIMESTAMPTZ NOT NULL,
	revoked_count     INTEGER NOT NULL DEFAULT 0,
	content_hash      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   UUID NOT NULL,
	event_type     TEXT NOT NULL,
	payload        BYTEA NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at   TIMESTAMPTZ
);
`

// NewPostgresContainer starts a Postgres container and applies the audit
// schema, returning a ready-to-use *sql.DB over the pgx driver.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("credo"),
		tcpostgres.WithUsername("credo"),
		tcpostgres.WithPassword("credo"),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply audit schema: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// Truncate clears the audit tables between tests without tearing down the
// container, since starting Postgres per-test is too slow for a unit loop.
func (p *PostgresContainer) Truncate(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `TRUNCATE audit_log, outbox`)
	return err
}
