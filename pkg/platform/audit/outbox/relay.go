// Package outbox relays unpublished audit_log rows from the transactional
// outbox table to Kafka, so a crash between the database commit and the
// publish never loses a record: the row is already durable, only the
// publish is retried on restart.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Row is one unpublished outbox entry.
type Row struct {
	ID        uuid.UUID
	EventType string
	Payload   []byte
}

// Relay polls the outbox table and publishes each unpublished row to topic,
// marking it published only after the broker acknowledges the write.
type Relay struct {
	db       *sql.DB
	client   *kgo.Client
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewRelay(db *sql.DB, client *kgo.Client, topic string) *Relay {
	return &Relay{
		db:       db,
		client:   client,
		topic:    topic,
		interval: time.Second,
		batch:    100,
		logger:   slog.Default(),
	}
}

// Run polls until ctx is cancelled. A relay is meant to run as a single
// background goroutine per process; concurrent relays would double-publish
// since there is no row-level claim beyond the published_at write.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.relayOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox relay pass failed", "error", err)
			}
		}
	}
}

func (r *Relay) relayOnce(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, payload FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, r.batch)
	if err != nil {
		return fmt.Errorf("query outbox: %w", err)
	}

	var pending []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.EventType, &row.Payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		pending = append(pending, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox rows: %w", err)
	}

	for _, row := range pending {
		record := &kgo.Record{Topic: r.topic, Key: []byte(row.ID.String()), Value: row.Payload}
		result := r.client.ProduceSync(ctx, record)
		if err := result.FirstErr(); err != nil {
			return fmt.Errorf("publish outbox row %s: %w", row.ID, err)
		}

		if _, err := r.db.ExecContext(ctx, `UPDATE outbox SET published_at = $1 WHERE id = $2`, time.Now(), row.ID); err != nil {
			return fmt.Errorf("mark outbox row %s published: %w", row.ID, err)
		}
	}
	return nil
}
