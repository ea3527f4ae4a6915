package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"

	"github.com/google/uuid"
)

// Store implements audit.Store against a single hash-chained audit_log
// table. Each Append also writes the record to the outbox table in the same
// transaction, so the Kafka relay (pkg/platform/audit/outbox) always has a
// durable, exactly-once-enqueued copy to publish even if the process dies
// between the database write and the publish.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append locks the chain head row, computes the next record against it, and
// inserts both the record and its outbox entry in one transaction. Locking
// the head row (rather than the whole table) is what lets Append serialize
// concurrent writers without serializing unrelated queries against the table.
func (s *Store) Append(ctx context.Context, d audit.Draft) (*audit.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	prevHash := audit.GenesisHash
	row := tx.QueryRowContext(ctx, `SELECT content_hash FROM audit_log ORDER BY seq DESC LIMIT 1 FOR UPDATE`)
	if err := row.Scan(&prevHash); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("lock audit chain head: %w", err)
	}

	rec := audit.NextRecord(prevHash, d)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, prev_hash, subject_id, session_id, action, resource, decision,
			policy_package, policy_rule, roles, entitlements, risk_level,
			mfa_verified, ip, user_agent, policy_input_hash, evaluated_at, revoked_count, content_hash
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		rec.ID, rec.PrevHash, uuid.UUID(rec.SubjectID), sessionIDOrNil(rec.SessionID),
		rec.Action, rec.Resource, string(rec.Decision), rec.PolicyPackage, rec.PolicyRule,
		pqStringArray(rec.Roles), pqStringArray(rec.Entitlements), rec.RiskLevel,
		rec.MFAVerified, rec.IP, rec.UserAgent, rec.PolicyInputHash, rec.EvaluatedAt, rec.RevokedCount, rec.ContentHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit record: %w", err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal audit outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, 'audit_record', $2, $3, $4, $5)
	`, uuid.New(), rec.ID, rec.Action, payload, time.Now())
	if err != nil {
		return nil, fmt.Errorf("insert outbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit tx: %w", err)
	}
	return rec, nil
}

func (s *Store) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, auditSelect+` WHERE subject_id = $1 ORDER BY seq ASC`, uuid.UUID(subjectID))
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) ListAll(ctx context.Context) ([]*audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, auditSelect+` ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

const auditSelect = `
	SELECT id, prev_hash, subject_id, session_id, action, resource, decision,
	       policy_package, policy_rule, roles, entitlements, risk_level,
	       mfa_verified, ip, user_agent, policy_input_hash, evaluated_at, revoked_count, content_hash
	FROM audit_log
`

func scanRecords(rows *sql.Rows) ([]*audit.Record, error) {
	var records []*audit.Record
	for rows.Next() {
		var (
			rec            audit.Record
			subjectID      uuid.UUID
			sessionID      *uuid.UUID
			roles, ents    []string
		)
		if err := rows.Scan(
			&rec.ID, &rec.PrevHash, &subjectID, &sessionID, &rec.Action, &rec.Resource, &rec.Decision,
			&rec.PolicyPackage, &rec.PolicyRule, &roles, &ents, &rec.RiskLevel,
			&rec.MFAVerified, &rec.IP, &rec.UserAgent, &rec.PolicyInputHash, &rec.EvaluatedAt, &rec.RevokedCount, &rec.ContentHash,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.SubjectID = id.SubjectID(subjectID)
		if sessionID != nil {
			rec.SessionID = id.SessionID(*sessionID)
		}
		rec.Roles = roles
		rec.Entitlements = ents
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

func sessionIDOrNil(sid id.SessionID) any {
	if sid.IsNil() {
		return nil
	}
	return uuid.UUID(sid)
}

// pqStringArray renders a Go string slice as a Postgres text[] literal. The
// driver-specific array type lives in lib/pq; this keeps the store free of
// that import for callers that wire database/sql with a different driver.
func pqStringArray(ss []string) string {
	if len(ss) == 0 {
		return "{}"
	}
	out := "{"
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += `"` + s + `"`
	}
	return out + "}"
}
