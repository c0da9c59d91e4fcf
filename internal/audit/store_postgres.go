package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"riskgate/internal/domain"
)

// PostgresStore persists the chain into an append-only table. Inserts go
// through a transaction so a batch is all-or-nothing; ON CONFLICT DO NOTHING
// makes retried batches idempotent (at-least-once delivery from the writer).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL for the audit table. Applied by migrations; embedded here
// so tests and operators have the authoritative definition.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	sequence_no   BIGINT PRIMARY KEY,
	ts            TIMESTAMPTZ NOT NULL,
	payload       JSONB NOT NULL,
	previous_hash TEXT NOT NULL,
	record_hash   TEXT NOT NULL,
	algorithm     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_event_id_idx
	ON audit_records ((payload->>'event_id'));
`

// EnsureSchema creates the audit table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, batch []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit append: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO audit_records (sequence_no, ts, payload, previous_hash, record_hash, algorithm)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sequence_no) DO NOTHING
	`
	for _, rec := range batch {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for sequence %d: %w", rec.SequenceNo, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			int64(rec.SequenceNo), rec.Timestamp, payload,
			rec.PreviousHash, rec.RecordHash, rec.Algorithm,
		); err != nil {
			return fmt.Errorf("insert audit record %d: %w", rec.SequenceNo, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, from, to uint64) ([]Record, error) {
	const query = `
		SELECT sequence_no, ts, payload, previous_hash, record_hash, algorithm
		FROM audit_records
		WHERE sequence_no BETWEEN $1 AND $2
		ORDER BY sequence_no ASC
	`
	rows, err := s.db.QueryContext(ctx, query, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Last(ctx context.Context) (*Record, error) {
	const query = `
		SELECT sequence_no, ts, payload, previous_hash, record_hash, algorithm
		FROM audit_records
		ORDER BY sequence_no DESC
		LIMIT 1
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query last audit record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, nil
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec     Record
		seq     int64
		payload []byte
	)
	if err := rows.Scan(&seq, &rec.Timestamp, &payload, &rec.PreviousHash, &rec.RecordHash, &rec.Algorithm); err != nil {
		return Record{}, fmt.Errorf("scan audit record: %w", err)
	}
	rec.SequenceNo = uint64(seq)

	var d domain.Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return Record{}, fmt.Errorf("unmarshal payload for sequence %d: %w", seq, err)
	}
	rec.Payload = d
	return rec, nil
}
