package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"pilotdesk/pkg/platform/sentinel"
)

// PostgresStore persists chains in the audit_entries table. Appends run in a
// transaction that locks the entity's current head row, so two instances
// racing on the same chain serialize at the database instead of forking.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema returns the DDL for the audit_entries table. Exposed for migrations
// and integration test setup.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS audit_entries (
	id         UUID PRIMARY KEY,
	entity_id  TEXT NOT NULL,
	seq        BIGINT NOT NULL,
	action     TEXT NOT NULL,
	actor      TEXT NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}',
	ts         TIMESTAMPTZ NOT NULL,
	prev_hash  TEXT NOT NULL,
	curr_hash  TEXT NOT NULL,
	UNIQUE (entity_id, seq)
);
CREATE INDEX IF NOT EXISTS audit_entries_entity_idx ON audit_entries (entity_id, seq);
`
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq  int64
		head string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT seq, curr_hash FROM audit_entries
		WHERE entity_id = $1
		ORDER BY seq DESC
		LIMIT 1
		FOR UPDATE`, entry.EntityID).Scan(&seq, &head)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		seq, head = 0, ""
	case err != nil:
		return fmt.Errorf("read chain head: %w", err)
	}

	if entry.PrevHash != head {
		return sentinel.ErrConflict
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_entries (id, entity_id, seq, action, actor, metadata, ts, prev_hash, curr_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.EntityID, seq+1, string(entry.Action), entry.Actor,
		metadata, CanonicalTime(entry.Timestamp), entry.PrevHash, entry.CurrHash,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Head(ctx context.Context, entityID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, action, actor, metadata, ts, prev_hash, curr_hash
		FROM audit_entries
		WHERE entity_id = $1
		ORDER BY seq DESC
		LIMIT 1`, entityID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read chain head: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) List(ctx context.Context, entityID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, action, actor, metadata, ts, prev_hash, curr_hash
		FROM audit_entries
		WHERE entity_id = $1
		ORDER BY seq ASC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry    Entry
		action   string
		metadata []byte
	)
	if err := row.Scan(&entry.ID, &entry.EntityID, &action, &entry.Actor,
		&metadata, &entry.Timestamp, &entry.PrevHash, &entry.CurrHash); err != nil {
		return Entry{}, err
	}
	entry.Action = Action(action)
	entry.Timestamp = CanonicalTime(entry.Timestamp)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return Entry{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return entry, nil
}
