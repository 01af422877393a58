package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ctxgate/ctxgate/compaction"
)

// txContextKey is the context key for an in-flight pgx transaction.
type txContextKey struct{}

// WithTx returns a context carrying the given transaction. Store calls made
// with it run inside that transaction instead of the pool.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is the common surface of pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema creates the tables the PostgresStore needs. Run it once at
// deployment, or call Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS ctxgate_sessions (
	session_id       TEXT PRIMARY KEY,
	auto_compaction  BOOLEAN NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ctxgate_compactions (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	original_tokens   BIGINT NOT NULL,
	compacted_tokens  BIGINT NOT NULL,
	ratio             DOUBLE PRECISION NOT NULL,
	trigger_reason    TEXT NOT NULL,
	messages_removed  INT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ctxgate_compactions_session
	ON ctxgate_compactions (session_id, created_at);
`

// PostgresStore is a Store backed by PostgreSQL via pgx. Suitable when
// several proxy instances share one audit trail.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over an existing pool. The pool stays
// owned by the caller; Close does not close it.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// getQuerier returns the transaction from context if present, otherwise the
// pool.
func (s *PostgresStore) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *PostgresStore) GetAutoCompaction(ctx context.Context, sessionID string) (bool, bool, error) {
	var enabled bool
	err := s.getQuerier(ctx).QueryRow(ctx,
		`SELECT auto_compaction FROM ctxgate_sessions WHERE session_id = $1`,
		sessionID,
	).Scan(&enabled)
	if err == pgx.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get auto-compaction flag: %w", err)
	}
	return enabled, true, nil
}

func (s *PostgresStore) SetAutoCompaction(ctx context.Context, sessionID string, enabled bool) error {
	_, err := s.getQuerier(ctx).Exec(ctx, `
		INSERT INTO ctxgate_sessions (session_id, auto_compaction, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (session_id)
		DO UPDATE SET auto_compaction = EXCLUDED.auto_compaction, updated_at = NOW()
	`, sessionID, enabled)
	if err != nil {
		return fmt.Errorf("set auto-compaction flag: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendCompactionRecord(ctx context.Context, record compaction.Record) error {
	_, err := s.getQuerier(ctx).Exec(ctx, `
		INSERT INTO ctxgate_compactions
			(id, session_id, created_at, original_tokens, compacted_tokens, ratio, trigger_reason, messages_removed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		record.ID.String(), record.SessionID, record.Timestamp,
		record.OriginalTokens, record.CompactedTokens, record.Ratio,
		string(record.Trigger), record.MessagesRemoved,
	)
	if err != nil {
		return fmt.Errorf("append compaction record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCompactionHistory(ctx context.Context, sessionID string) ([]compaction.Record, error) {
	rows, err := s.getQuerier(ctx).Query(ctx, `
		SELECT id, session_id, created_at, original_tokens, compacted_tokens, ratio, trigger_reason, messages_removed
		FROM ctxgate_compactions
		WHERE session_id = $1
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query compaction history: %w", err)
	}
	defer rows.Close()

	var records []compaction.Record
	for rows.Next() {
		var (
			record  compaction.Record
			id      string
			trigger string
		)
		err := rows.Scan(&id, &record.SessionID, &record.Timestamp,
			&record.OriginalTokens, &record.CompactedTokens, &record.Ratio,
			&trigger, &record.MessagesRemoved)
		if err != nil {
			return nil, fmt.Errorf("scan compaction record: %w", err)
		}
		if record.ID, err = parseRecordID(id); err != nil {
			return nil, err
		}
		record.Trigger = compaction.Trigger(trigger)
		records = append(records, record)
	}
	return records, rows.Err()
}

func parseRecordID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parse compaction record id %q: %w", s, err)
	}
	return id, nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error {
	return nil
}
