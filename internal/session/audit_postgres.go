package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAuditSink records session manifests for offline review.
// Grounded on the teacher's memory.PostgresStore: a pgxpool-backed
// store with a best-effort init-schema step. Failures here never
// propagate to the request path (spec §4.3).
type PostgresAuditSink struct {
	pool *pgxpool.Pool
}

func NewPostgresAuditSink(ctx context.Context, databaseURL string) (*PostgresAuditSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresAuditSink{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS session_manifests (
		session_id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresAuditSink) RecordManifest(ctx context.Context, m Manifest) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_manifests (session_id, payload) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO UPDATE SET payload = EXCLUDED.payload`,
		m.SessionID, payload)
	return err
}

func (s *PostgresAuditSink) Close() error {
	s.pool.Close()
	return nil
}
