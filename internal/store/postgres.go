package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ TurnStore = (*Postgres)(nil)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id             BIGSERIAL    PRIMARY KEY,
    session_id     TEXT         NOT NULL DEFAULT '',
    input_text     TEXT         NOT NULL,
    generated_text TEXT         NOT NULL,
    language       TEXT         NOT NULL DEFAULT '',
    audio_bytes    BIGINT       NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_turns_session_created
    ON turns (session_id, created_at DESC);
`

// Postgres is a PostgreSQL-backed [TurnStore] built on a single
// [pgxpool.Pool]. All operations are safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at dsn, verifies the connection, and
// runs the idempotent schema migration.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// SaveTurn appends one record to the turns table.
func (s *Postgres) SaveTurn(ctx context.Context, rec TurnRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO turns (session_id, input_text, generated_text, language, audio_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.SessionID, rec.InputText, rec.GeneratedText, rec.Language, rec.AudioBytes, createdAt,
	)
	if err != nil {
		return fmt.Errorf("store: save turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit records for the session, newest first.
func (s *Postgres) RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, input_text, generated_text, language, audio_bytes, created_at
		FROM turns
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		if err := rows.Scan(&rec.SessionID, &rec.InputText, &rec.GeneratedText,
			&rec.Language, &rec.AudioBytes, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan turn: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate turns: %w", err)
	}
	return out, nil
}

// Ping reports whether the database is reachable.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (s *Postgres) Close() {
	s.pool.Close()
}
