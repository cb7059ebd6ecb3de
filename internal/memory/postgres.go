package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog persists the exchange log in PostgreSQL.
type PostgresLog struct {
	pool *pgxpool.Pool
}

func NewPostgresLog(ctx context.Context, databaseURL string) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresLog{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_seq ON conversations (user_id, seq DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresLog) Append(ctx context.Context, ex Exchange) (Exchange, error) {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, user_id, seq, role, content, pii_redacted, timestamp)
		 SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6
		 FROM conversations WHERE user_id = $2
		 RETURNING seq`,
		ex.ID,
		ex.UserID,
		string(ex.Role),
		ex.Content,
		ex.PIIRedacted,
		ex.CreatedAt,
	).Scan(&ex.Seq)
	if err != nil {
		return Exchange{}, fmt.Errorf("save exchange: %w", err)
	}
	return ex, nil
}

func (s *PostgresLog) Recent(ctx context.Context, userID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, seq, role, content, pii_redacted, timestamp
		 FROM conversations WHERE user_id=$1 ORDER BY seq DESC LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent context: %w", err)
	}
	defer rows.Close()

	items := make([]Exchange, 0, limit)
	for rows.Next() {
		var ex Exchange
		var role string
		if err := rows.Scan(&ex.ID, &ex.UserID, &ex.Seq, &role, &ex.Content, &ex.PIIRedacted, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan context row: %w", err)
		}
		ex.Role = Role(role)
		items = append(items, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate context rows: %w", err)
	}

	// Reverse into chronological order for prompt coherence.
	reverseExchanges(items)
	return items, nil
}

func (s *PostgresLog) Close() error {
	s.pool.Close()
	return nil
}
