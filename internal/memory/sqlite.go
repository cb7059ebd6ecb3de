package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteLog persists exchanges in an embedded SQLite database.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog opens or creates the database at dbPath.
func NewSQLiteLog(dbPath string) (*SQLiteLog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer connection; concurrent appends queue in database/sql instead of on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteLog{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteLog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		seq          INTEGER NOT NULL,
		role         TEXT NOT NULL,
		content      TEXT NOT NULL,
		pii_redacted INTEGER NOT NULL DEFAULT 0,
		timestamp    TEXT NOT NULL,
		UNIQUE (user_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_seq ON conversations(user_id, seq DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteLog) Append(ctx context.Context, ex Exchange) (Exchange, error) {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	// Single statement so the sequence read and the insert commit atomically.
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO conversations (id, user_id, seq, role, content, pii_redacted, timestamp)
		 SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
		 FROM conversations WHERE user_id = ?
		 RETURNING seq`,
		ex.ID, ex.UserID, string(ex.Role), ex.Content, ex.PIIRedacted,
		ex.CreatedAt.Format(time.RFC3339Nano), ex.UserID,
	).Scan(&ex.Seq)
	if err != nil {
		return Exchange{}, fmt.Errorf("insert exchange: %w", err)
	}
	return ex, nil
}

func (s *SQLiteLog) Recent(ctx context.Context, userID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, seq, role, content, pii_redacted, timestamp
		 FROM conversations WHERE user_id = ? ORDER BY seq DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent exchanges: %w", err)
	}
	defer rows.Close()

	items := make([]Exchange, 0, limit)
	for rows.Next() {
		var (
			ex       Exchange
			role, ts string
			redacted bool
		)
		if err := rows.Scan(&ex.ID, &ex.UserID, &ex.Seq, &role, &ex.Content, &redacted, &ts); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}
		ex.Role = Role(role)
		ex.PIIRedacted = redacted
		ex.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		items = append(items, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange rows: %w", err)
	}

	reverseExchanges(items)
	return items, nil
}

func (s *SQLiteLog) Close() error {
	return s.db.Close()
}
