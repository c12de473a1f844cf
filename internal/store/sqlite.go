package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/eduvane/internal/domain"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets history reads proceed during writes.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON conversation_turns(user_id, session_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListSummaries implements Repository.
func (s *SQLiteStore) ListSummaries(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, title, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?`, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationSummary, 0)
	for rows.Next() {
		var sum domain.ConversationSummary
		var updatedAt int64
		if err := rows.Scan(&sum.SessionID, &sum.Title, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		sum.UpdatedAt = time.Unix(0, updatedAt).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// History implements Repository.
func (s *SQLiteStore) History(ctx context.Context, userID, sessionID string) ([]domain.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at
		FROM conversation_turns
		WHERE user_id = ? AND session_id = ?
		ORDER BY id ASC`, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationTurn, 0)
	for rows.Next() {
		var turn domain.ConversationTurn
		var role string
		var createdAt int64
		if err := rows.Scan(&role, &turn.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turn.Role = domain.TurnRole(role)
		turn.Timestamp = time.Unix(0, createdAt).UTC()
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}

// SaveExchange implements Repository.
func (s *SQLiteStore) SaveExchange(ctx context.Context, ex Exchange) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	turns := ex.Turns()
	return withBusyRetry(ctx, "save exchange", func() error {
		return s.saveExchangeTx(ctx, ex, turns)
	})
}

func (s *SQLiteStore) saveExchangeTx(ctx context.Context, ex Exchange, turns []domain.ConversationTurn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := turns[len(turns)-1].Timestamp.UnixNano()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (user_id, session_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at`,
		ex.UserID, ex.SessionID, ex.Title(), now, now,
	); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	for _, t := range turns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_turns (user_id, session_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			ex.UserID, ex.SessionID, string(t.Role), t.Content, t.Timestamp.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exchange: %w", err)
	}
	return nil
}
