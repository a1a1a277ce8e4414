// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides thread/message archiving with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/docs-copilot/internal/conversation"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Writers would otherwise fail with SQLITE_BUSY under concurrent sessions.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			session_key TEXT NOT NULL DEFAULT '',
			opened_at TEXT NOT NULL,
			closed_at TEXT,
			remote_acknowledged INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			role TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			tool_json TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (thread_id) REFERENCES threads(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_thread_created
			ON messages(thread_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveMessage archives msg under threadID, creating the thread row on first use.
func (s *SQLiteStore) SaveMessage(ctx context.Context, sessionKey, threadID string, msg conversation.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (id, session_key, opened_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET session_key = excluded.session_key
		WHERE threads.session_key = ''
	`, threadID, sessionKey, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("upserting thread: %w", err)
	}

	var toolJSON sql.NullString
	if msg.Kind == conversation.KindToolCall {
		data, err := json.Marshal(msg.Tool)
		if err != nil {
			return fmt.Errorf("encoding tool call: %w", err)
		}
		toolJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, role, kind, content, tool_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, threadID, string(msg.Role), msg.Kind.String(), msg.Content, toolJSON, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}
	return nil
}

// CloseThread marks a thread closed with the outcome of its remote reset.
func (s *SQLiteStore) CloseThread(ctx context.Context, threadID string, remoteAcknowledged bool) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, opened_at, closed_at, remote_acknowledged)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			closed_at = excluded.closed_at,
			remote_acknowledged = excluded.remote_acknowledged
	`, threadID, now, now, remoteAcknowledged)
	if err != nil {
		return fmt.Errorf("closing thread: %w", err)
	}

	s.logger.Debug("closed thread", "thread_id", threadID, "remote_acknowledged", remoteAcknowledged)
	return nil
}

// GetThread retrieves a thread by ID.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	var (
		thread   Thread
		openedAt string
		closedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_key, opened_at, closed_at, remote_acknowledged
		FROM threads
		WHERE id = ?
	`, id).Scan(&thread.ID, &thread.SessionKey, &openedAt, &closedAt, &thread.RemoteAcknowledged)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}

	thread.OpenedAt, err = time.Parse(timeLayout, openedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing opened_at: %w", err)
	}
	if closedAt.Valid {
		t, err := time.Parse(timeLayout, closedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing closed_at: %w", err)
		}
		thread.ClosedAt = &t
	}
	return &thread, nil
}

// GetThreadMessages returns up to limit archived messages in creation order.
func (s *SQLiteStore) GetThreadMessages(ctx context.Context, threadID string, limit int) ([]conversation.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, kind, content, tool_json, created_at
		FROM messages
		WHERE thread_id = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?
	`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []conversation.Message
	for rows.Next() {
		var (
			msg       conversation.Message
			role      string
			kind      string
			toolJSON  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &role, &kind, &msg.Content, &toolJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = conversation.Role(role)
		if kind == conversation.KindToolCall.String() {
			msg.Kind = conversation.KindToolCall
		}
		if toolJSON.Valid {
			if err := json.Unmarshal([]byte(toolJSON.String), &msg.Tool); err != nil {
				return nil, fmt.Errorf("decoding tool call: %w", err)
			}
		}
		msg.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
