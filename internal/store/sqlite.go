package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite opens (or creates) the cache database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	// The cache has a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}

	s := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
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
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return nil
}

// GetSetting returns a device-level setting.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// PutSetting creates or replaces a device-level setting.
func (s *SQLiteStore) PutSetting(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`

	return shared.RetryOnConflict(ctx, s.retry, "put_setting", func() error {
		if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
			return fmt.Errorf("put setting %s: %w", key, err)
		}
		return nil
	})
}

// ListConversations returns conversation metadata, most recently used first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	query := `
		SELECT id, title, message_count, updated_at
		FROM conversations ORDER BY updated_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	var out []domain.ConversationSummary
	for rows.Next() {
		var sum domain.ConversationSummary
		var updatedAt int64
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.MessageCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		sum.UpdatedAt = time.Unix(0, updatedAt)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// GetConversation returns the full snapshot, or nil when not cached.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	var messagesJSON string

	row := s.db.QueryRowContext(ctx, `SELECT id, title, messages_json FROM conversations WHERE id = ?`, id)
	err := row.Scan(&conv.ID, &conv.Title, &messagesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", id, err)
	}
	return &conv, nil
}

// SaveConversation replaces the whole snapshot of a conversation.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	msgs := conv.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode messages of %s: %w", conv.ID, err)
	}

	query := `
	INSERT INTO conversations (id, title, messages_json, message_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		messages_json = excluded.messages_json,
		message_count = excluded.message_count,
		updated_at = excluded.updated_at`

	now := time.Now().UnixNano()
	return shared.RetryOnConflict(ctx, s.retry, "save_conversation", func() error {
		_, err := s.db.ExecContext(ctx, query, conv.ID, conv.Title, string(data), len(msgs), now, now)
		if err != nil {
			return fmt.Errorf("save conversation %s: %w", conv.ID, err)
		}
		return nil
	})
}

// TouchConversation marks a conversation as used at the given time.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	return shared.RetryOnConflict(ctx, s.retry, "touch_conversation", func() error {
		result, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, at.UnixNano(), id)
		if err != nil {
			return fmt.Errorf("touch conversation %s: %w", id, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			slog.Debug("TouchConversation affected 0 rows", "conversation_id", id)
		}
		return nil
	})
}

// DeleteConversation removes a snapshot.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	return shared.RetryOnConflict(ctx, s.retry, "delete_conversation", func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete conversation %s: %w", id, err)
		}
		return nil
	})
}
