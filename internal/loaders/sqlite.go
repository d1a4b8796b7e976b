package loaders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Conversly/assistant-relay/internal/utils"
)

var ErrThreadNotFound = errors.New("thread mapping not found")

// SQLiteClient is the single local key-value file holding user -> thread
// mappings.
type SQLiteClient struct {
	db *sql.DB
}

// ThreadRow represents a row of the threads table
type ThreadRow struct {
	UserID    string
	ThreadID  string
	CreatedAt time.Time
}

func NewSQLiteClient(path string) (*SQLiteClient, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer is all this file ever sees.
	db.SetMaxOpenConns(1)

	client := &SQLiteClient{db: db}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	utils.Zlog.Info("Thread database ready", zap.String("path", path))
	return client, nil
}

func (c *SQLiteClient) createSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			user_id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create threads table: %w", err)
	}
	return nil
}

func (c *SQLiteClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *SQLiteClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// GetThread returns the mapping for a user or ErrThreadNotFound.
func (c *SQLiteClient) GetThread(ctx context.Context, userID string) (ThreadRow, error) {
	row := ThreadRow{UserID: userID}
	var createdAt string
	err := c.db.QueryRowContext(ctx,
		`SELECT thread_id, created_at FROM threads WHERE user_id = ?`, userID,
	).Scan(&row.ThreadID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ThreadRow{}, ErrThreadNotFound
	}
	if err != nil {
		return ThreadRow{}, fmt.Errorf("failed to query thread for user %s: %w", userID, err)
	}

	row.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return ThreadRow{}, fmt.Errorf("failed to parse created_at for user %s: %w", userID, err)
	}
	return row, nil
}

// PutThread stores (or replaces) the mapping for a user.
func (c *SQLiteClient) PutThread(ctx context.Context, userID, threadID string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO threads (user_id, thread_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET thread_id = excluded.thread_id, created_at = excluded.created_at
	`, userID, threadID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store thread for user %s: %w", userID, err)
	}
	return nil
}

// DeleteThread removes the mapping for a user. It reports whether a row existed.
func (c *SQLiteClient) DeleteThread(ctx context.Context, userID string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM threads WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete thread for user %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// CountThreads returns the number of stored mappings.
func (c *SQLiteClient) CountThreads(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count threads: %w", err)
	}
	return n, nil
}
