// Package sqlite provides a SQLite-backed chat cache.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	messages   TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS chats_created_at ON chats (created_at);
`

const upsert = `
INSERT INTO chats (id, title, messages, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title      = excluded.title,
	messages   = excluded.messages,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at`

// SQLiteDriver implements storage.Driver on a single SQLite table. Messages
// are stored as a JSON array.
type SQLiteDriver struct {
	db *sql.DB
}

// NewSQLiteDriver opens (and creates if needed) the cache at dbPath.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(dbPath string) (*SQLiteDriver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteDriver{db: db}, nil
}

// Put inserts or replaces a chat.
func (d *SQLiteDriver) Put(ctx context.Context, c chat.Chat) error {
	if c.ID == "" {
		return storage.ErrMissingID
	}
	return put(ctx, d.db, c)
}

// Get retrieves a chat by ID.
func (d *SQLiteDriver) Get(ctx context.Context, id string) (chat.Chat, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, title, messages, created_at, updated_at FROM chats WHERE id = ?`, id)

	c, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Chat{}, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return chat.Chat{}, fmt.Errorf("getting chat %s: %w", id, err)
	}
	return c, nil
}

// List returns all cached chats, oldest first.
func (d *SQLiteDriver) List(ctx context.Context) ([]chat.Chat, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, title, messages, created_at, updated_at FROM chats`)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var chats []chat.Chat
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}

	// RFC3339Nano drops trailing zeros, so text order is not time order.
	storage.SortOldestFirst(chats)
	return chats, nil
}

// Replace swaps the cache contents for chats in one transaction.
func (d *SQLiteDriver) Replace(ctx context.Context, chats []chat.Chat) error {
	for _, c := range chats {
		if c.ID == "" {
			return storage.ErrMissingID
		}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chats`); err != nil {
		return fmt.Errorf("clearing chats: %w", err)
	}
	for _, c := range chats {
		if err := put(ctx, tx, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chats: %w", err)
	}
	return nil
}

// Delete removes a chat by ID.
func (d *SQLiteDriver) Delete(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}
	return nil
}

// DeleteAll empties the cache.
func (d *SQLiteDriver) DeleteAll(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM chats`); err != nil {
		return fmt.Errorf("deleting all chats: %w", err)
	}
	return nil
}

// Close closes the database.
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, c chat.Chat) error {
	c = storage.Settled(c)

	messages, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("marshaling messages for chat %s: %w", c.ID, err)
	}
	if c.Messages == nil {
		messages = []byte("[]")
	}

	_, err = db.ExecContext(ctx, upsert,
		c.ID,
		c.Title,
		string(messages),
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
		c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storing chat %s: %w", c.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (chat.Chat, error) {
	var (
		c                    chat.Chat
		messages             string
		createdAt, updatedAt string
	)
	if err := s.Scan(&c.ID, &c.Title, &messages, &createdAt, &updatedAt); err != nil {
		return chat.Chat{}, err
	}

	if err := json.Unmarshal([]byte(messages), &c.Messages); err != nil {
		return chat.Chat{}, fmt.Errorf("decoding messages for chat %s: %w", c.ID, err)
	}

	var err error
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return chat.Chat{}, fmt.Errorf("parsing created_at for chat %s: %w", c.ID, err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return chat.Chat{}, fmt.Errorf("parsing updated_at for chat %s: %w", c.ID, err)
	}
	return c, nil
}
