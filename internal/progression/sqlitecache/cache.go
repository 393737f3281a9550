// Package sqlitecache is the locally persisted mirror used by the CLI: the
// last confirmed progress snapshot per user and the signed-in session.
package sqlitecache

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"deepsafe/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Cache is a SQLite-backed progression.Cache.
type Cache struct {
	db *sql.DB
}

// Session is the signed-in CLI session.
type Session struct {
	Server       string
	UserID       string
	AccessToken  string
	RefreshToken string
}

// Open creates or opens the cache at path and applies the schema.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}

	// SQLite allows one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Load returns the cached snapshot for userID. A snapshot that no longer
// validates is treated as missing.
func (c *Cache) Load(ctx context.Context, userID string) (model.Progress, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, `SELECT snapshot FROM progress WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Progress{}, false, nil
	}
	if err != nil {
		return model.Progress{}, false, fmt.Errorf("failed to read cached progress: %w", err)
	}

	var p model.Progress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return model.Progress{}, false, nil
	}
	if err := p.Validate(); err != nil {
		return model.Progress{}, false, nil
	}
	return p, true, nil
}

// Save stores p unless a newer version is already cached.
func (c *Cache) Save(ctx context.Context, p model.Progress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	const query = `
		INSERT INTO progress (user_id, version, snapshot, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET version = excluded.version, snapshot = excluded.snapshot, saved_at = excluded.saved_at
		WHERE excluded.version >= progress.version
	`
	if _, err := c.db.ExecContext(ctx, query, p.UserID, p.Version, string(raw), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to write cached progress: %w", err)
	}
	return nil
}

// Clear drops every cached snapshot and the session.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM progress; DELETE FROM session;`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// SaveSession replaces the stored session.
func (c *Cache) SaveSession(ctx context.Context, s Session) error {
	const query = `
		INSERT INTO session (id, server, user_id, access_token, refresh_token)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET server = excluded.server, user_id = excluded.user_id,
		    access_token = excluded.access_token, refresh_token = excluded.refresh_token
	`
	if _, err := c.db.ExecContext(ctx, query, s.Server, s.UserID, s.AccessToken, s.RefreshToken); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session, if any.
func (c *Cache) LoadSession(ctx context.Context) (Session, bool, error) {
	var s Session
	err := c.db.QueryRowContext(ctx,
		`SELECT server, user_id, access_token, refresh_token FROM session WHERE id = 1`,
	).Scan(&s.Server, &s.UserID, &s.AccessToken, &s.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("failed to read session: %w", err)
	}
	return s, true, nil
}
