// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// The portal runs as a single process with a small, write-light dataset:
// profiles, the video catalogue and the webhook audit log. An embedded
// database file sits next to the binary and is backed up by copying it.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain. One *DB owns the connection pool; the per-table stores
// (Profiles, Videos, WebhookEvents) share it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and hands out per-table stores.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/portal.db" → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// WHY ONE CONNECTION FOR ":memory:"?
	// sql.DB is a pool, and each new connection to ":memory:" opens a fresh,
	// empty database. Migrations would run on one connection and the next
	// query could land on another that has no tables. Pinning the pool to a
	// single connection keeps every query on the same in-memory database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL MODE:
	// In the default rollback journal a writer locks readers out. With WAL,
	// catalogue reads keep going while a webhook or login write is in flight,
	// and busy_timeout below makes a second writer wait instead of failing
	// with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// PingContext checks the database is reachable. Used by the health endpoint.
func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Profiles returns the profile store.
func (db *DB) Profiles() *ProfileStore {
	return &ProfileStore{conn: db.conn}
}

// Videos returns the video store.
func (db *DB) Videos() *VideoStore {
	return &VideoStore{conn: db.conn}
}

// WebhookEvents returns the billing webhook audit store.
func (db *DB) WebhookEvents() *WebhookEventStore {
	return &WebhookEventStore{conn: db.conn}
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	// discord_id is UNIQUE: one profile per Discord account.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id                  TEXT PRIMARY KEY,
			discord_id          TEXT NOT NULL UNIQUE,
			email               TEXT NOT NULL DEFAULT '',
			avatar_url          TEXT NOT NULL DEFAULT '',
			role                TEXT NOT NULL DEFAULT 'guest',
			subscription_status TEXT NOT NULL DEFAULT 'inactive',
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_profiles_created_at ON profiles(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	if err := db.addColumnIfNotExists("profiles", "stripe_customer_id", "TEXT"); err != nil {
		return fmt.Errorf("adding stripe_customer_id to profiles: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_profiles_stripe_customer_id ON profiles(stripe_customer_id);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles customer index: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS videos (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL,
			description   TEXT,
			video_url     TEXT NOT NULL,
			thumbnail_url TEXT,
			content_type  TEXT NOT NULL DEFAULT 'video',
			is_published  INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_videos_created_at ON videos(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating videos table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS webhook_events (
			id                TEXT PRIMARY KEY,
			provider          TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type        TEXT NOT NULL,
			outcome           TEXT NOT NULL DEFAULT 'received',
			error             TEXT NOT NULL DEFAULT '',
			received_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed_at      DATETIME,
			UNIQUE (provider, provider_event_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating webhook_events table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations safe to re-run.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
