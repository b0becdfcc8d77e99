// Package sqlite provides SQLite-based persistent storage for the engine.
// Uses WAL mode for concurrent reads and crash-safe writes. It backs both
// the local durable key-value store and the offline/test implementation of
// the ranking authority.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Local durable store: one JSON blob per engine state bundle
		// (quest store, streak data, experiment usage).
		`CREATE TABLE IF NOT EXISTS engine_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Week identity registry. Populated by the sync layer from the
		// remote authority; absent rows mean "authority unavailable".
		`CREATE TABLE IF NOT EXISTS week_registry (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Weekly league cohorts.
		`CREATE TABLE IF NOT EXISTS leagues (
			id         TEXT PRIMARY KEY,
			week_id    TEXT NOT NULL,
			tier       INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leagues_week_tier ON leagues(week_id, tier)`,

		// League membership. week_id is denormalized so the one-league-
		// per-week rule is a plain unique constraint.
		`CREATE TABLE IF NOT EXISTS league_members (
			league_id  TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			week_id    TEXT NOT NULL,
			weekly_xp  INTEGER NOT NULL DEFAULT 0,
			final_rank INTEGER NOT NULL DEFAULT 0,
			promoted   BOOLEAN NOT NULL DEFAULT 0,
			demoted    BOOLEAN NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (league_id, user_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_members_user_week ON league_members(user_id, week_id)`,

		// Lifetime XP per user (matchmaking input).
		`CREATE TABLE IF NOT EXISTS leaderboard (
			user_id  TEXT PRIMARY KEY,
			total_xp INTEGER NOT NULL DEFAULT 0
		)`,

		// End-of-week rewards held until the user claims them.
		`CREATE TABLE IF NOT EXISTS pending_rewards (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			week_id    TEXT NOT NULL,
			gems       INTEGER NOT NULL,
			badges     TEXT NOT NULL DEFAULT '[]',
			claimed    BOOLEAN NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			UNIQUE (user_id, week_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Local KV Store (domain.KVStore) ────────────────────────────────────────

// Set stores an engine state key-value pair.
func (d *DB) Set(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO engine_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// Get retrieves an engine state value by key. Returns "" if key not found.
func (d *DB) Get(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM engine_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Remove deletes an engine state key.
func (d *DB) Remove(key string) error {
	_, err := d.db.Exec(`DELETE FROM engine_state WHERE key = ?`, key)
	return err
}
