package storage

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key_hash TEXT UNIQUE NOT NULL,
			key_prefix TEXT NOT NULL,
			address TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_address ON api_keys(address)`,

		`CREATE TABLE IF NOT EXISTS session_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT UNIQUE NOT NULL,
			address TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			verified INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS user_blocks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			address TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMP,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)`,
		// At most one active block per address; historical rows stay around.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_blocks_active
			ON user_blocks(address) WHERE is_active = 1`,

		`CREATE TABLE IF NOT EXISTS suspicious_activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			address TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL,
			detected_at TIMESTAMP NOT NULL,
			resolved INTEGER NOT NULL DEFAULT 0,
			resolved_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_suspicious_address ON suspicious_activity(address)`,

		`CREATE TABLE IF NOT EXISTS nft_listens (
			nft_address TEXT PRIMARY KEY,
			listen_count INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS session_listens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_address TEXT NOT NULL,
			nft_address TEXT NOT NULL,
			collection_address TEXT NOT NULL DEFAULT '',
			listen_count INTEGER NOT NULL DEFAULT 0,
			first_listen_at TIMESTAMP NOT NULL,
			last_listen_at TIMESTAMP NOT NULL,
			UNIQUE(user_address, nft_address)
		)`,

		// Raw listen events feed the detector's sliding-window counts.
		`CREATE TABLE IF NOT EXISTS listen_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_address TEXT NOT NULL,
			nft_address TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listen_events_user_time
			ON listen_events(user_address, recorded_at)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// ALTER TABLE ADD COLUMN fails if the column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
