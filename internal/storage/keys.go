package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tonbeats/tonbeats/internal/model"
)

// HashAPIKey returns the hex SHA-256 of a raw API key. Raw keys are never
// stored.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// ReplaceAPIKey deletes every prior key for the owner address (plus any
// globally expired keys) and inserts the new one, all in one transaction.
// This enforces the at-most-one-live-key-per-address rule.
func (s *Store) ReplaceAPIKey(ctx context.Context, key *model.APIKey) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.rebind(`DELETE FROM api_keys WHERE address = ? OR expires_at < ?`),
		key.Address, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("delete prior keys: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO api_keys (key_hash, key_prefix, address, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?)`),
		key.KeyHash, key.KeyPrefix, key.Address, key.CreatedAt, key.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert key: %w", err)
	}

	return tx.Commit()
}

// GetAPIKeyByHash looks up a key by its stored hash. Returns (nil, nil) when
// no such key exists.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	err := s.db.GetContext(ctx, &key,
		s.rebind(`SELECT * FROM api_keys WHERE key_hash = ?`), hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// DeleteAPIKeyByHash removes a key row; used to opportunistically purge
// expired keys on read.
func (s *Store) DeleteAPIKeyByHash(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM api_keys WHERE key_hash = ?`), hash)
	return err
}

// ListAPIKeys returns all stored keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := s.db.SelectContext(ctx, &keys,
		`SELECT * FROM api_keys ORDER BY created_at DESC`)
	return keys, err
}
