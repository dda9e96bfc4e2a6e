package model

import "time"

// APIKey represents a long-lived bearer credential bound to a wallet address.
// The raw key is 32 random bytes hex-encoded (64 characters); only a SHA-256
// hash and a short prefix for identification are persisted.
type APIKey struct {
	ID        int64     `json:"id" db:"id"`
	KeyHash   string    `json:"-" db:"key_hash"` // SHA-256 hash, never expose
	KeyPrefix string    `json:"key_prefix" db:"key_prefix"`
	Address   string    `json:"address" db:"address"` // canonical owner address
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// IsExpired reports whether the key is past its expiry at the given instant.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt.Before(now)
}
