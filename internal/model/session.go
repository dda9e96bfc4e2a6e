package model

import "time"

// SessionRecord is the authoritative in-memory record of an active listening
// session. A durable audit copy is written to the store but never consulted
// for authorization decisions.
type SessionRecord struct {
	ID        string    `json:"id" db:"session_id"`
	Address   string    `json:"address" db:"address"` // canonical owner address
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Verified  bool      `json:"verified" db:"verified"`
}

// IsExpired reports whether the session is past its expiry at the given instant.
func (s *SessionRecord) IsExpired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
