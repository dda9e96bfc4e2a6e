package model

import (
	"database/sql"
	"time"
)

// UserBlock bars a wallet address from recording listens. At most one active
// block may exist per address; a block whose expiry has passed is logically
// inactive even before the active flag is cleared.
type UserBlock struct {
	ID        int64        `json:"id" db:"id"`
	Address   string       `json:"address" db:"address"` // canonical
	Reason    string       `json:"reason" db:"reason"`
	ExpiresAt sql.NullTime `json:"expires_at,omitempty" db:"expires_at"` // null = permanent
	IsActive  bool         `json:"is_active" db:"is_active"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// InEffect reports whether the block actually bars the user at the given
// instant, accounting for expired-but-unswept rows.
func (b *UserBlock) InEffect(now time.Time) bool {
	if !b.IsActive {
		return false
	}
	if b.ExpiresAt.Valid && b.ExpiresAt.Time.Before(now) {
		return false
	}
	return true
}
