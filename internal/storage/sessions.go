package storage

import (
	"context"
	"fmt"

	"github.com/tonbeats/tonbeats/internal/model"
)

// InsertSessionAudit mirrors an in-memory session record as a durable audit
// row. The audit copy is informational only; the in-memory record stays
// authoritative for authorization.
func (s *Store) InsertSessionAudit(ctx context.Context, rec *model.SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO session_audit (session_id, address, created_at, expires_at, verified)
			VALUES (?, ?, ?, ?, ?)`),
		rec.ID, rec.Address, rec.CreatedAt, rec.ExpiresAt, rec.Verified)
	if err != nil {
		return fmt.Errorf("insert session audit: %w", err)
	}
	return nil
}

// CountSessionAudit returns the total number of audited sessions; used by
// the telemetry heartbeat.
func (s *Store) CountSessionAudit(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM session_audit`)
	return n, err
}
