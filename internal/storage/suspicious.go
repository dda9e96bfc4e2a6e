package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/tonbeats/tonbeats/internal/model"
)

// InsertSuspiciousActivity appends an audit record. Rows are append-only;
// nothing but the resolution state is ever changed afterwards.
func (s *Store) InsertSuspiciousActivity(ctx context.Context, a *model.SuspiciousActivity) error {
	if a.DetectedAt.IsZero() {
		a.DetectedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO suspicious_activity
				(address, activity_type, description, severity, detected_at, resolved)
			VALUES (?, ?, ?, ?, ?, ?)`),
		a.Address, a.ActivityType, a.Description, a.Severity, a.DetectedAt, false)
	if err != nil {
		return fmt.Errorf("insert suspicious activity: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}
	return nil
}

// ListOpenSuspiciousActivity returns unresolved audit records, newest first.
func (s *Store) ListOpenSuspiciousActivity(ctx context.Context, limit int) ([]model.SuspiciousActivity, error) {
	var rows []model.SuspiciousActivity
	err := s.db.SelectContext(ctx, &rows,
		s.rebind(`SELECT * FROM suspicious_activity WHERE resolved = ?
			ORDER BY detected_at DESC LIMIT ?`),
		false, limit)
	return rows, err
}

// ResolveSuspiciousActivity marks a record resolved with the current time.
func (s *Store) ResolveSuspiciousActivity(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE suspicious_activity SET resolved = ?, resolved_at = ? WHERE id = ?`),
		true, time.Now().UTC(), id)
	return err
}
