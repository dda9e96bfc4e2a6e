package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tonbeats/tonbeats/internal/model"
)

// ListenFloor is the minimum spacing between two recorded listens for the
// same (user, nft) pair, enforced inside the ledger transaction independently
// of the detector.
const ListenFloor = 30 * time.Second

// ErrListenTooSoon means the previous record for the pair is within the
// anti-flood floor.
var ErrListenTooSoon = errors.New("listen recorded too recently")

// RecordSessionListen performs the transactional ledger update: floor check,
// per-(user, nft) count increment, per-nft aggregate increment and the raw
// event append. All steps commit or roll back together. Returns the updated
// per-user count.
func (s *Store) RecordSessionListen(ctx context.Context, user, nft, collection string, ts time.Time) (int64, error) {
	ts = ts.UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Postgres runs READ COMMITTED, so without a row lock two concurrent
	// transactions for the same pair would both read the old last_listen_at
	// and both pass the floor. The lock serializes them; sqlite already
	// serializes writers.
	floorQuery := `SELECT last_listen_at FROM session_listens WHERE user_address = ? AND nft_address = ?`
	if s.driver == driverPostgres {
		floorQuery += ` FOR UPDATE`
	}

	var last time.Time
	err = tx.GetContext(ctx, &last, s.rebind(floorQuery), user, nft)
	switch {
	case err == nil:
		// The floor is a distance, not a direction: a batch synced out of
		// order must not be rejected for carrying an earlier timestamp.
		if d := ts.Sub(last); d > -ListenFloor && d < ListenFloor {
			return 0, ErrListenTooSoon
		}
	case errors.Is(err, sql.ErrNoRows):
		// first listen for this pair
	default:
		return 0, fmt.Errorf("read last listen: %w", err)
	}

	// last_listen_at may only advance forward, even if the client-supplied
	// timestamp lags the stored one.
	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO session_listens
				(user_address, nft_address, collection_address, listen_count, first_listen_at, last_listen_at)
			VALUES (?, ?, ?, 1, ?, ?)
			ON CONFLICT(user_address, nft_address) DO UPDATE SET
				listen_count = session_listens.listen_count + 1,
				collection_address = excluded.collection_address,
				last_listen_at = CASE
					WHEN excluded.last_listen_at > session_listens.last_listen_at
					THEN excluded.last_listen_at
					ELSE session_listens.last_listen_at
				END`),
		user, nft, collection, ts, ts,
	); err != nil {
		return 0, fmt.Errorf("upsert session listens: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO nft_listens (nft_address, listen_count, updated_at)
			VALUES (?, 1, ?)
			ON CONFLICT(nft_address) DO UPDATE SET
				listen_count = nft_listens.listen_count + 1,
				updated_at = excluded.updated_at`),
		nft, now,
	); err != nil {
		return 0, fmt.Errorf("upsert nft listens: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO listen_events (user_address, nft_address, recorded_at) VALUES (?, ?, ?)`),
		user, nft, now,
	); err != nil {
		return 0, fmt.Errorf("append listen event: %w", err)
	}

	var count int64
	if err := tx.GetContext(ctx, &count,
		s.rebind(`SELECT listen_count FROM session_listens WHERE user_address = ? AND nft_address = ?`),
		user, nft,
	); err != nil {
		return 0, fmt.Errorf("read updated count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return count, nil
}

// CountListenEvents counts all recorded listen events.
func (s *Store) CountListenEvents(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM listen_events`)
	return n, err
}

// CountListenEventsSince counts a user's recorded listens after the cutoff.
func (s *Store) CountListenEventsSince(ctx context.Context, user string, since time.Time) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		s.rebind(`SELECT COUNT(*) FROM listen_events WHERE user_address = ? AND recorded_at > ?`),
		user, since.UTC())
	return n, err
}

// CountNFTListenEventsSince counts a user's recorded listens of one track
// after the cutoff.
func (s *Store) CountNFTListenEventsSince(ctx context.Context, user, nft string, since time.Time) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		s.rebind(`SELECT COUNT(*) FROM listen_events
			WHERE user_address = ? AND nft_address = ? AND recorded_at > ?`),
		user, nft, since.UTC())
	return n, err
}

// GetNFTListens returns the aggregate counter for a track, or (nil, nil) if
// it has never been played.
func (s *Store) GetNFTListens(ctx context.Context, nft string) (*model.NFTListens, error) {
	var row model.NFTListens
	err := s.db.GetContext(ctx, &row,
		s.rebind(`SELECT * FROM nft_listens WHERE nft_address = ?`), nft)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get nft listens: %w", err)
	}
	return &row, nil
}

// TopNFTListens returns the most played tracks.
func (s *Store) TopNFTListens(ctx context.Context, limit int) ([]model.NFTListens, error) {
	var rows []model.NFTListens
	err := s.db.SelectContext(ctx, &rows,
		s.rebind(`SELECT * FROM nft_listens ORDER BY listen_count DESC LIMIT ?`), limit)
	return rows, err
}
