package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tonbeats/tonbeats/internal/model"
)

// GetActiveBlock returns the active block for an address, or (nil, nil) when
// none exists. Rows whose expiry has passed are returned as-is; callers
// decide effect via UserBlock.InEffect.
func (s *Store) GetActiveBlock(ctx context.Context, address string) (*model.UserBlock, error) {
	var block model.UserBlock
	err := s.db.GetContext(ctx, &block,
		s.rebind(`SELECT * FROM user_blocks WHERE address = ? AND is_active = ?`),
		address, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	return &block, nil
}

// CreateBlock inserts an active block. The partial unique index rejects a
// second active block for the same address.
func (s *Store) CreateBlock(ctx context.Context, block *model.UserBlock) error {
	block.IsActive = true
	if block.CreatedAt.IsZero() {
		block.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO user_blocks (address, reason, expires_at, is_active, created_at)
			VALUES (?, ?, ?, ?, ?)`),
		block.Address, block.Reason, block.ExpiresAt, block.IsActive, block.CreatedAt)
	if err != nil {
		return fmt.Errorf("create block: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		block.ID = id
	}
	return nil
}

// LiftBlock deactivates the active block for an address. Returns the number
// of rows affected (0 means there was nothing to lift).
func (s *Store) LiftBlock(ctx context.Context, address string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE user_blocks SET is_active = ? WHERE address = ? AND is_active = ?`),
		false, address, true)
	if err != nil {
		return 0, fmt.Errorf("lift block: %w", err)
	}
	return res.RowsAffected()
}

// ListBlocks returns block rows, optionally restricted to active ones.
func (s *Store) ListBlocks(ctx context.Context, activeOnly bool) ([]model.UserBlock, error) {
	var blocks []model.UserBlock
	if activeOnly {
		err := s.db.SelectContext(ctx, &blocks,
			s.rebind(`SELECT * FROM user_blocks WHERE is_active = ? ORDER BY created_at DESC`), true)
		return blocks, err
	}
	err := s.db.SelectContext(ctx, &blocks,
		`SELECT * FROM user_blocks ORDER BY created_at DESC`)
	return blocks, err
}
