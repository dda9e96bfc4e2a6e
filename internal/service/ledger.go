package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tonbeats/tonbeats/internal/model"
	"github.com/tonbeats/tonbeats/internal/storage"
	"github.com/tonbeats/tonbeats/internal/tonx"
)

// Ledger fronts the transactional listen counters. It normalizes every
// address before it is used as a key; raw-form comparison anywhere below
// this point is a defect.
type Ledger struct {
	store *storage.Store
}

// NewLedger builds a ledger over the store.
func NewLedger(store *storage.Store) *Ledger {
	return &Ledger{store: store}
}

// RecordSessionListen normalizes the addresses and performs the transactional
// counter update. storage.ErrListenTooSoon surfaces unchanged so the edge can
// map it to a soft rejection.
func (l *Ledger) RecordSessionListen(ctx context.Context, user, nft, collection string, clientTS time.Time) (int64, error) {
	userAddr, err := tonx.Normalize(user)
	if err != nil {
		return 0, fmt.Errorf("user address: %w", err)
	}
	nftAddr, err := tonx.Normalize(nft)
	if err != nil {
		return 0, fmt.Errorf("nft address: %w", err)
	}

	collectionAddr := ""
	if collection != "" {
		if collectionAddr, err = tonx.Normalize(collection); err != nil {
			return 0, fmt.Errorf("collection address: %w", err)
		}
	}

	return l.store.RecordSessionListen(ctx, userAddr, nftAddr, collectionAddr, clientTS)
}

// NFTListens returns the aggregate counter for a track.
func (l *Ledger) NFTListens(ctx context.Context, nft string) (*model.NFTListens, error) {
	nftAddr, err := tonx.Normalize(nft)
	if err != nil {
		return nil, err
	}
	return l.store.GetNFTListens(ctx, nftAddr)
}

// TopNFTListens returns the most played tracks.
func (l *Ledger) TopNFTListens(ctx context.Context, limit int) ([]model.NFTListens, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return l.store.TopNFTListens(ctx, limit)
}
