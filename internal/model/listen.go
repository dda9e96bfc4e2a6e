package model

import "time"

// NFTListens is the per-track aggregate play counter.
type NFTListens struct {
	NFTAddress  string    `json:"nft_address" db:"nft_address"`
	ListenCount int64     `json:"listen_count" db:"listen_count"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SessionListens is the per-(user, track) play counter. ListenCount only
// increases and LastListenAt only moves forward within a single update.
type SessionListens struct {
	UserAddress       string    `json:"user_address" db:"user_address"`
	NFTAddress        string    `json:"nft_address" db:"nft_address"`
	CollectionAddress string    `json:"collection_address" db:"collection_address"`
	ListenCount       int64     `json:"listen_count" db:"listen_count"`
	FirstListenAt     time.Time `json:"first_listen_at" db:"first_listen_at"`
	LastListenAt      time.Time `json:"last_listen_at" db:"last_listen_at"`
}
