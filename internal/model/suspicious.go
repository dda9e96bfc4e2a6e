package model

import (
	"database/sql"
	"time"
)

// Severity tiers for suspicious-activity audit records.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Activity types recorded by the detector.
const (
	ActivityHourlyVolume  = "hourly_volume"
	ActivityDailyVolume   = "daily_volume"
	ActivityNFTRepetition = "nft_repetition"
)

// SuspiciousActivity is an append-only audit record produced by the detector.
// Rows are never mutated except to mark them resolved.
type SuspiciousActivity struct {
	ID           int64        `json:"id" db:"id"`
	Address      string       `json:"address" db:"address"` // canonical
	ActivityType string       `json:"activity_type" db:"activity_type"`
	Description  string       `json:"description" db:"description"`
	Severity     string       `json:"severity" db:"severity"`
	DetectedAt   time.Time    `json:"detected_at" db:"detected_at"`
	Resolved     bool         `json:"resolved" db:"resolved"`
	ResolvedAt   sql.NullTime `json:"resolved_at,omitempty" db:"resolved_at"`
}
