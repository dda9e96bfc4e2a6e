package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonbeats/tonbeats/internal/model"
	"github.com/tonbeats/tonbeats/internal/storage"
)

// DetectorRules holds the thresholds and per-check failure policy for the
// suspicious-activity detector. The fail-open/fail-closed split is explicit
// configuration so the policy is auditable per rule.
type DetectorRules struct {
	HourlyLimit int // listens per user per trailing hour
	DailyLimit  int // listens per user per trailing 24h
	PerNFTLimit int // listens per (user, nft) per trailing hour

	// BlockCheckFailOpen treats a failed block lookup as "not blocked".
	BlockCheckFailOpen bool
	// VolumeCheckFailOpen treats a failed count query as "not suspicious".
	VolumeCheckFailOpen bool
}

// DefaultDetectorRules returns the production thresholds. Both sub-checks
// fail open: a detection outage must not reject legitimate writes.
func DefaultDetectorRules() DetectorRules {
	return DetectorRules{
		HourlyLimit:         50,
		DailyLimit:          500,
		PerNFTLimit:         10,
		BlockCheckFailOpen:  true,
		VolumeCheckFailOpen: true,
	}
}

// Verdict is the detector's answer for one listen-record request.
type Verdict struct {
	Suspicious bool
	Reason     string
}

// Detector is the rule-based evaluator gating writes to the listen ledger.
// It combines persisted listen history, block status and per-request signals.
// The detector is advisory: it soft-rejects, it never blocks durably.
type Detector struct {
	store  *storage.Store
	rules  DetectorRules
	logger *slog.Logger
}

// NewDetector builds a detector over the given store and rule set.
func NewDetector(store *storage.Store, rules DetectorRules, logger *slog.Logger) *Detector {
	return &Detector{store: store, rules: rules, logger: logger}
}

// Evaluate runs the checks in order and short-circuits on the first positive:
// active block, hourly volume, daily volume, per-NFT repetition. Threshold
// hits append an audit record at the rule's severity. Unexpected failures
// follow the configured per-rule policy; the default is fail-open.
func (d *Detector) Evaluate(ctx context.Context, user, nft string) Verdict {
	now := time.Now()

	if blocked, reason := d.checkBlock(ctx, user, now); blocked {
		return Verdict{Suspicious: true, Reason: reason}
	}

	hourly, err := d.store.CountListenEventsSince(ctx, user, now.Add(-1*time.Hour))
	if err != nil {
		if !d.rules.VolumeCheckFailOpen {
			return Verdict{Suspicious: true, Reason: "volume check unavailable"}
		}
		d.logger.Warn("hourly volume check failed open", "user", user, "error", err)
	} else if hourly > int64(d.rules.HourlyLimit) {
		d.flag(ctx, user, model.ActivityHourlyVolume, model.SeverityHigh,
			fmt.Sprintf("%d listens in the past hour (limit %d)", hourly, d.rules.HourlyLimit))
		return Verdict{Suspicious: true, Reason: "hourly listen volume exceeded"}
	}

	daily, err := d.store.CountListenEventsSince(ctx, user, now.Add(-24*time.Hour))
	if err != nil {
		if !d.rules.VolumeCheckFailOpen {
			return Verdict{Suspicious: true, Reason: "volume check unavailable"}
		}
		d.logger.Warn("daily volume check failed open", "user", user, "error", err)
	} else if daily > int64(d.rules.DailyLimit) {
		d.flag(ctx, user, model.ActivityDailyVolume, model.SeverityCritical,
			fmt.Sprintf("%d listens in the past 24h (limit %d)", daily, d.rules.DailyLimit))
		return Verdict{Suspicious: true, Reason: "daily listen volume exceeded"}
	}

	perNFT, err := d.store.CountNFTListenEventsSince(ctx, user, nft, now.Add(-1*time.Hour))
	if err != nil {
		if !d.rules.VolumeCheckFailOpen {
			return Verdict{Suspicious: true, Reason: "volume check unavailable"}
		}
		d.logger.Warn("per-nft check failed open", "user", user, "nft", nft, "error", err)
	} else if perNFT > int64(d.rules.PerNFTLimit) {
		d.flag(ctx, user, model.ActivityNFTRepetition, model.SeverityMedium,
			fmt.Sprintf("%d listens of %s in the past hour (limit %d)", perNFT, nft, d.rules.PerNFTLimit))
		return Verdict{Suspicious: true, Reason: "repeated listens of the same track"}
	}

	return Verdict{}
}

// checkBlock resolves the user's block status. A store failure follows the
// configured policy: fail-open prioritizes availability over strictness.
func (d *Detector) checkBlock(ctx context.Context, user string, now time.Time) (bool, string) {
	block, err := d.store.GetActiveBlock(ctx, user)
	if err != nil {
		if d.rules.BlockCheckFailOpen {
			d.logger.Warn("block check failed open", "user", user, "error", err)
			return false, ""
		}
		return true, "block status unavailable"
	}
	if block != nil && block.InEffect(now) {
		return true, block.Reason
	}
	return false, ""
}

// flag appends a suspicious-activity audit record. Insert failures are
// logged, never surfaced; the verdict stands either way.
func (d *Detector) flag(ctx context.Context, user, activityType, severity, description string) {
	rec := &model.SuspiciousActivity{
		Address:      user,
		ActivityType: activityType,
		Description:  description,
		Severity:     severity,
		DetectedAt:   time.Now().UTC(),
	}
	if err := d.store.InsertSuspiciousActivity(ctx, rec); err != nil {
		d.logger.Error("suspicious activity insert failed", "user", user, "type", activityType, "error", err)
	}
}
