package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/remibonds525-star/loyalty-engine/config"
)

const dayKeyFormat = "2006-01-02"

// Tracker decides which plays are free. Day boundaries are computed in
// one canonical timezone for every user, so quota resets do not drift
// with client clocks.
type Tracker struct {
	store  Store
	limits map[int]int
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// NewTracker creates a quota tracker
func NewTracker(store Store, cfg config.QuotaConfig, logger zerolog.Logger) (*Tracker, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid quota timezone %q: %w", cfg.Timezone, err)
	}
	return &Tracker{
		store:  store,
		limits: cfg.TierLimits,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "quota").Logger(),
	}, nil
}

// DayKey returns the canonical day key for the given instant
func (t *Tracker) DayKey(at time.Time) string {
	return at.In(t.loc).Format(dayKeyFormat)
}

// MaxPlaysForTier returns the daily free-play allotment for a tier.
// Tiers above the configured table get the largest configured allotment.
func (t *Tracker) MaxPlaysForTier(tier int) int {
	if max, ok := t.limits[tier]; ok {
		return max
	}
	highest := lo.Max(lo.Keys(t.limits))
	if tier > highest {
		return t.limits[highest]
	}
	return 0
}

// FreePlaysRemaining returns how many free plays the user still has
// today for the given game
func (t *Tracker) FreePlaysRemaining(ctx context.Context, userID string, game string, tier int) (int, error) {
	record, err := t.store.Get(ctx, userID, game)
	if err != nil {
		return 0, err
	}
	max := t.MaxPlaysForTier(tier)
	if record.LastPlayDate != t.DayKey(t.now()) {
		return max, nil
	}
	remaining := max - record.PlaysUsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// PlaysUsedToday returns the plays already counted for the current day,
// regardless of tier. Used for games with a fixed daily limit.
func (t *Tracker) PlaysUsedToday(ctx context.Context, userID string, game string) (int, error) {
	record, err := t.store.Get(ctx, userID, game)
	if err != nil {
		return 0, err
	}
	if record.LastPlayDate != t.DayKey(t.now()) {
		return 0, nil
	}
	return record.PlaysUsed, nil
}

// ConsumeFreePlay commits one free play for today. Idempotent per
// playID, so a retried commit after a partial failure never
// double-counts.
func (t *Tracker) ConsumeFreePlay(ctx context.Context, userID string, game string, playID string) error {
	day := t.DayKey(t.now())
	if err := t.store.Consume(ctx, userID, game, day, playID); err != nil {
		t.logger.Error().Err(err).
			Str("user_id", userID).
			Str("game", game).
			Str("play_id", playID).
			Msg("quota commit failed, retry with same play id")
		return err
	}
	return nil
}
