// Package quota admits or rejects messages and media against the per-tier
// rate and daily limits.
//
// Every attempt is charged: the counter is incremented before it is compared
// with the limit, so rejected attempts count toward the window. There is no
// refund when a later step fails.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inaiurai/relay/internal/entitlement"
	"github.com/inaiurai/relay/internal/models"
)

// MediaKind names a kind of inbound media with its own daily limit.
type MediaKind string

const MediaImage MediaKind = "image"

// CounterStore keeps the two windowed counters of each account.
type CounterStore interface {
	// BumpWindow sets the counter of kind to 1 if its stored window differs
	// from window (or nothing is stored), otherwise adds 1, and returns the
	// new value. It must be a single atomic step per account.
	BumpWindow(ctx context.Context, accountID string, kind models.QuotaKind, window string) (int, error)
}

type Enforcer struct {
	store CounterStore
	loc   *time.Location
	now   func() time.Time
	log   *slog.Logger
}

// NewEnforcer builds an Enforcer whose windows are cut in loc (UTC when nil).
func NewEnforcer(store CounterStore, loc *time.Location, log *slog.Logger) *Enforcer {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Enforcer{store: store, loc: loc, now: time.Now, log: log}
}

// WithClock replaces the time source. Used by tests.
func (e *Enforcer) WithClock(now func() time.Time) *Enforcer {
	e.now = now
	return e
}

// AdmitMessage charges one message against the current minute and reports
// whether it is within the tier's rate limit.
func (e *Enforcer) AdmitMessage(ctx context.Context, accountID string, tier models.Tier) (bool, error) {
	limit := entitlement.CapabilitiesFor(tier).RateLimitPerMinute
	count, err := e.store.BumpWindow(ctx, accountID, models.QuotaRate, MinuteWindow(e.now().In(e.loc)))
	if err != nil {
		return false, fmt.Errorf("bump rate window: %w", err)
	}
	if count > limit {
		e.log.Info("rate limit exceeded", "account_id", accountID, "tier", tier, "count", count, "limit", limit)
		return false, nil
	}
	return true, nil
}

// AdmitMedia charges one item of kind against the current day.
func (e *Enforcer) AdmitMedia(ctx context.Context, accountID string, tier models.Tier, kind MediaKind) (bool, error) {
	if kind != MediaImage {
		e.log.Warn("unknown media kind rejected", "account_id", accountID, "kind", kind)
		return false, nil
	}
	limit := entitlement.CapabilitiesFor(tier).DailyImageLimit
	count, err := e.store.BumpWindow(ctx, accountID, models.QuotaMedia, DayWindow(e.now().In(e.loc)))
	if err != nil {
		return false, fmt.Errorf("bump media window: %w", err)
	}
	if count > limit {
		e.log.Info("daily image limit reached", "account_id", accountID, "tier", tier, "count", count, "limit", limit)
		return false, nil
	}
	return true, nil
}
