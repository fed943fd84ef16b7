package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inaiurai/relay/internal/models"
)

var (
	// ErrNotEntitled is returned when an explicit settings change asks for
	// something the account's tier does not include.
	ErrNotEntitled = errors.New("not entitled")
	// ErrUnknownTier is returned for plan names that do not parse.
	ErrUnknownTier = errors.New("unknown tier")
)

// DefaultPlanDays is the subscription length used when a payment does not
// say otherwise.
const DefaultPlanDays = 30

// SubscriptionStore is the storage the resolver needs.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, accountID string) (*models.Subscription, error)
	// DowngradeExpired rewrites the subscription to (free, no expiry) only if
	// it is still a paid tier that expired at or before now.
	DowngradeExpired(ctx context.Context, accountID string, now time.Time) error
	SetSubscription(ctx context.Context, accountID string, tier models.Tier, expiresAt *time.Time) error
}

// AccountProvisioner creates the account and its default rows if missing.
type AccountProvisioner interface {
	EnsureAccount(ctx context.Context, accountID string, p models.Profile) error
}

// Resolver answers "which tier is this account on right now".
type Resolver struct {
	subs     SubscriptionStore
	accounts AccountProvisioner
	now      func() time.Time
	log      *slog.Logger
}

func NewResolver(subs SubscriptionStore, accounts AccountProvisioner, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{subs: subs, accounts: accounts, now: time.Now, log: log}
}

// WithClock replaces the time source. Used by tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// ResolveTier returns the effective tier. Unknown accounts are provisioned
// on the free tier; expired paid tiers are downgraded before returning.
func (r *Resolver) ResolveTier(ctx context.Context, accountID string) (models.Tier, error) {
	sub, err := r.Subscription(ctx, accountID)
	if err != nil {
		return models.TierFree, err
	}
	return sub.Tier, nil
}

// Subscription is ResolveTier returning the whole effective subscription.
func (r *Resolver) Subscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	sub, err := r.subs.GetSubscription(ctx, accountID)
	if errors.Is(err, models.ErrNotFound) {
		if err := r.accounts.EnsureAccount(ctx, accountID, models.Profile{}); err != nil {
			return nil, fmt.Errorf("provision account: %w", err)
		}
		return &models.Subscription{AccountID: accountID, Tier: models.TierFree}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	now := r.now()
	if sub.Expired(now) {
		if err := r.subs.DowngradeExpired(ctx, accountID, now); err != nil {
			return nil, fmt.Errorf("downgrade expired subscription: %w", err)
		}
		r.log.Info("subscription expired", "account_id", accountID, "tier", sub.Tier, "expired_at", sub.ExpiresAt)
		return &models.Subscription{AccountID: accountID, Tier: models.TierFree, UpdatedAt: now}, nil
	}
	sub.Tier = models.DecodeTier(string(sub.Tier))
	return sub, nil
}

// Upgrade puts the account on tier for durationDays (DefaultPlanDays when
// not positive). Upgrading to the free tier is a cancellation.
func (r *Resolver) Upgrade(ctx context.Context, accountID string, tier models.Tier, durationDays int) (*models.Subscription, error) {
	if _, ok := capabilityTable[tier]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	if err := r.accounts.EnsureAccount(ctx, accountID, models.Profile{}); err != nil {
		return nil, fmt.Errorf("provision account: %w", err)
	}
	if tier == models.TierFree {
		return r.cancel(ctx, accountID)
	}
	if durationDays <= 0 {
		durationDays = DefaultPlanDays
	}
	now := r.now()
	expires := now.Add(time.Duration(durationDays) * 24 * time.Hour).UTC()
	if err := r.subs.SetSubscription(ctx, accountID, tier, &expires); err != nil {
		return nil, fmt.Errorf("set subscription: %w", err)
	}
	r.log.Info("subscription upgraded", "account_id", accountID, "tier", tier, "expires_at", expires)
	return &models.Subscription{AccountID: accountID, Tier: tier, ExpiresAt: &expires, UpdatedAt: now}, nil
}

// Cancel returns the account to the free tier immediately.
func (r *Resolver) Cancel(ctx context.Context, accountID string) (*models.Subscription, error) {
	if err := r.accounts.EnsureAccount(ctx, accountID, models.Profile{}); err != nil {
		return nil, fmt.Errorf("provision account: %w", err)
	}
	return r.cancel(ctx, accountID)
}

func (r *Resolver) cancel(ctx context.Context, accountID string) (*models.Subscription, error) {
	if err := r.subs.SetSubscription(ctx, accountID, models.TierFree, nil); err != nil {
		return nil, fmt.Errorf("set subscription: %w", err)
	}
	r.log.Info("subscription cancelled", "account_id", accountID)
	return &models.Subscription{AccountID: accountID, Tier: models.TierFree, UpdatedAt: r.now()}, nil
}
