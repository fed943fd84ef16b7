package models

import (
	"strings"
	"time"
)

// Tier is the paid plan level of an account.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierFree, TierBasic, TierPremium, TierVIP}

var tierNames = map[string]Tier{
	"free":    TierFree,
	"base":    TierFree,
	"basic":   TierBasic,
	"tier1":   TierBasic,
	"premium": TierPremium,
	"tier2":   TierPremium,
	"vip":     TierVIP,
	"tier3":   TierVIP,
}

// ParseTier accepts display names ("Premium"), stored values ("premium") and
// the positional aliases base/tier1/tier2/tier3.
func ParseTier(s string) (Tier, bool) {
	t, ok := tierNames[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// DecodeTier is ParseTier for values read back from storage: anything
// unrecognised is treated as the free tier.
func DecodeTier(s string) Tier {
	if t, ok := ParseTier(s); ok {
		return t
	}
	return TierFree
}

// Title is the user-facing plan name.
func (t Tier) Title() string {
	switch t {
	case TierBasic:
		return "Basic"
	case TierPremium:
		return "Premium"
	case TierVIP:
		return "VIP"
	default:
		return "Free"
	}
}

// Subscription holds the current tier of an account. ExpiresAt is nil for the
// free tier and for paid tiers granted without an end date.
type Subscription struct {
	AccountID string     `json:"account_id"`
	Tier      Tier       `json:"tier"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Expired reports whether a paid tier has passed its expiry at now.
func (s *Subscription) Expired(now time.Time) bool {
	if s.Tier == TierFree || s.ExpiresAt == nil {
		return false
	}
	return !now.Before(*s.ExpiresAt)
}
