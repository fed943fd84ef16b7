package entitlement

import (
	"slices"
	"strings"

	"github.com/inaiurai/relay/internal/models"
)

// Capabilities is what a tier unlocks.
type Capabilities struct {
	RateLimitPerMinute       int      `json:"rate_limit_per_minute"`
	MaxContextTurns          int      `json:"max_context_turns"`
	DailyImageLimit          int      `json:"daily_image_limit"`
	AllowedModels            []string `json:"allowed_models"`
	AllowedPersonas          []string `json:"allowed_personas"`
	CustomInstructionAllowed bool     `json:"custom_instruction_allowed"`
}

// AllowsModel reports whether model is usable on this tier.
func (c Capabilities) AllowsModel(model string) bool {
	return slices.Contains(c.AllowedModels, model)
}

// AllowsPersona reports whether persona is usable on this tier.
func (c Capabilities) AllowsPersona(persona string) bool {
	return slices.Contains(c.AllowedPersonas, persona)
}

// ModelForFamily picks the most capable allowed model whose id carries the
// family suffix ("flash", "pro").
func (c Capabilities) ModelForFamily(family string) (string, bool) {
	family = strings.ToLower(family)
	if family == "" {
		return "", false
	}
	for i := len(c.AllowedModels) - 1; i >= 0; i-- {
		m := c.AllowedModels[i]
		if strings.Contains(m, "-"+family) {
			return m, true
		}
	}
	return "", false
}

var capabilityTable = map[models.Tier]Capabilities{
	models.TierFree: {
		RateLimitPerMinute: 5,
		MaxContextTurns:    3,
		DailyImageLimit:    3,
		AllowedModels:      []string{"gemini-2.5-flash"},
		AllowedPersonas:    []string{"friend"},
	},
	models.TierBasic: {
		RateLimitPerMinute: 10,
		MaxContextTurns:    5,
		DailyImageLimit:    5,
		AllowedModels:      []string{"gemini-2.5-flash", "gemini-2.0-flash"},
		AllowedPersonas:    []string{"friend", "advisor"},
	},
	models.TierPremium: {
		RateLimitPerMinute:       20,
		MaxContextTurns:          8,
		DailyImageLimit:          10,
		AllowedModels:            []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-pro"},
		AllowedPersonas:          []string{"friend", "advisor", "artist", "scholar"},
		CustomInstructionAllowed: true,
	},
	models.TierVIP: {
		RateLimitPerMinute:       30,
		MaxContextTurns:          10,
		DailyImageLimit:          20,
		AllowedModels:            []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-pro-exp"},
		AllowedPersonas:          []string{"friend", "advisor", "artist", "scholar", "coach", "mystic"},
		CustomInstructionAllowed: true,
	},
}

// CapabilitiesFor returns the capability set of tier. Unknown tiers get the
// free tier's capabilities. The returned slices are copies.
func CapabilitiesFor(tier models.Tier) Capabilities {
	c, ok := capabilityTable[tier]
	if !ok {
		c = capabilityTable[models.TierFree]
	}
	c.AllowedModels = slices.Clone(c.AllowedModels)
	c.AllowedPersonas = slices.Clone(c.AllowedPersonas)
	return c
}

// modelLabels are the short names shown next to model ids.
var modelLabels = map[string]string{
	"gemini-2.5-flash":   "Fast",
	"gemini-2.0-flash":   "Enhanced",
	"gemini-1.5-pro":     "Professional",
	"gemini-1.5-pro-exp": "Premium",
}

// ModelLabel returns the display label of a model id, or the id itself.
func ModelLabel(model string) string {
	if l, ok := modelLabels[model]; ok {
		return l
	}
	return model
}

// Plan is a purchasable tier.
type Plan struct {
	Tier       models.Tier  `json:"tier"`
	Title      string       `json:"title"`
	PriceStars int          `json:"price_stars"`
	Limits     Capabilities `json:"limits"`
}

var planPrices = map[models.Tier]int{
	models.TierBasic:   50,
	models.TierPremium: 100,
	models.TierVIP:     200,
}

// PlanFor describes tier with its monthly price in Telegram Stars
// (zero for the free tier).
func PlanFor(tier models.Tier) Plan {
	return Plan{
		Tier:       tier,
		Title:      tier.Title(),
		PriceStars: planPrices[tier],
		Limits:     CapabilitiesFor(tier),
	}
}

// Plans lists every tier, free first.
func Plans() []Plan {
	out := make([]Plan, 0, len(models.Tiers))
	for _, t := range models.Tiers {
		out = append(out, PlanFor(t))
	}
	return out
}
