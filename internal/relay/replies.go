package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/inaiurai/relay/internal/entitlement"
	"github.com/inaiurai/relay/internal/models"
)

const (
	replyRateLimited    = "⏱ Rate limit exceeded. Please wait a minute."
	replyImageLimited   = "🖼 Daily image limit reached. Upgrade for more!"
	replyEmpty          = "Please send text or an image."
	replyUpstreamFailed = "❌ Sorry, I couldn't get a response right now. Please try again."
	replyCleared        = "✅ Context forgotten! Starting fresh."
	replyFeedback       = "🙏 Thanks for the feedback!"
	replyCancelled      = "✅ Subscription cancelled. Downgraded to Free."
	replyNothingToStop  = "You are on the Free plan, there is nothing to cancel."

	imagePlaceholder = "[Image]"
)

func welcomeReply(tier models.Tier) string {
	return "👋 *Welcome to Gena!*\n\n" +
		"Your AI companion with:\n" +
		"• Text & Image support\n" +
		"• Multiple personalities\n" +
		"• Conversation memory\n" +
		"• Your plan: *" + tier.Title() + "*\n\n" +
		"Use /help to see all commands"
}

const helpReply = "*Gena Bot Commands*\n\n" +
	"/start - Initialize bot\n" +
	"/help - Show this message\n" +
	"/settings - View/change settings\n" +
	"/plan - Show your plan\n" +
	"/clear - Forget conversation context\n\n" +
	"*Natural Language:*\n" +
	"You can also say:\n" +
	"• 'clear my context'\n" +
	"• 'show settings'\n" +
	"• 'change persona to advisor'\n\n" +
	"Send text or images to chat!"

func settingsReply(v *SettingsView, personaName string) string {
	return fmt.Sprintf("*⚙️ Settings*\n\n🤖 Model: `%s`\n👤 Persona: `%s`\n📋 Plan: `%s`",
		v.Model, personaName, v.Tier.Title())
}

// planDetails lists the limits of a plan and its price.
func planDetails(p entitlement.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💬 Messages: *%d/minute*\n", p.Limits.RateLimitPerMinute)
	fmt.Fprintf(&b, "🖼 Images: *%d/day*\n", p.Limits.DailyImageLimit)
	fmt.Fprintf(&b, "💭 Context: *%d turns*\n", p.Limits.MaxContextTurns)
	fmt.Fprintf(&b, "🤖 Models: *%d*\n", len(p.Limits.AllowedModels))
	fmt.Fprintf(&b, "👤 Personas: *%d*\n", len(p.Limits.AllowedPersonas))
	if p.Limits.CustomInstructionAllowed {
		b.WriteString("✏️ Custom Instructions: *Yes*\n")
	}
	if p.PriceStars > 0 {
		fmt.Fprintf(&b, "\n⭐ *%d stars/month*", p.PriceStars)
	} else {
		b.WriteString("\n✨ *Free Forever*")
	}
	return b.String()
}

func planReply(v *PlanView) string {
	text := "*📋 Your Plan: " + v.Tier.Title() + "*\n\n" + planDetails(entitlement.PlanFor(v.Tier))
	if v.ExpiresAt != nil {
		text += "\n\n📅 Expires: " + v.ExpiresAt.Format(time.DateOnly)
	}
	return text
}

// upgradeReply offers every tier above the current one. requested, when set,
// is the tier the user asked for by name.
func upgradeReply(current, requested models.Tier) string {
	if current == models.TierVIP {
		return "👑 You are already on the VIP plan."
	}
	var b strings.Builder
	if tierRank(requested) > tierRank(current) {
		p := entitlement.PlanFor(requested)
		fmt.Fprintf(&b, "⭐️ *%s plan*\n\n%s", p.Title, planDetails(p))
		return b.String()
	}
	b.WriteString("*⬆️ Upgrade your plan*\n")
	for _, p := range entitlement.Plans() {
		if tierRank(p.Tier) <= tierRank(current) {
			continue
		}
		fmt.Fprintf(&b, "\n• %s: %d ⭐️/mo", p.Title, p.PriceStars)
	}
	return b.String()
}

func personaChangedReply(name string) string {
	return "✅ Persona changed to *" + name + "*"
}

func modelChangedReply(model string) string {
	return "✅ Model changed to *" + model + "*"
}

func personaOptionsReply(c *entitlement.Catalog, caps entitlement.Capabilities) string {
	names := make([]string, 0, len(caps.AllowedPersonas))
	for _, k := range caps.AllowedPersonas {
		names = append(names, c.Name(k)+" ("+k+")")
	}
	return "👤 Personas on your plan: " + strings.Join(names, ", ")
}

func modelOptionsReply(caps entitlement.Capabilities) string {
	names := make([]string, 0, len(caps.AllowedModels))
	for _, m := range caps.AllowedModels {
		names = append(names, m+" ("+entitlement.ModelLabel(m)+")")
	}
	return "🤖 Models on your plan: " + strings.Join(names, ", ")
}

func tierRank(t models.Tier) int {
	for i, x := range models.Tiers {
		if x == t {
			return i
		}
	}
	return -1
}
