// Package conversation builds the request window sent to the generative
// backend: system instruction, recent history and the new user turn.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inaiurai/relay/internal/entitlement"
	"github.com/inaiurai/relay/internal/models"
)

// ErrEmptyTurn is returned when the new turn has no parts.
var ErrEmptyTurn = errors.New("turn has no parts")

const fallbackName = "friend"

// Store is the storage the assembler reads, plus the two compare-and-set
// corrections it may write.
type Store interface {
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	GetPreferences(ctx context.Context, accountID string) (*models.Preferences, error)
	// ResetPersona sets persona to `to` only while it still equals `from`.
	ResetPersona(ctx context.Context, accountID, from, to string) error
	// ResetModel sets model to `to` only while it still equals `from`.
	ResetModel(ctx context.Context, accountID, from, to string) error
	// RecentMessages returns at most limit messages, oldest first.
	RecentMessages(ctx context.Context, accountID string, limit int) ([]*models.Message, error)
}

// SafetySource yields the active safety policy.
type SafetySource interface {
	Current(ctx context.Context) ([]models.SafetySetting, error)
}

type Assembler struct {
	store    Store
	safety   SafetySource
	personas *entitlement.Catalog
	log      *slog.Logger
}

func NewAssembler(store Store, safety SafetySource, personas *entitlement.Catalog, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{store: store, safety: safety, personas: personas, log: log}
}

// BuildTurn assembles the payload for a new user turn on the given tier.
// A stored persona or model the tier no longer allows is replaced by the
// tier's first allowed value and the replacement is persisted.
func (a *Assembler) BuildTurn(ctx context.Context, accountID string, tier models.Tier, parts []Part) (*Payload, error) {
	if len(parts) == 0 {
		return nil, ErrEmptyTurn
	}
	caps := entitlement.CapabilitiesFor(tier)

	prefs, err := a.store.GetPreferences(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	persona, err := a.correctPersona(ctx, accountID, prefs.Persona, caps)
	if err != nil {
		return nil, err
	}
	model, err := a.correctModel(ctx, accountID, prefs.Model, caps)
	if err != nil {
		return nil, err
	}

	acc, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	p, _ := a.personas.Get(persona)
	system := SystemInstruction(p.Instruction, acc.FirstName, prefs.CustomInstruction, caps.CustomInstructionAllowed)

	history, err := a.store.RecentMessages(ctx, accountID, caps.MaxContextTurns)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	turns := make([]Turn, 0, len(history)+1)
	for _, m := range history {
		role := RoleUser
		if m.Role == models.RoleAssistant {
			role = RoleModel
		}
		turns = append(turns, Turn{Role: role, Parts: []Part{TextPart(m.Content)}})
	}
	turns = append(turns, Turn{Role: RoleUser, Parts: parts})

	policy, err := a.safety.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("safety policy: %w", err)
	}

	return &Payload{
		Model:             model,
		Persona:           persona,
		SystemInstruction: system,
		Turns:             turns,
		Safety:            policy,
	}, nil
}

func (a *Assembler) correctPersona(ctx context.Context, accountID, current string, caps entitlement.Capabilities) (string, error) {
	if caps.AllowsPersona(current) {
		return current, nil
	}
	next := caps.AllowedPersonas[0]
	if err := a.store.ResetPersona(ctx, accountID, current, next); err != nil {
		return "", fmt.Errorf("reset persona: %w", err)
	}
	a.log.Info("persona not allowed on tier, reset", "account_id", accountID, "from", current, "to", next)
	return next, nil
}

func (a *Assembler) correctModel(ctx context.Context, accountID, current string, caps entitlement.Capabilities) (string, error) {
	if caps.AllowsModel(current) {
		return current, nil
	}
	next := caps.AllowedModels[0]
	if err := a.store.ResetModel(ctx, accountID, current, next); err != nil {
		return "", fmt.Errorf("reset model: %w", err)
	}
	a.log.Info("model not allowed on tier, reset", "account_id", accountID, "from", current, "to", next)
	return next, nil
}

// SystemInstruction joins the persona template, the name clause and, when
// allowed and set, the custom-instruction clause, in that order.
func SystemInstruction(personaInstruction, firstName, custom string, customAllowed bool) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = fallbackName
	}
	var b strings.Builder
	b.WriteString(personaInstruction)
	b.WriteString("\n\nThe user's first name is ")
	b.WriteString(name)
	b.WriteString(". Use this name naturally in conversation (not too often, just when it feels right).")
	if customAllowed {
		if c := strings.TrimSpace(custom); c != "" {
			b.WriteString("\n\nAdditional user preferences:\n")
			b.WriteString(c)
		}
	}
	return b.String()
}
