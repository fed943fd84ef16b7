// Package relay is the inbound message pipeline: entitlement, quota, intent
// short-circuits, context assembly, generation and persistence.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/inaiurai/relay/internal/conversation"
	"github.com/inaiurai/relay/internal/entitlement"
	"github.com/inaiurai/relay/internal/intent"
	"github.com/inaiurai/relay/internal/models"
	"github.com/inaiurai/relay/internal/quota"
)

// MaxCustomInstructionChars bounds a stored custom instruction.
const MaxCustomInstructionChars = 2000

var (
	ErrInvalidAccount        = errors.New("account id is required")
	ErrUnknownCommand        = errors.New("unknown command")
	ErrInstructionTooLong    = fmt.Errorf("custom instruction exceeds %d characters", MaxCustomInstructionChars)
	ErrEmptySettingsUpdate   = errors.New("settings update has no fields")
	ErrCustomInstructionTier = fmt.Errorf("%w: custom instructions", entitlement.ErrNotEntitled)
)

// Generator produces the assistant reply for an assembled payload.
type Generator interface {
	Generate(ctx context.Context, p *conversation.Payload) (string, error)
}

// Store is the persistence the pipeline writes to directly.
type Store interface {
	EnsureAccount(ctx context.Context, accountID string, p models.Profile) error
	GetPreferences(ctx context.Context, accountID string) (*models.Preferences, error)
	UpdatePreferences(ctx context.Context, accountID string, u models.PreferencesUpdate) (*models.Preferences, error)
	AppendExchange(ctx context.Context, user, assistant *models.Message) error
	ClearMessages(ctx context.Context, accountID string) (int64, error)
	InsertMedia(ctx context.Context, m *models.MediaRef) error
	EraseAccount(ctx context.Context, accountID string) error
}

// Inbound is one message from the chat transport. Intents are recognised in
// Text only; Caption is the text attached to media.
type Inbound struct {
	AccountID string         `json:"account_id"`
	Profile   models.Profile `json:"profile"`
	Text      string         `json:"text,omitempty"`
	Caption   string         `json:"caption,omitempty"`
	Media     []MediaBlob    `json:"media,omitempty"`
}

// InboundResult tells the transport what to send back. Admitted is false
// only when a quota rejected the message.
type InboundResult struct {
	Admitted bool                  `json:"admitted"`
	Intent   intent.Intent         `json:"intent,omitempty"`
	Reply    string                `json:"reply,omitempty"`
	Chunks   []string              `json:"chunks,omitempty"`
	Payload  *conversation.Payload `json:"-"`
}

type SettingsView struct {
	Model             string      `json:"model"`
	ModelLabel        string      `json:"model_label"`
	Persona           string      `json:"persona"`
	PersonaName       string      `json:"persona_name"`
	CustomInstruction string      `json:"custom_instruction,omitempty"`
	Tier              models.Tier `json:"tier"`
}

type PlanView struct {
	Tier       models.Tier              `json:"tier"`
	Title      string                   `json:"title"`
	ExpiresAt  *time.Time               `json:"expires_at"`
	PriceStars int                      `json:"price_stars"`
	Limits     entitlement.Capabilities `json:"limits"`
}

// SettingsUpdate lists the settings a caller may change. Nil fields are left
// untouched.
type SettingsUpdate = models.PreferencesUpdate

type Config struct {
	MaxMediaBytes int64
	// MediaDir receives accepted media files; empty keeps references only.
	MediaDir string
}

type Service interface {
	HandleInbound(ctx context.Context, in Inbound) (*InboundResult, error)
	OnCommand(ctx context.Context, name, accountID string) (*InboundResult, error)
	OnPaymentConfirmed(ctx context.Context, accountID, tierName string, durationDays int) (*models.Subscription, error)
	SettingsView(ctx context.Context, accountID string) (*SettingsView, error)
	PlanView(ctx context.Context, accountID string) (*PlanView, error)
	UpdateSettings(ctx context.Context, accountID string, u SettingsUpdate) (*SettingsView, error)
	Cancel(ctx context.Context, accountID string) (*models.Subscription, error)
	EraseAccount(ctx context.Context, accountID string) error
}

// Deps are the collaborators of the pipeline.
type Deps struct {
	Store      Store
	Resolver   *entitlement.Resolver
	Quota      *quota.Enforcer
	Classifier *intent.Classifier
	Assembler  *conversation.Assembler
	Generator  Generator
	Personas   *entitlement.Catalog
}

type service struct {
	store      Store
	resolver   *entitlement.Resolver
	quota      *quota.Enforcer
	classifier *intent.Classifier
	assembler  *conversation.Assembler
	generator  Generator
	personas   *entitlement.Catalog
	locks      *accountLocks
	cfg        Config
	now        func() time.Time
	log        *slog.Logger
}

func NewService(d Deps, cfg Config, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxMediaBytes <= 0 {
		cfg.MaxMediaBytes = DefaultMaxMediaBytes
	}
	return &service{
		store:      d.Store,
		resolver:   d.Resolver,
		quota:      d.Quota,
		classifier: d.Classifier,
		assembler:  d.Assembler,
		generator:  d.Generator,
		personas:   d.Personas,
		locks:      newAccountLocks(),
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

var _ Service = (*service)(nil)

// HandleInbound runs one message through the pipeline. Quota is charged
// before anything else happens and is never refunded. The account lock is
// held for the local steps only and released before the backend call.
func (s *service) HandleInbound(ctx context.Context, in Inbound) (*InboundResult, error) {
	if in.AccountID == "" {
		return nil, ErrInvalidAccount
	}
	if err := s.store.EnsureAccount(ctx, in.AccountID, in.Profile); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	unlock := s.locks.lock(in.AccountID)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	tier, err := s.resolver.ResolveTier(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	ok, err := s.quota.AdmitMessage(ctx, in.AccountID, tier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &InboundResult{Admitted: false, Reply: replyRateLimited}, nil
	}

	text := strings.TrimSpace(in.Text)
	if text != "" {
		if res := s.classifier.Classify(text); res.Intent != intent.None {
			for _, blob := range in.Media {
				s.log.Info("media skipped", "account_id", in.AccountID, "file_id", blob.FileID, "size", len(blob.Data), "intent", res.Intent)
			}
			reply, err := s.handleIntent(ctx, in.AccountID, tier, res, text)
			if err != nil {
				return nil, err
			}
			return &InboundResult{Admitted: true, Intent: res.Intent, Reply: reply, Chunks: SplitMessage(reply, MaxReplyChars)}, nil
		}
	}

	body := text
	if body == "" {
		body = strings.TrimSpace(in.Caption)
	}
	var parts []conversation.Part
	if body != "" {
		parts = append(parts, conversation.TextPart(body))
	}

	var firstMedia *uuid.UUID
	for _, blob := range in.Media {
		mime, allowed := s.sniff(blob)
		if !allowed {
			s.log.Info("media skipped", "account_id", in.AccountID, "file_id", blob.FileID, "mime", mime, "size", len(blob.Data))
			continue
		}
		ok, err := s.quota.AdmitMedia(ctx, in.AccountID, tier, quota.MediaImage)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &InboundResult{Admitted: false, Reply: replyImageLimited}, nil
		}
		ref, err := s.storeMedia(ctx, in.AccountID, blob, mime)
		if err != nil {
			return nil, fmt.Errorf("store media: %w", err)
		}
		if firstMedia == nil {
			firstMedia = &ref.ID
		}
		parts = append(parts, conversation.MediaPart(mime, blob.Data))
	}
	if len(parts) == 0 {
		return &InboundResult{Admitted: true, Reply: replyEmpty, Chunks: []string{replyEmpty}}, nil
	}

	payload, err := s.assembler.BuildTurn(ctx, in.AccountID, tier, parts)
	if err != nil {
		return nil, fmt.Errorf("build turn: %w", err)
	}

	unlock()
	locked = false

	reply, err := s.generator.Generate(ctx, payload)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.Error("generation failed", "account_id", in.AccountID, "model", payload.Model, "error", err)
		return &InboundResult{Admitted: true, Reply: replyUpstreamFailed, Chunks: []string{replyUpstreamFailed}, Payload: payload}, nil
	}

	content := body
	if content == "" {
		content = imagePlaceholder
	}
	now := s.now()
	user := &models.Message{ID: uuid.New(), AccountID: in.AccountID, Role: models.RoleUser, Content: content, MediaID: firstMedia, CreatedAt: now}
	assistant := &models.Message{ID: uuid.New(), AccountID: in.AccountID, Role: models.RoleAssistant, Content: reply, CreatedAt: now}
	if err := s.store.AppendExchange(ctx, user, assistant); err != nil {
		return nil, fmt.Errorf("append exchange: %w", err)
	}

	return &InboundResult{Admitted: true, Reply: reply, Chunks: SplitMessage(reply, MaxReplyChars), Payload: payload}, nil
}

func (s *service) handleIntent(ctx context.Context, accountID string, tier models.Tier, res intent.Result, text string) (string, error) {
	caps := entitlement.CapabilitiesFor(tier)
	switch res.Intent {
	case intent.Start:
		return welcomeReply(tier), nil
	case intent.ShowHelp:
		return helpReply, nil
	case intent.ClearHistory:
		n, err := s.store.ClearMessages(ctx, accountID)
		if err != nil {
			return "", fmt.Errorf("clear messages: %w", err)
		}
		s.log.Info("history cleared", "account_id", accountID, "messages", n)
		return replyCleared, nil
	case intent.ShowSettings:
		v, err := s.SettingsView(ctx, accountID)
		if err != nil {
			return "", err
		}
		return settingsReply(v, v.PersonaName), nil
	case intent.ShowPlan:
		v, err := s.PlanView(ctx, accountID)
		if err != nil {
			return "", err
		}
		return planReply(v), nil
	case intent.UpgradePlan:
		requested, _ := models.ParseTier(res.Extra)
		return upgradeReply(tier, requested), nil
	case intent.ChangePersona:
		if res.Extra == "" || !caps.AllowsPersona(res.Extra) {
			return personaOptionsReply(s.personas, caps), nil
		}
		if _, err := s.store.UpdatePreferences(ctx, accountID, models.PreferencesUpdate{Persona: &res.Extra}); err != nil {
			return "", fmt.Errorf("update persona: %w", err)
		}
		return personaChangedReply(s.personas.Name(res.Extra)), nil
	case intent.ChangeModel:
		model, ok := caps.ModelForFamily(res.Extra)
		if !ok {
			return modelOptionsReply(caps), nil
		}
		if _, err := s.store.UpdatePreferences(ctx, accountID, models.PreferencesUpdate{Model: &model}); err != nil {
			return "", fmt.Errorf("update model: %w", err)
		}
		return modelChangedReply(model), nil
	case intent.Feedback:
		s.log.Info("feedback received", "account_id", accountID, "tier", tier, "text", text)
		return replyFeedback, nil
	}
	return "", fmt.Errorf("unhandled intent %q", res.Intent)
}

var commandIntents = map[string]intent.Intent{
	"start":    intent.Start,
	"help":     intent.ShowHelp,
	"settings": intent.ShowSettings,
	"clear":    intent.ClearHistory,
	"plan":     intent.ShowPlan,
	"upgrade":  intent.UpgradePlan,
}

// OnCommand answers an explicit transport command. Commands are not charged
// against the message quota.
func (s *service) OnCommand(ctx context.Context, name, accountID string) (*InboundResult, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	if name == "cancel" {
		sub, err := s.resolver.Subscription(ctx, accountID)
		if err != nil {
			return nil, err
		}
		reply := replyNothingToStop
		if sub.Tier != models.TierFree {
			if _, err := s.resolver.Cancel(ctx, accountID); err != nil {
				return nil, err
			}
			reply = replyCancelled
		}
		return &InboundResult{Admitted: true, Reply: reply, Chunks: []string{reply}}, nil
	}
	in, ok := commandIntents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	tier, err := s.resolver.ResolveTier(ctx, accountID)
	if err != nil {
		return nil, err
	}
	reply, err := s.handleIntent(ctx, accountID, tier, intent.Result{Intent: in}, "")
	if err != nil {
		return nil, err
	}
	return &InboundResult{Admitted: true, Intent: in, Reply: reply, Chunks: SplitMessage(reply, MaxReplyChars)}, nil
}

// OnPaymentConfirmed activates the paid tier named by the transport.
func (s *service) OnPaymentConfirmed(ctx context.Context, accountID, tierName string, durationDays int) (*models.Subscription, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	tier, ok := models.ParseTier(tierName)
	if !ok || tier == models.TierFree {
		return nil, fmt.Errorf("%w: %q", entitlement.ErrUnknownTier, tierName)
	}
	return s.resolver.Upgrade(ctx, accountID, tier, durationDays)
}

// SettingsView reports the stored model and persona as the next generation
// would use them: values outside the tier show the tier's fallback.
func (s *service) SettingsView(ctx context.Context, accountID string) (*SettingsView, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	tier, err := s.resolver.ResolveTier(ctx, accountID)
	if err != nil {
		return nil, err
	}
	prefs, err := s.store.GetPreferences(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return s.settingsView(tier, prefs), nil
}

func (s *service) settingsView(tier models.Tier, prefs *models.Preferences) *SettingsView {
	caps := entitlement.CapabilitiesFor(tier)
	model, persona := prefs.Model, prefs.Persona
	if !caps.AllowsModel(model) {
		model = caps.AllowedModels[0]
	}
	if !caps.AllowsPersona(persona) {
		persona = caps.AllowedPersonas[0]
	}
	v := &SettingsView{
		Model:       model,
		ModelLabel:  entitlement.ModelLabel(model),
		Persona:     persona,
		PersonaName: s.personas.Name(persona),
		Tier:        tier,
	}
	if caps.CustomInstructionAllowed {
		v.CustomInstruction = prefs.CustomInstruction
	}
	return v
}

func (s *service) PlanView(ctx context.Context, accountID string) (*PlanView, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	sub, err := s.resolver.Subscription(ctx, accountID)
	if err != nil {
		return nil, err
	}
	p := entitlement.PlanFor(sub.Tier)
	return &PlanView{
		Tier:       sub.Tier,
		Title:      p.Title,
		ExpiresAt:  sub.ExpiresAt,
		PriceStars: p.PriceStars,
		Limits:     p.Limits,
	}, nil
}

// UpdateSettings applies an explicit settings change. Values the current
// tier does not include are rejected with entitlement.ErrNotEntitled.
func (s *service) UpdateSettings(ctx context.Context, accountID string, u SettingsUpdate) (*SettingsView, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	if u.Empty() {
		return nil, ErrEmptySettingsUpdate
	}
	unlock := s.locks.lock(accountID)
	defer unlock()

	tier, err := s.resolver.ResolveTier(ctx, accountID)
	if err != nil {
		return nil, err
	}
	caps := entitlement.CapabilitiesFor(tier)
	if u.Model != nil && !caps.AllowsModel(*u.Model) {
		return nil, fmt.Errorf("%w: model %q on %s plan", entitlement.ErrNotEntitled, *u.Model, tier.Title())
	}
	if u.Persona != nil && !caps.AllowsPersona(*u.Persona) {
		return nil, fmt.Errorf("%w: persona %q on %s plan", entitlement.ErrNotEntitled, *u.Persona, tier.Title())
	}
	if u.CustomInstruction != nil {
		ci := strings.TrimSpace(*u.CustomInstruction)
		if ci != "" && !caps.CustomInstructionAllowed {
			return nil, ErrCustomInstructionTier
		}
		if utf8.RuneCountInString(ci) > MaxCustomInstructionChars {
			return nil, ErrInstructionTooLong
		}
		u.CustomInstruction = &ci
	}

	prefs, err := s.store.UpdatePreferences(ctx, accountID, u)
	if err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	s.log.Info("settings updated", "account_id", accountID, "model", prefs.Model, "persona", prefs.Persona)
	return s.settingsView(tier, prefs), nil
}

func (s *service) Cancel(ctx context.Context, accountID string) (*models.Subscription, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	return s.resolver.Cancel(ctx, accountID)
}

// EraseAccount deletes everything stored for the account, media files
// included.
func (s *service) EraseAccount(ctx context.Context, accountID string) error {
	if accountID == "" {
		return ErrInvalidAccount
	}
	unlock := s.locks.lock(accountID)
	defer unlock()
	if err := s.store.EraseAccount(ctx, accountID); err != nil {
		return err
	}
	s.log.Info("account erased", "account_id", accountID)
	return nil
}
