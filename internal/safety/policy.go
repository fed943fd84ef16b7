// Package safety owns the process-wide content safety policy sent with every
// generation request. The policy is a singleton row seeded with Defaults the
// first time it is read; only Replace writes it afterwards.
package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/inaiurai/relay/internal/models"
)

var ErrInvalidPolicy = errors.New("invalid safety policy")

// Defaults blocks medium-and-above harm in the four standard categories.
func Defaults() []models.SafetySetting {
	th := string(genai.HarmBlockThresholdBlockMediumAndAbove)
	return []models.SafetySetting{
		{Category: string(genai.HarmCategoryHarassment), Threshold: th},
		{Category: string(genai.HarmCategoryHateSpeech), Threshold: th},
		{Category: string(genai.HarmCategorySexuallyExplicit), Threshold: th},
		{Category: string(genai.HarmCategoryDangerousContent), Threshold: th},
	}
}

var knownCategories = []string{
	string(genai.HarmCategoryHarassment),
	string(genai.HarmCategoryHateSpeech),
	string(genai.HarmCategorySexuallyExplicit),
	string(genai.HarmCategoryDangerousContent),
	string(genai.HarmCategoryCivicIntegrity),
}

var knownThresholds = []string{
	string(genai.HarmBlockThresholdBlockLowAndAbove),
	string(genai.HarmBlockThresholdBlockMediumAndAbove),
	string(genai.HarmBlockThresholdBlockOnlyHigh),
	string(genai.HarmBlockThresholdBlockNone),
	string(genai.HarmBlockThresholdOff),
}

// Validate checks every pair against the backend's enum names and rejects
// duplicate categories.
func Validate(settings []models.SafetySetting) error {
	if len(settings) == 0 {
		return fmt.Errorf("%w: at least one setting is required", ErrInvalidPolicy)
	}
	seen := make(map[string]bool, len(settings))
	for _, s := range settings {
		if !slices.Contains(knownCategories, s.Category) {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidPolicy, s.Category)
		}
		if !slices.Contains(knownThresholds, s.Threshold) {
			return fmt.Errorf("%w: unknown threshold %q", ErrInvalidPolicy, s.Threshold)
		}
		if seen[s.Category] {
			return fmt.Errorf("%w: category %q listed twice", ErrInvalidPolicy, s.Category)
		}
		seen[s.Category] = true
	}
	return nil
}

// Store persists the singleton policy row.
type Store interface {
	// GetSafetyPolicy returns models.ErrNotFound when no row exists.
	GetSafetyPolicy(ctx context.Context) ([]models.SafetySetting, error)
	// InitSafetyPolicy inserts settings only if no row exists yet.
	InitSafetyPolicy(ctx context.Context, settings []models.SafetySetting) error
	PutSafetyPolicy(ctx context.Context, settings []models.SafetySetting) error
}

// Service caches the policy for ttl so the hot path does not hit storage on
// every message.
type Service struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger

	mu       sync.RWMutex
	cached   []models.SafetySetting
	loadedAt time.Time
	now      func() time.Time
}

func NewService(store Store, ttl time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, ttl: ttl, log: log, now: time.Now}
}

// Current returns the active policy, seeding the store with Defaults when
// nothing has been stored yet.
func (s *Service) Current(ctx context.Context) ([]models.SafetySetting, error) {
	s.mu.RLock()
	if s.cached != nil && s.now().Sub(s.loadedAt) < s.ttl {
		out := slices.Clone(s.cached)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	settings, err := s.store.GetSafetyPolicy(ctx)
	if errors.Is(err, models.ErrNotFound) || (err == nil && len(settings) == 0) {
		if err := s.store.InitSafetyPolicy(ctx, Defaults()); err != nil {
			return nil, fmt.Errorf("init safety policy: %w", err)
		}
		s.log.Info("safety policy initialised with defaults")
		// Re-read: a concurrent initialiser or admin write may have won.
		settings, err = s.store.GetSafetyPolicy(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("get safety policy: %w", err)
	}

	s.mu.Lock()
	s.cached = slices.Clone(settings)
	s.loadedAt = s.now()
	s.mu.Unlock()
	return settings, nil
}

// Replace validates and stores a new policy. It is the admin write path.
func (s *Service) Replace(ctx context.Context, settings []models.SafetySetting) error {
	if err := Validate(settings); err != nil {
		return err
	}
	if err := s.store.PutSafetyPolicy(ctx, settings); err != nil {
		return fmt.Errorf("put safety policy: %w", err)
	}
	s.mu.Lock()
	s.cached = slices.Clone(settings)
	s.loadedAt = s.now()
	s.mu.Unlock()
	s.log.Info("safety policy replaced", "settings", len(settings))
	return nil
}
