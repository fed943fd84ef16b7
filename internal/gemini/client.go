// Package gemini sends assembled conversation payloads to the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/ratelimit"
	"google.golang.org/genai"

	"github.com/inaiurai/relay/internal/conversation"
)

// ErrEmptyResponse is returned when the model answers with no text, which
// is how blocked prompts usually surface.
var ErrEmptyResponse = errors.New("empty response from model")

// Generation parameters applied to every request.
const (
	temperature     = 0.7
	topK            = 40
	topP            = 0.95
	maxOutputTokens = 1024
)

// Models is the part of *genai.Models the client calls.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	models  Models
	limiter ratelimit.Limiter
	timeout time.Duration
	log     *slog.Logger
}

// Config for New. RequestsPerSecond caps the process-wide call rate to the
// API; zero disables the cap.
type Config struct {
	APIKey            string
	RequestsPerSecond int
	Timeout           time.Duration
}

// New creates a client backed by the Gemini developer API.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return NewWithModels(gc.Models, cfg, log), nil
}

// NewWithModels wraps an existing Models implementation.
func NewWithModels(m Models, cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond, ratelimit.WithoutSlack)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{models: m, limiter: limiter, timeout: timeout, log: log}
}

// Generate sends the payload and returns the reply text.
func (c *Client) Generate(ctx context.Context, p *conversation.Payload) (string, error) {
	c.limiter.Take()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, p.Model, Contents(p.Turns), GenerateConfig(p))
	if err != nil {
		return "", fmt.Errorf("generate content (%s): %w", p.Model, err)
	}
	text := strings.TrimSpace(resp.Text())
	c.log.Debug("generation finished", "model", p.Model, "turns", len(p.Turns), "duration", time.Since(start))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Contents converts assembled turns to genai contents.
func Contents(turns []conversation.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		parts := make([]*genai.Part, 0, len(t.Parts))
		for _, p := range t.Parts {
			if p.IsMedia() {
				parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
				continue
			}
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
		var role genai.Role = genai.RoleUser
		if t.Role == conversation.RoleModel {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromParts(parts, role))
	}
	return out
}

// GenerateConfig carries the system instruction, safety policy and sampling
// parameters.
func GenerateConfig(p *conversation.Payload) *genai.GenerateContentConfig {
	safety := make([]*genai.SafetySetting, 0, len(p.Safety))
	for _, s := range p.Safety {
		safety = append(safety, &genai.SafetySetting{
			Category:  genai.HarmCategory(s.Category),
			Threshold: genai.HarmBlockThreshold(s.Threshold),
		})
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](temperature),
		TopK:            genai.Ptr[float32](topK),
		TopP:            genai.Ptr[float32](topP),
		MaxOutputTokens: maxOutputTokens,
		SafetySettings:  safety,
	}
	if p.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.SystemInstruction, genai.RoleUser)
	}
	return cfg
}
