package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/inaiurai/relay/internal/conversation"
	"github.com/inaiurai/relay/internal/models"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	reply    string
	err      error
	deadline bool
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, cfg
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(f.reply, genai.RoleModel),
		}},
	}, nil
}

func payload() *conversation.Payload {
	return &conversation.Payload{
		Model:             "gemini-2.5-flash",
		Persona:           "friend",
		SystemInstruction: "be kind",
		Turns: []conversation.Turn{
			{Role: conversation.RoleUser, Parts: []conversation.Part{conversation.TextPart("hello")}},
			{Role: conversation.RoleModel, Parts: []conversation.Part{conversation.TextPart("hi there")}},
			{Role: conversation.RoleUser, Parts: []conversation.Part{
				conversation.TextPart("what is this?"),
				conversation.MediaPart("image/png", []byte{0x89, 'P', 'N', 'G'}),
			}},
		},
		Safety: []models.SafetySetting{{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"}},
	}
}

func TestGenerate_MapsPayload(t *testing.T) {
	f := &fakeModels{reply: "  a cat  "}
	c := NewWithModels(f, Config{Timeout: time.Second}, nil)

	got, err := c.Generate(context.Background(), payload())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "a cat" {
		t.Errorf("reply = %q", got)
	}
	if f.model != "gemini-2.5-flash" || !f.deadline {
		t.Errorf("model=%q deadline=%v", f.model, f.deadline)
	}
	if len(f.contents) != 3 || f.contents[1].Role != string(genai.RoleModel) {
		t.Fatalf("contents = %+v", f.contents)
	}
	last := f.contents[2]
	if len(last.Parts) != 2 || last.Parts[1].InlineData == nil || last.Parts[1].InlineData.MIMEType != "image/png" {
		t.Errorf("media part not mapped: %+v", last.Parts)
	}
	if f.config.SystemInstruction == nil || f.config.SystemInstruction.Parts[0].Text != "be kind" {
		t.Error("system instruction missing")
	}
	if len(f.config.SafetySettings) != 1 || f.config.SafetySettings[0].Threshold != genai.HarmBlockThresholdBlockMediumAndAbove {
		t.Errorf("safety = %+v", f.config.SafetySettings)
	}
	if f.config.MaxOutputTokens != maxOutputTokens || *f.config.Temperature != temperature {
		t.Error("sampling parameters not applied")
	}
}

func TestGenerate_EmptyReply(t *testing.T) {
	c := NewWithModels(&fakeModels{reply: "   "}, Config{}, nil)
	if _, err := c.Generate(context.Background(), payload()); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerate_UpstreamError(t *testing.T) {
	boom := errors.New("503 unavailable")
	c := NewWithModels(&fakeModels{err: boom}, Config{RequestsPerSecond: 100}, nil)
	if _, err := c.Generate(context.Background(), payload()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	f := &fakeModels{reply: "x"}
	c := NewWithModels(f, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Generate(ctx, payload()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if f.model != "" {
		t.Error("backend called after cancellation")
	}
}
