package conversation

import "github.com/inaiurai/relay/internal/models"

// Turn roles in the backend's vocabulary.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is text or inline media. Data non-nil means inline media.
type Part struct {
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"-"`
}

// TextPart builds a text part.
func TextPart(s string) Part { return Part{Text: s} }

// MediaPart builds an inline media part.
func MediaPart(mimeType string, data []byte) Part { return Part{MIMEType: mimeType, Data: data} }

// IsMedia reports whether p carries inline bytes.
func (p Part) IsMedia() bool { return p.Data != nil }

type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Payload is everything the generative backend needs for one reply.
type Payload struct {
	Model             string                 `json:"model"`
	Persona           string                 `json:"persona"`
	SystemInstruction string                 `json:"system_instruction"`
	Turns             []Turn                 `json:"turns"`
	Safety            []models.SafetySetting `json:"safety"`
}
