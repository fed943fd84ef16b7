package models

import (
	"time"

	"github.com/google/uuid"
)

// Role of a stored message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one side of a stored exchange.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	AccountID string     `json:"account_id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	MediaID   *uuid.UUID `json:"media_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// MediaRef records an accepted inbound image.
type MediaRef struct {
	ID        uuid.UUID `json:"id"`
	AccountID string    `json:"account_id"`
	FileID    string    `json:"file_id"`
	Path      string    `json:"path"`
	MIMEType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
