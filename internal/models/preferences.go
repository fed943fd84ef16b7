package models

import "time"

// Defaults written when an account is provisioned.
const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultPersona = "friend"
)

// Preferences are the per-account conversation settings.
type Preferences struct {
	AccountID         string    `json:"account_id"`
	Model             string    `json:"model"`
	Persona           string    `json:"persona"`
	CustomInstruction string    `json:"custom_instruction,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PreferencesUpdate is a partial update; nil fields are left unchanged.
type PreferencesUpdate struct {
	Model             *string `json:"model,omitempty"`
	Persona           *string `json:"persona,omitempty"`
	CustomInstruction *string `json:"custom_instruction,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u PreferencesUpdate) Empty() bool {
	return u.Model == nil && u.Persona == nil && u.CustomInstruction == nil
}
