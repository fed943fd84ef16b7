package models

// SafetySetting is one (category, threshold) pair forwarded to the backend.
// Values use the backend's enum names, e.g. HARM_CATEGORY_HARASSMENT and
// BLOCK_MEDIUM_AND_ABOVE.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}
