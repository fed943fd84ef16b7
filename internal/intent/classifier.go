// Package intent maps free text to the closed set of commands users can
// trigger by plain language.
package intent

import (
	"regexp"
	"strings"

	"github.com/inaiurai/relay/internal/models"
)

// Intent is a recognised command.
type Intent string

const (
	None          Intent = "none"
	Start         Intent = "start"
	ClearHistory  Intent = "clear_history"
	ShowSettings  Intent = "show_settings"
	ShowHelp      Intent = "show_help"
	ShowPlan      Intent = "show_plan"
	UpgradePlan   Intent = "upgrade_plan"
	ChangePersona Intent = "change_persona"
	ChangeModel   Intent = "change_model"
	Feedback      Intent = "feedback"
)

// Result is the classified intent plus an optional extracted value: a
// persona key, a model family or a tier, depending on the intent. The value
// is a hint and must be checked against the account's capabilities.
type Result struct {
	Intent Intent `json:"intent"`
	Extra  string `json:"extra,omitempty"`
}

var modelFamily = regexp.MustCompile(`\b(flash|pro)\b`)

// Classifier is safe for concurrent use.
type Classifier struct {
	personas []string
}

// NewClassifier returns a classifier that recognises the given persona keys
// in change-persona requests.
func NewClassifier(personas []string) *Classifier {
	ps := make([]string, 0, len(personas))
	for _, p := range personas {
		ps = append(ps, strings.ToLower(p))
	}
	return &Classifier{personas: ps}
}

// Classify returns the first matching intent, or None.
func (c *Classifier) Classify(text string) Result {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return Result{Intent: None}
	}
	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(norm) {
				return Result{Intent: r.intent, Extra: c.extract(r.intent, norm)}
			}
		}
	}
	return Result{Intent: None}
}

func (c *Classifier) extract(in Intent, text string) string {
	switch in {
	case ChangePersona:
		for _, p := range c.personas {
			if containsWord(text, p) {
				return p
			}
		}
	case ChangeModel:
		return modelFamily.FindString(text)
	case UpgradePlan, ShowPlan:
		for _, w := range strings.FieldsFunc(text, notLetterOrDigit) {
			if t, ok := models.ParseTier(w); ok && t != models.TierFree {
				return string(t)
			}
		}
	}
	return ""
}

func containsWord(text, word string) bool {
	for _, w := range strings.FieldsFunc(text, notLetterOrDigit) {
		if w == word {
			return true
		}
	}
	return false
}

func notLetterOrDigit(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}
