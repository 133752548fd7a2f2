package models

import (
	"strings"
	"time"
)

// StandardRef identifies an applicable rule set.
type StandardRef struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Scope   string `json:"scope"` // "framework:<name>", "language:<name>", or "org"
}

// Specificity orders scopes for resolution precedence: framework-specific
// before language-general before organization-wide defaults.
func (r StandardRef) Specificity() int {
	switch {
	case strings.HasPrefix(r.Scope, "framework:"):
		return 0
	case strings.HasPrefix(r.Scope, "language:"):
		return 1
	default:
		return 2
	}
}

// Standard is a stored rule set in the standards store.
type Standard struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Scope     string    `json:"scope"`
	Text      string    `json:"text"` // the rules themselves, markdown
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the identity of the standard.
func (s *Standard) Ref() StandardRef {
	return StandardRef{ID: s.ID, Version: s.Version, Scope: s.Scope}
}
