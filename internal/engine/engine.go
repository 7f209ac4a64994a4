// Package engine defines the search engine catalog model: records, boundary
// validation, the error taxonomy, and the Store contract implemented by the
// storage backends.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// QueryPlaceholder is the token substituted with the encoded search text.
const QueryPlaceholder = "{query}"

// Engine is one catalog entry.
type Engine struct {
	ID          int64     `json:"id"`
	Shortcut    string    `json:"shortcut"`
	DisplayName string    `json:"displayName"`
	Description *string   `json:"description"`
	URLTemplate string    `json:"urlTemplate"`
	IsDefault   bool      `json:"isDefault"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// Payload is the input of a create operation.
type Payload struct {
	Shortcut    string  `json:"shortcut"`
	DisplayName string  `json:"displayName"`
	Description *string `json:"description"`
	URLTemplate string  `json:"urlTemplate"`
	IsDefault   *bool   `json:"isDefault"`
}

// Patch is a partial update. Nil pointers leave the stored value untouched.
type Patch struct {
	Shortcut    *string        `json:"shortcut"`
	DisplayName *string        `json:"displayName"`
	Description OptionalString `json:"description"`
	URLTemplate *string        `json:"urlTemplate"`
	IsDefault   *bool          `json:"isDefault"`
}

// OptionalString distinguishes an absent JSON field from an explicit null.
type OptionalString struct {
	Set   bool
	Valid bool
	Value string
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Valid = false
		o.Value = ""
		return nil
	}
	if err := json.Unmarshal(b, &o.Value); err != nil {
		return fmt.Errorf("decode description: %w", err)
	}
	o.Valid = true
	return nil
}

// Ptr returns the value as a nullable string.
func (o OptionalString) Ptr() *string {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// Record converts a validated payload into an unsaved record.
func (p Payload) Record() Engine {
	return Engine{
		Shortcut:    p.Shortcut,
		DisplayName: p.DisplayName,
		Description: p.Description,
		URLTemplate: p.URLTemplate,
		IsDefault:   p.IsDefault != nil && *p.IsDefault,
	}
}

// Apply returns e with every supplied patch field written over it.
func (p Patch) Apply(e Engine) Engine {
	if p.Shortcut != nil {
		e.Shortcut = *p.Shortcut
	}
	if p.DisplayName != nil {
		e.DisplayName = *p.DisplayName
	}
	if p.Description.Set {
		e.Description = p.Description.Ptr()
	}
	if p.URLTemplate != nil {
		e.URLTemplate = *p.URLTemplate
	}
	if p.IsDefault != nil {
		e.IsDefault = *p.IsDefault
	}
	return e
}

// SetsDefault reports whether the patch promotes its target to default.
func (p Patch) SetsDefault() bool {
	return p.IsDefault != nil && *p.IsDefault
}

// SortCanonical orders engines default first, then by display name, then by id.
func SortCanonical(engines []Engine) {
	sort.SliceStable(engines, func(i, j int) bool {
		a, b := engines[i], engines[j]
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.ID < b.ID
	})
}

// NormalizeShortcut trims, drops a single leading '@', and lowercases.
func NormalizeShortcut(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	return strings.ToLower(strings.TrimSpace(s))
}
