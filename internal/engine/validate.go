package engine

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minShortcutLen    = 2
	maxShortcutLen    = 24
	minDisplayNameLen = 2
	maxDisplayNameLen = 80
	maxDescriptionLen = 180
	minTemplateLen    = 10
)

var (
	shortcutPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
	schemePattern   = regexp.MustCompile(`(?i)^https?://`)
)

// Validate normalizes a create payload and checks every field.
func (p Payload) Validate() (Payload, error) {
	verr := &ValidationError{}
	p.Shortcut = checkShortcut(verr, p.Shortcut)
	p.DisplayName = checkDisplayName(verr, p.DisplayName)
	p.Description = checkDescription(verr, p.Description)
	checkTemplate(verr, p.URLTemplate)
	if p.IsDefault == nil {
		f := false
		p.IsDefault = &f
	}
	return p, verr.orNil()
}

// Validate normalizes the supplied fields of a patch.
func (p Patch) Validate() (Patch, error) {
	verr := &ValidationError{}
	if p.Shortcut != nil {
		s := checkShortcut(verr, *p.Shortcut)
		p.Shortcut = &s
	}
	if p.DisplayName != nil {
		n := checkDisplayName(verr, *p.DisplayName)
		p.DisplayName = &n
	}
	if p.Description.Set {
		d := checkDescription(verr, p.Description.Ptr())
		p.Description = OptionalString{Set: true}
		if d != nil {
			p.Description.Valid = true
			p.Description.Value = *d
		}
	}
	if p.URLTemplate != nil {
		checkTemplate(verr, *p.URLTemplate)
	}
	return p, verr.orNil()
}

// ValidateTemplate checks a URL template in isolation.
func ValidateTemplate(template string) error {
	verr := &ValidationError{}
	checkTemplate(verr, template)
	return verr.orNil()
}

func checkShortcut(verr *ValidationError, raw string) string {
	s := NormalizeShortcut(raw)
	n := utf8.RuneCountInString(s)
	switch {
	case n < minShortcutLen:
		verr.add("shortcut", "Shortcut should be at least 2 characters")
	case n > maxShortcutLen:
		verr.add("shortcut", "Shortcut should be 24 characters or fewer")
	case !shortcutPattern.MatchString(s):
		verr.add("shortcut", "Only letters, numbers, dashes, and underscores are allowed")
	}
	return s
}

func checkDisplayName(verr *ValidationError, raw string) string {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < minDisplayNameLen || n > maxDisplayNameLen {
		verr.add("displayName", "Display name should be between 2 and 80 characters")
	}
	return name
}

func checkDescription(verr *ValidationError, raw *string) *string {
	if raw == nil {
		return nil
	}
	d := strings.TrimSpace(*raw)
	if d == "" {
		return nil
	}
	if utf8.RuneCountInString(d) > maxDescriptionLen {
		verr.add("description", "Description should be 180 characters or fewer")
	}
	return &d
}

func checkTemplate(verr *ValidationError, template string) {
	switch {
	case len(template) < minTemplateLen:
		verr.add("urlTemplate", "Template should include a valid URL")
	case !schemePattern.MatchString(template):
		verr.add("urlTemplate", "URL must start with http:// or https://")
	case strings.Count(template, QueryPlaceholder) != 1:
		verr.add("urlTemplate", "Template must include exactly one {query} placeholder")
	}
}
