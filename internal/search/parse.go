// Package search turns free-text input into a redirect target: Parse splits
// the input, Resolve picks an engine from the catalog, and Expand renders the
// engine's URL template.
package search

import "strings"

// Parsed is the result of splitting raw input.
type Parsed struct {
	// Shortcut is the lowercased candidate token; empty when HasShortcut is false.
	Shortcut    string
	HasShortcut bool
	Query       string
}

// Parse splits raw input into an optional shortcut token and the query.
//
// A leading '@' opts out of shortcut selection: "@duck privacy" searches the
// default engine for "duck privacy".
func Parse(raw string) Parsed {
	words := strings.Fields(raw)
	if len(words) == 0 {
		return Parsed{}
	}
	first, rest := words[0], strings.Join(words[1:], " ")

	if literal, ok := strings.CutPrefix(first, "@"); ok {
		return Parsed{Query: joinNonEmpty(literal, rest)}
	}
	return Parsed{
		Shortcut:    strings.ToLower(first),
		HasShortcut: true,
		Query:       rest,
	}
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
