package search

import (
	"fmt"

	"github.com/JakeFAU/engine-proxy/internal/engine"
)

// Outcome labels how a search picked its engine.
type Outcome string

// Resolution outcomes.
const (
	// OutcomeResolved means the shortcut matched a catalog engine.
	OutcomeResolved Outcome = "resolved"
	// OutcomeFallback means the token was unknown and became query text.
	OutcomeFallback Outcome = "fallback"
	// OutcomeDefault means no shortcut was given.
	OutcomeDefault Outcome = "default"
	// OutcomeNoTarget means nothing could be searched.
	OutcomeNoTarget Outcome = "no_target"
)

// Resolution is a selected engine plus the final query text.
type Resolution struct {
	Engine  engine.Engine
	Query   string
	Outcome Outcome
	// Notice is a human-readable message for fallbacks; empty otherwise.
	Notice string
}

// URL renders the redirect target.
func (r Resolution) URL() string {
	return Expand(r.Engine.URLTemplate, r.Query)
}

// Resolve picks the engine and query for raw input. The boolean is false when
// there is nothing to search or the catalog is empty.
func Resolve(raw string, engines []engine.Engine) (Resolution, bool) {
	def, ok := DefaultEngine(engines)
	if !ok {
		return Resolution{Outcome: OutcomeNoTarget}, false
	}

	parsed := Parse(raw)
	if parsed.Query == "" && !parsed.HasShortcut {
		return Resolution{Outcome: OutcomeNoTarget}, false
	}
	if !parsed.HasShortcut {
		return Resolution{Engine: def, Query: parsed.Query, Outcome: OutcomeDefault}, true
	}

	key := engine.NormalizeShortcut(parsed.Shortcut)
	for _, e := range engines {
		if engine.NormalizeShortcut(e.Shortcut) == key {
			return Resolution{Engine: e, Query: parsed.Query, Outcome: OutcomeResolved}, true
		}
	}

	return Resolution{
		Engine:  def,
		Query:   joinNonEmpty(parsed.Shortcut, parsed.Query),
		Outcome: OutcomeFallback,
		Notice:  fmt.Sprintf("shortcut %q is not recognized; searching with %s", parsed.Shortcut, def.DisplayName),
	}, true
}

// DefaultEngine returns the flagged default, choosing the first in canonical
// order when several are flagged, or the first record when none is.
func DefaultEngine(engines []engine.Engine) (engine.Engine, bool) {
	if len(engines) == 0 {
		return engine.Engine{}, false
	}
	var (
		best  engine.Engine
		found bool
	)
	for _, e := range engines {
		if !e.IsDefault {
			continue
		}
		if !found || canonicalLess(e, best) {
			best, found = e, true
		}
	}
	if found {
		return best, true
	}
	return engines[0], true
}

func canonicalLess(a, b engine.Engine) bool {
	if a.DisplayName != b.DisplayName {
		return a.DisplayName < b.DisplayName
	}
	return a.ID < b.ID
}
