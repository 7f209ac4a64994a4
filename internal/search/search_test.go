package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/engine-proxy/internal/engine"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Parsed
	}{
		{"", Parsed{}},
		{"   \t ", Parsed{}},
		{"yt cats", Parsed{Shortcut: "yt", HasShortcut: true, Query: "cats"}},
		{"yt cat videos", Parsed{Shortcut: "yt", HasShortcut: true, Query: "cat videos"}},
		{"  YT   cat \t videos  ", Parsed{Shortcut: "yt", HasShortcut: true, Query: "cat videos"}},
		{"yt", Parsed{Shortcut: "yt", HasShortcut: true}},
		{"@duck privacy", Parsed{Query: "duck privacy"}},
		{"@Duck", Parsed{Query: "Duck"}},
		{"@", Parsed{}},
		{"@ privacy", Parsed{Query: "privacy"}},
		{"! bang", Parsed{Shortcut: "!", HasShortcut: true, Query: "bang"}},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tc.want, Parse(tc.in)); diff != "" {
				t.Fatalf("Parse(%q) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestParseIsDeterministic(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"yt cats", "@duck privacy", "unknown term"} {
		require.Equal(t, Parse(in), Parse(in))
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		query    string
		want     string
	}{
		{"space", "https://x.com/s?q={query}", "a b", "https://x.com/s?q=a%20b"},
		{"reserved", "https://x.com/s?q={query}", "a&b=c/d?e#f+g", "https://x.com/s?q=a%26b%3Dc%2Fd%3Fe%23f%2Bg"},
		{"unreserved kept", "https://x.com/{query}", "A-z_0.9!~*'()", "https://x.com/A-z_0.9!~*'()"},
		{"utf8", "https://x.com/?q={query}", "café", "https://x.com/?q=caf%C3%A9"},
		{"empty query", "https://x.com/?q={query}", "", "https://x.com/?q="},
		{"first occurrence only", "https://x.com/{query}/{query}", "a", "https://x.com/a/{query}"},
		{"no placeholder", "https://x.com/", "a b", "https://x.com/"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Expand(tc.template, tc.query))
		})
	}
}

func catalog() []engine.Engine {
	return []engine.Engine{
		{ID: 1, Shortcut: "yt", DisplayName: "YouTube", URLTemplate: "https://www.youtube.com/results?search_query={query}"},
		{ID: 2, Shortcut: "g", DisplayName: "Google", URLTemplate: "https://www.google.com/search?q={query}", IsDefault: true},
	}
}

func TestResolveUnknownShortcutFallsBackToDefault(t *testing.T) {
	t.Parallel()

	res, ok := Resolve("unknown term", catalog())
	require.True(t, ok)
	require.Equal(t, "g", res.Engine.Shortcut)
	require.Equal(t, "unknown term", res.Query)
	require.Equal(t, OutcomeFallback, res.Outcome)
	require.Contains(t, res.Notice, `"unknown"`)
	require.Equal(t, "https://www.google.com/search?q=unknown%20term", res.URL())
}

func TestResolveMatchingShortcut(t *testing.T) {
	t.Parallel()

	res, ok := Resolve("yt cat videos", catalog())
	require.True(t, ok)
	require.Equal(t, "yt", res.Engine.Shortcut)
	require.Equal(t, "cat videos", res.Query)
	require.Equal(t, OutcomeResolved, res.Outcome)
	require.Empty(t, res.Notice)
}

func TestResolveShortcutWithoutQuerySearchesEmptyString(t *testing.T) {
	t.Parallel()

	res, ok := Resolve("YT", catalog())
	require.True(t, ok)
	require.Equal(t, "yt", res.Engine.Shortcut)
	require.Empty(t, res.Query)
	require.Equal(t, "https://www.youtube.com/results?search_query=", res.URL())
}

func TestResolveUnknownSingleToken(t *testing.T) {
	t.Parallel()

	res, ok := Resolve("golang", catalog())
	require.True(t, ok)
	require.Equal(t, "g", res.Engine.Shortcut)
	require.Equal(t, "golang", res.Query)
}

func TestResolveAtEscapeTargetsDefault(t *testing.T) {
	t.Parallel()

	res, ok := Resolve("@yt cat videos", catalog())
	require.True(t, ok)
	require.Equal(t, "g", res.Engine.Shortcut)
	require.Equal(t, "yt cat videos", res.Query)
	require.Equal(t, OutcomeDefault, res.Outcome)
}

func TestResolveNoTarget(t *testing.T) {
	t.Parallel()

	_, ok := Resolve("yt cats", nil)
	require.False(t, ok)

	_, ok = Resolve("   ", catalog())
	require.False(t, ok)

	res, ok := Resolve("@", catalog())
	require.False(t, ok)
	require.Equal(t, OutcomeNoTarget, res.Outcome)
}

func TestResolveWithoutFlaggedDefaultUsesFirstRecord(t *testing.T) {
	t.Parallel()

	engines := catalog()
	engines[1].IsDefault = false

	res, ok := Resolve("anything", engines)
	require.True(t, ok)
	require.Equal(t, "yt", res.Engine.Shortcut)
}

func TestDefaultEngineTieBreak(t *testing.T) {
	t.Parallel()

	engines := []engine.Engine{
		{ID: 5, Shortcut: "z", DisplayName: "Zeta", IsDefault: true},
		{ID: 4, Shortcut: "a2", DisplayName: "Alpha", IsDefault: true},
		{ID: 3, Shortcut: "a1", DisplayName: "Alpha", IsDefault: true},
	}
	def, ok := DefaultEngine(engines)
	require.True(t, ok)
	require.Equal(t, int64(3), def.ID)
}
