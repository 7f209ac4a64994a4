package catalog

import "github.com/JakeFAU/engine-proxy/internal/engine"

type builtin struct {
	shortcut, name, description, template string
	isDefault                             bool
}

var builtins = []builtin{
	{"@duck", "DuckDuckGo", "Privacy-focused search engine with no tracking.", "https://duckduckgo.com/?q={query}", true},
	{"@YT", "youtube.com", "Youtube.", "https://www.youtube.com/results?search_query={query}", false},
	{"@GI", "Google Images", "Search Google Images.", "https://www.google.com/search?tbm=isch&q={query}", false},
	{"@google", "Google", "Search Google.", "https://www.google.com/search?q={query}", false},
	{"@brave", "Brave Search", "Independent, privacy-first engine with custom ranking goggles.", "https://search.brave.com/search?q={query}", false},
	{"@kagi", "Kagi", "Premium ad-free search with strong user controls.", "https://kagi.com/search?q={query}", false},
	{"@ecosia", "Ecosia", "Eco-friendly search engine that plants trees.", "https://www.ecosia.org/search?q={query}", false},
	{"@startpage", "Startpage", "Google-powered results without tracking.", "https://www.startpage.com/do/search?q={query}", false},
	{"@perplexity", "Perplexity AI", "AI-powered answer engine with citations.", "https://www.perplexity.ai/search?q={query}", false},
	{"@bing", "Bing", "Microsoft's search engine with rewards and rich media.", "https://www.bing.com/search?q={query}", false},
}

// DefaultEngines returns the built-in seed catalog. DuckDuckGo is the default.
func DefaultEngines() []engine.Payload {
	out := make([]engine.Payload, 0, len(builtins))
	for _, b := range builtins {
		desc, isDefault := b.description, b.isDefault
		out = append(out, engine.Payload{
			Shortcut:    b.shortcut,
			DisplayName: b.name,
			Description: &desc,
			URLTemplate: b.template,
			IsDefault:   &isDefault,
		})
	}
	return out
}
