package search_test

import (
	"fmt"

	"github.com/JakeFAU/engine-proxy/internal/engine"
	"github.com/JakeFAU/engine-proxy/internal/search"
)

func ExampleResolve() {
	engines := []engine.Engine{
		{ID: 1, Shortcut: "duck", DisplayName: "DuckDuckGo", URLTemplate: "https://duckduckgo.com/?q={query}", IsDefault: true},
		{ID: 2, Shortcut: "yt", DisplayName: "YouTube", URLTemplate: "https://www.youtube.com/results?search_query={query}"},
	}

	for _, input := range []string{"yt cat videos", "go generics", "@yt privacy"} {
		res, ok := search.Resolve(input, engines)
		if !ok {
			continue
		}
		fmt.Println(res.Outcome, res.URL())
	}
	// Output:
	// resolved https://www.youtube.com/results?search_query=cat%20videos
	// fallback https://duckduckgo.com/?q=go%20generics
	// default https://duckduckgo.com/?q=yt%20privacy
}
