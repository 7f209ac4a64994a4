package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/engine-proxy/internal/metrics"
	"github.com/JakeFAU/engine-proxy/internal/search"
)

const homeText = `engine-proxy

Search with /search?q=<text> or /search/<text>.
Start the text with a shortcut to pick an engine, e.g. /search?q=yt+lofi.
Unknown shortcuts and text starting with @ go to the default engine.
GET /shortcuts lists the engines.
`

func (s *Server) home(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(homeText)); err != nil {
		s.logger.Error("home write failed", zap.Error(err))
	}
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	raw := searchInput(r)

	engines, err := s.catalog.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	res, ok := search.Resolve(raw, engines)
	metrics.ObserveSearch(string(res.Outcome))
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if res.Notice != "" {
		w.Header().Set(NoticeHeader, res.Notice)
		s.logger.Info("search fell back to default engine",
			zap.String("notice", res.Notice),
			zap.String("request_id", RequestIDFromContext(r.Context())))
	}
	s.logger.Debug("search resolved",
		zap.String("outcome", string(res.Outcome)),
		zap.String("engine", res.Engine.Shortcut))
	http.Redirect(w, r, res.URL(), http.StatusFound)
}

// searchInput prefers the q parameter and otherwise joins the non-empty path
// segments after /search with "/".
func searchInput(r *http.Request) string {
	if q := r.URL.Query().Get("q"); strings.TrimSpace(q) != "" {
		return q
	}
	rest := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(rest); err == nil {
		rest = unescaped
	}
	segments := strings.Split(rest, "/")
	kept := segments[:0]
	for _, seg := range segments {
		if seg != "" {
			kept = append(kept, seg)
		}
	}
	return strings.Join(kept, "/")
}
