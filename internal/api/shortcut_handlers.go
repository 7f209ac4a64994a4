package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/engine-proxy/internal/engine"
	"github.com/JakeFAU/engine-proxy/internal/search"
)

const maxBodyBytes = 64 << 10

func (s *Server) listShortcuts(w http.ResponseWriter, r *http.Request) {
	engines, err := s.catalog.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if engines == nil {
		engines = []engine.Engine{}
	}
	s.writeData(w, http.StatusOK, engines)
}

func (s *Server) createShortcut(w http.ResponseWriter, r *http.Request) {
	var payload engine.Payload
	if !s.decodeBody(w, r, &payload) {
		return
	}
	created, err := s.catalog.Create(r.Context(), payload)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusCreated, created)
}

func (s *Server) updateShortcut(w http.ResponseWriter, r *http.Request) {
	id, ok := s.shortcutID(w, r)
	if !ok {
		return
	}
	var patch engine.Patch
	if !s.decodeBody(w, r, &patch) {
		return
	}
	updated, err := s.catalog.Update(r.Context(), id, patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, updated)
}

func (s *Server) deleteShortcut(w http.ResponseWriter, r *http.Request) {
	id, ok := s.shortcutID(w, r)
	if !ok {
		return
	}
	if err := s.catalog.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]int64{"id": id})
}

type adminLanding struct {
	Engines []engine.Engine `json:"engines"`
	Default *engine.Engine  `json:"default"`
	Count   int             `json:"count"`
}

func (s *Server) adminHome(w http.ResponseWriter, r *http.Request) {
	engines, err := s.catalog.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	landing := adminLanding{Engines: engines, Count: len(engines)}
	if landing.Engines == nil {
		landing.Engines = []engine.Engine{}
	}
	if def, ok := search.DefaultEngine(engines); ok {
		landing.Default = &def
	}
	s.writeData(w, http.StatusOK, landing)
}

func (s *Server) shortcutID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid shortcut id")
		return 0, false
	}
	return id, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}
