package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sweetpotato0/gramflow/grammar"
)

// handleListGrammars returns the local grammar library.
func (s *Server) handleListGrammars(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		s.respondJSON(w, http.StatusOK, []grammar.Grammar{})
		return
	}
	s.respondJSON(w, http.StatusOK, s.library.List())
}

// handleGetGrammar returns one grammar by name.
func (s *Server) handleGetGrammar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.library == nil {
		s.respondError(w, http.StatusNotFound, "no grammar library configured")
		return
	}
	g, err := s.library.Get(name)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, g)
}
