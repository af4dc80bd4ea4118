package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sweetpotato0/gramflow/store"
)

// handleListRuns returns finished runs, newest first. ?limit=N caps the
// list.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.manager.Runs(r.Context(), limit)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if records == nil {
		records = []*store.Record{}
	}
	s.respondJSON(w, http.StatusOK, records)
}

// handleGetRun returns one finished run by id.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.manager.Run(r.Context(), id)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

// handleDeleteRun removes one finished run from the store.
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.DeleteRun(r.Context(), id); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}
