package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sweetpotato0/gramflow/compare"
	"github.com/sweetpotato0/gramflow/middleware"
)

// snapshotBuffer bounds how far a run can get ahead of a slow SSE client
// before snapshot publishing blocks on it.
const snapshotBuffer = 256

// compareRequest is the wire form of a start request. MaskWhitespace is a
// pointer so an absent field defaults to true, the way the server's own
// UI submits it; only an explicit false turns masking off.
type compareRequest struct {
	compare.StartRequest
	MaskWhitespace *bool `json:"mask_whitespace"`
}

func (cr compareRequest) toStartRequest() compare.StartRequest {
	req := cr.StartRequest
	req.MaskWhitespace = cr.MaskWhitespace == nil || *cr.MaskWhitespace
	return req
}

// handleCompare starts a comparison and relays every snapshot as an SSE
// frame until the run is terminal. Closing the connection cancels the run.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var wire compareRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req := wire.toStartRequest()

	// A named grammar resolves through the local library.
	if req.Grammar == "" && req.GrammarName != "" && s.library != nil {
		g, err := s.library.Get(req.GrammarName)
		if err != nil {
			s.respondError(w, statusFor(err), err.Error())
			return
		}
		req.Grammar = g.Spec
	}

	// Finished sessions from earlier requests are dropped here, so the
	// previous run stays addressable for cancel/clear until a new compare
	// comes in.
	s.manager.Prune()

	mwCtx := middleware.NewContext(r.Context(), &req)
	err := s.chain.Execute(mwCtx, func(c *middleware.Context) error {
		return s.streamCompare(w, flusher, r, *c.Request)
	})
	if err != nil {
		// streamCompare only fails before it has written anything, so a
		// JSON error is still possible here.
		s.respondError(w, statusFor(err), err.Error())
	}
}

// streamCompare owns the SSE loop for one run. It returns non-nil only
// before the stream has started; once snapshots flow, run failures travel
// in-band as part of the terminal snapshot.
func (s *Server) streamCompare(w http.ResponseWriter, flusher http.Flusher, r *http.Request, req compare.StartRequest) error {
	updates := make(chan compare.Snapshot, snapshotBuffer)
	stopped := make(chan struct{})
	sess, err := s.manager.Open(uuid.NewString(), compare.WithObserver(func(snap compare.Snapshot) {
		select {
		case updates <- snap:
		case <-stopped:
		}
	}))
	if err != nil {
		return err
	}
	defer close(stopped)

	ctx := r.Context()
	if err := sess.Start(ctx, req); err != nil {
		return err
	}

	setupSSEHeaders(w)
	runDone := sess.Done()
	for {
		select {
		case snap := <-updates:
			s.sendSSE(w, flusher, snap)
		case <-runDone:
			// Every snapshot is published before the run unwinds; drain
			// what is still buffered, then end the stream.
			for {
				select {
				case snap := <-updates:
					s.sendSSE(w, flusher, snap)
				default:
					return nil
				}
			}
		case <-ctx.Done():
			// Client went away; stop generating on its behalf.
			sess.Cancel()
			return nil
		}
	}
}

// handleCancel aborts the run with the given id.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.manager.Find(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "no session owns run "+id)
		return
	}
	sess.Cancel()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "id": id})
}

// handleClear resets the session that owns the given run id.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.manager.Find(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "no session owns run "+id)
		return
	}
	sess.Clear()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared", "id": id})
}
