package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/sweetpotato0/gramflow/client"
)

// healthResponse is the gateway's own status plus the grammar server's,
// when one is configured.
type healthResponse struct {
	Status        string         `json:"status"`
	Upstream      *client.Health `json:"upstream,omitempty"`
	UpstreamError string         `json:"upstream_error,omitempty"`
}

// handleHealth reports gateway and upstream health. The gateway stays
// "ok" on its own; an unreachable upstream degrades it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if s.upstream != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		h, err := s.upstream.Health(ctx)
		if err != nil {
			resp.Status = "degraded"
			resp.UpstreamError = err.Error()
		} else {
			resp.Upstream = h
		}
	}

	s.respondJSON(w, http.StatusOK, resp)
}
