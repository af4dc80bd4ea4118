// Package gateway re-exposes comparison sessions over HTTP: one SSE
// endpoint that relays session snapshots in the grammar server's own wire
// style, plus JSON routes for run history, the local grammar library, and
// health.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sweetpotato0/gramflow/client"
	"github.com/sweetpotato0/gramflow/compare"
	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/grammar"
	"github.com/sweetpotato0/gramflow/middleware"
	"github.com/sweetpotato0/gramflow/pkg/logging"
)

// Server handles the gateway's HTTP surface.
type Server struct {
	manager  *compare.Manager
	library  *grammar.Library
	upstream *client.Client
	chain    *middleware.Chain
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLibrary serves the local grammar library on /api/grammars and lets
// compare requests name a grammar instead of inlining its spec.
func WithLibrary(lib *grammar.Library) Option {
	return func(s *Server) { s.library = lib }
}

// WithUpstream reports the grammar server's health alongside the
// gateway's own on /api/health.
func WithUpstream(c *client.Client) Option {
	return func(s *Server) { s.upstream = c }
}

// WithChain runs the middleware chain around every compare request.
func WithChain(chain *middleware.Chain) Option {
	return func(s *Server) { s.chain = chain }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a gateway server over the session manager.
func New(manager *compare.Manager, opts ...Option) *Server {
	s := &Server{
		manager: manager,
		chain:   middleware.NewChain(),
		logger:  logging.WithComponent("gateway"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler with all routes wired.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(cors)

	r.Route("/api", func(api chi.Router) {
		api.Post("/compare", s.handleCompare)
		api.Post("/compare/{id}/cancel", s.handleCancel)
		api.Post("/compare/{id}/clear", s.handleClear)

		api.Get("/runs", s.handleListRuns)
		api.Get("/runs/{id}", s.handleGetRun)
		api.Delete("/runs/{id}", s.handleDeleteRun)

		api.Get("/grammars", s.handleListGrammars)
		api.Get("/grammars/{name}", s.handleGetGrammar)

		api.Get("/health", s.handleHealth)
	})

	return r
}

// logRequests logs one line per request through the module logger.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// cors allows browser UIs served from other origins to reach the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps the module's error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gferrors.ErrInvalidInput),
		errors.Is(err, gferrors.ErrInvalidGrammar):
		return http.StatusBadRequest
	case errors.Is(err, gferrors.ErrGrammarNotFound),
		errors.Is(err, gferrors.ErrRecordNotFound),
		errors.Is(err, gferrors.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, gferrors.ErrSessionActive),
		errors.Is(err, gferrors.ErrNotIdle):
		return http.StatusConflict
	case errors.Is(err, gferrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, gferrors.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
