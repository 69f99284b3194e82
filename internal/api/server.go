package api

import (
	"log/slog"
	"net/http"

	"github.com/AppleHolic/recording-studio-api/internal/api/middleware"
	"github.com/AppleHolic/recording-studio-api/internal/config"
	"github.com/AppleHolic/recording-studio-api/internal/corpus"
	"github.com/AppleHolic/recording-studio-api/internal/journal"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router  *chi.Mux
	corpus  *corpus.Index
	journal journal.Store
	cfg     *config.Config
	metrics http.Handler
	limiter *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted. events and
// metrics may be nil; without a journal, takes are not logged and history
// is empty.
func NewServer(ix *corpus.Index, events journal.Store, cfg *config.Config, metrics http.Handler) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		corpus:  ix,
		journal: events,
		cfg:     cfg,
		metrics: metrics,
	}
	if cfg.RateLimit > 0 {
		s.limiter = middleware.NewIPRateLimiter(middleware.NewRateLimitConfig(cfg.RateLimit))
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources held by the middleware.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(nil))
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(middleware.RateLimit(s.limiter))
		}

		r.Get("/health", s.handleHealth)

		r.Route("/record", func(r chi.Router) {
			r.Get("/", s.handleListRecords)
			r.Get("/count", s.handleCountRecords)
			r.Get("/keys", s.handleListKeys)
			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", s.handleGetRecord)
				r.Put("/", s.handleUploadTake)
				r.Post("/", s.handleUploadTake)
				r.Delete("/", s.handleDeleteTake)
				r.Get("/history", s.handleTakeHistory)
				r.Get("/{type}", s.handleDownloadAudio)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	slog.Info("api routes mounted", "rate_limit", s.cfg.RateLimit, "metrics", s.metrics != nil)
}

// handleHealth reports liveness and corpus progress.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.corpus.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"prompts":    st.Total,
		"recorded":   st.Recorded,
		"unrecorded": st.Unrecorded,
	})
}
