package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/ports/repository"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/sched"
)

// Server is the JSON surface the browser dashboard talks to. It only reads
// and drives the run tracker; all rendering stays client-side.
type Server struct {
	runner  *sched.Runner
	archive repository.RunArchive    // nil: history/leaderboard disabled
	cache   repository.SnapshotCache // nil: archived lookups skip the cache
	auth    *AuthManager
	apiKey  string
	origins []string
	log     *zerolog.Logger
}

func NewServer(
	runner *sched.Runner,
	archive repository.RunArchive,
	cache repository.SnapshotCache,
	auth *AuthManager,
	apiKey string,
	corsOrigins []string,
	logger *zerolog.Logger,
) *Server {
	webLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		runner:  runner,
		archive: archive,
		cache:   cache,
		auth:    auth,
		apiKey:  apiKey,
		origins: corsOrigins,
		log:     &webLog,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", s.handleSubmit)
		r.Get("/runs/current", s.handleSnapshot)
		r.Delete("/runs/current", s.handleReset)
		r.Get("/runs/{jobID}", s.handleGetRun)
		r.Get("/history", s.handleHistory)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Post("/admin/login", s.handleAdminLogin)
		r.With(s.requireAdmin).Delete("/history/{id}", s.handleDeleteRun)
	})

	return r
}

// requireAdmin guards history management behind the admin session.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
