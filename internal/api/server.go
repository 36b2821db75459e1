package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/code-review-quest/internal/catalog"
	"github.com/terra-clan/code-review-quest/internal/config"
	"github.com/terra-clan/code-review-quest/internal/game"
	"github.com/terra-clan/code-review-quest/internal/guest"
	"github.com/terra-clan/code-review-quest/internal/identity"
)

// DefaultCountdownInterval is how often the session socket reports the remaining time
const DefaultCountdownInterval = time.Second

// Server represents the HTTP API server
type Server struct {
	config             config.ServerConfig
	sessionConfig      config.SessionConfig
	router             *chi.Mux
	manager            game.Manager
	guests             *guest.Service
	catalog            *catalog.Loader
	identityMiddleware *IdentityMiddleware
	countdownInterval  time.Duration
	health             HealthChecker
}

// HealthChecker reports the health of named backing services
type HealthChecker interface {
	HealthCheckAll(ctx context.Context) map[string]error
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	sessionCfg config.SessionConfig,
	manager game.Manager,
	guests *guest.Service,
	loader *catalog.Loader,
	resolver *identity.Resolver,
) *Server {
	s := &Server{
		config:             cfg,
		sessionConfig:      sessionCfg,
		manager:            manager,
		guests:             guests,
		catalog:            loader,
		identityMiddleware: NewIdentityMiddleware(resolver),
		countdownInterval:  DefaultCountdownInterval,
	}
	s.setupRouter()
	return s
}

// WithCountdownInterval overrides the session socket tick
func (s *Server) WithCountdownInterval(d time.Duration) *Server {
	s.countdownInterval = d
	return s
}

// WithHealthChecks adds backing service checks to the readiness probe
func (s *Server) WithHealthChecks(h HealthChecker) *Server {
	s.health = h
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", GuestHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		timeout := middleware.Timeout(60 * time.Second)

		// Routes that act on behalf of the caller
		r.Group(func(r chi.Router) {
			r.Use(s.identityMiddleware.Resolve)

			r.Route("/sessions", func(r chi.Router) {
				// The socket outlives any request timeout
				r.Get("/{id}/ws", s.handleSessionWS)

				r.Group(func(r chi.Router) {
					r.Use(timeout)
					r.Post("/", s.handleStartSession)
					r.Get("/{id}", s.handleGetSession)
					r.Post("/{id}/submit", s.handleSubmit)
				})
			})

			r.With(timeout).Get("/problems/{id}/explanation", s.handleExplanation)
			r.With(timeout).Get("/profile", s.handleProfile)
		})

		// Guest and catalog routes never resolve the caller
		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Route("/guests", func(r chi.Router) {
				r.Post("/", s.handleCreateGuest)
				r.Route("/{handle}", func(r chi.Router) {
					r.Get("/", s.handleGetGuest)
					r.Put("/", s.handleUpdateGuest)
					r.Delete("/", s.handleDeleteGuest)
					r.Get("/profile", s.handleGuestProfile)
					r.Get("/convert", s.handleGuestConversion)
				})
			})

			r.Get("/problems", s.handleListProblems)
			r.Get("/problems/stats", s.handleProblemStats)
			r.Get("/badges", s.handleListBadges)
			r.Get("/leaderboard", s.handleLeaderboard)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
