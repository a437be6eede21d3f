package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/internal/auth"
	"github.com/baegaepro/pillow-client/internal/config"
	"github.com/baegaepro/pillow-client/internal/events"
	"github.com/baegaepro/pillow-client/internal/validation"
)

type contextKey string

const claimsKey contextKey = "claims"

// RESTServer is the sandbox backend: the pillow REST API plus a simulated device access point
type RESTServer struct {
	config    *config.Config
	registry  *Registry
	auth      *auth.JWTManager
	validator *validation.Validator
	device    *simulatedDevice
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new sandbox server
func NewRESTServer(cfg *config.Config) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		registry:  NewRegistry(cfg.Sandbox.CodeTTL, cfg.Sandbox.CompletionPolls),
		auth:      auth.NewJWTManager(&cfg.JWT),
		validator: validation.NewValidator(),
		device:    &simulatedDevice{id: cfg.Sandbox.DeviceID, firmware: "1.0.0"},
		router:    chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Registry exposes the backing state
func (s *RESTServer) Registry() *Registry {
	return s.registry
}

// TransitionSink records transitions into the feed served at /devices/provisioning/transitions
func (s *RESTServer) TransitionSink() events.Publisher {
	return transitionSink{r: s.registry}
}

// Handler returns the root handler, for httptest
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/health", s.HandleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})

	s.setupDeviceRoutes(s.router)
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting sandbox server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request through zerolog
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom returns the claims set by authMiddleware
func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}
