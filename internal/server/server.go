// Package server provides the HTTP surface of the simulation: entity
// lifecycle, interaction signals, entanglement control, neural
// introspection and field streaming.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/astatos/coherence/internal/config"
	"github.com/astatos/coherence/internal/engine"
)

// Config holds server configuration
type Config struct {
	Log     zerolog.Logger
	Config  *config.Config
	Engine  *engine.Engine
	Port    int
	DevMode bool
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    *config.Config
	engine *engine.Engine
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg.Config,
		engine: cfg.Engine,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the chi mux, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Unified events stream (SSE)
		eventsStreamHandler := NewEventsStreamHandler(s.engine.Events().Bus(), s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		systemHandlers := NewSystemHandlers(s.log, s.engine)
		r.Get("/system/status", systemHandlers.HandleSystemStatus)

		r.Get("/config", s.handleConfig)

		r.Route("/entities", func(r chi.Router) {
			r.Post("/", s.handleRegisterEntity)
			r.Get("/", s.handleListEntities)
			r.Get("/{id}", s.handleGetEntity)
			r.Delete("/{id}", s.handleRemoveEntity)
			r.Post("/{id}/observe", s.handleObserve)
			r.Post("/{id}/measure", s.handleMeasure)
			r.Post("/{id}/reset", s.handleReset)
		})

		r.Route("/entanglement", func(r chi.Router) {
			r.Post("/", s.handleEntangle)
			r.Get("/{id}", s.handleEntanglementStatus)
			r.Delete("/{id}", s.handleBreakEntanglement)
		})

		r.Post("/signals", s.handleSignal)

		r.Route("/neural", func(r chi.Router) {
			r.Get("/neurons", s.handleListNeurons)
			r.Get("/synapses", s.handleListSynapses)
			r.Post("/synapses", s.handleFormSynapse)
			r.Post("/plasticity", s.handlePlasticity)
		})

		fieldWS := NewFieldStreamHandler(s.engine, s.log)
		r.Route("/field", func(r chi.Router) {
			r.Get("/", s.handleFieldSnapshot)
			r.Get("/ws", fieldWS.ServeHTTP)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
