// Package api provides the HTTP API server for the build plane.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/embedforge/buildplane/internal/api/handlers"
	"github.com/embedforge/buildplane/internal/api/middleware"
	"github.com/embedforge/buildplane/internal/store"
	"github.com/embedforge/buildplane/pkg/config"
	"github.com/embedforge/buildplane/pkg/logger"
)

// Version is set at build time using ldflags.
var Version = "dev"

// Server is the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	store      store.Store
	config     *config.Config
	logger     *logger.Logger
}

// Options carries the collaborators the server exposes over HTTP.
type Options struct {
	Orchestrator handlers.BuildOrchestrator
	// Hub, when non-nil, serves websocket subscriptions on /ws.
	Hub http.Handler
	// Registry, when non-nil, serves Prometheus metrics on /metrics.
	Registry *prometheus.Registry
}

// NewServer creates an API server.
func NewServer(cfg *config.Config, st store.Store, opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		store:  st,
		config: cfg,
		logger: log,
	}
	s.setupRouter(opts)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket and long polls manage their own deadlines
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter(opts Options) {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger(s.logger.Logger))
	r.Use(middleware.Recovery(s.logger.Logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)

	if opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}
	if opts.Hub != nil {
		r.Get("/ws", opts.Hub.ServeHTTP)
	}

	buildHandler := handlers.NewBuildHandler(s.store, opts.Orchestrator, s.logger)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/builds", func(r chi.Router) {
			r.Get("/", buildHandler.ListActive)
			r.Get("/queued", buildHandler.ListQueued)
			r.Route("/{buildID}", func(r chi.Router) {
				r.Post("/invoke", buildHandler.Invoke)
				r.Post("/stop", buildHandler.Stop)
				r.Get("/stages", buildHandler.Stages)
			})
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// Router returns the configured router, used by tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// HTTPServer exposes the underlying server for shutdown wiring.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Start begins serving HTTP. It blocks until the server exits.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
