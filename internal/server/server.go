// Package server provides the operational HTTP server of the code generator.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gourl/shortcode/internal/config"
	"github.com/gourl/shortcode/internal/handlers"
	"github.com/gourl/shortcode/internal/metrics"
	"github.com/gourl/shortcode/internal/middleware"
	"github.com/gourl/shortcode/pkg/logger"
)

// Server represents the HTTP server.
type Server struct {
	cfg           *config.Config
	log           *logger.Logger
	httpServer    *http.Server
	healthHandler *handlers.HealthHandler
	codeHandler   *handlers.CodeHandler
	listener      net.Listener
	running       bool
	mu            sync.RWMutex
}

// New creates a new Server instance. Code routes answer 503 until an engine
// is attached with SetEngine.
func New(cfg *config.Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:           cfg,
		log:           log,
		healthHandler: handlers.NewHealthHandler(),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      s.buildMiddlewareChain(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// buildMiddlewareChain creates the middleware chain for the server.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	return middleware.Chain(
		middleware.Metrics(),
		middleware.RequestID(),
		middleware.AccessLog(s.log),
		middleware.Recover(s.log),
	)(handler)
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.healthHandler.Health)
	mux.HandleFunc("GET /ready", s.healthHandler.Ready)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /v1/codes", s.withCodes(func(h *handlers.CodeHandler) http.HandlerFunc { return h.IssueCode }))
	mux.HandleFunc("POST /v1/aliases/{alias}", s.withCodes(func(h *handlers.CodeHandler) http.HandlerFunc { return h.ClaimAlias }))
	mux.HandleFunc("GET /v1/stats", s.withCodes(func(h *handlers.CodeHandler) http.HandlerFunc { return h.Stats }))
	mux.HandleFunc("POST /v1/admin/reserved/reload", s.withCodes(func(h *handlers.CodeHandler) http.HandlerFunc { return h.ReloadReserved }))
}

// withCodes resolves the code handler at request time.
func (s *Server) withCodes(route func(*handlers.CodeHandler) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		h := s.codeHandler
		s.mu.RUnlock()
		if h == nil {
			http.Error(w, "code engine not configured", http.StatusServiceUnavailable)
			return
		}
		route(h)(w, r)
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address()

	// Listen first so the bound address is known when port is 0.
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.log.Info("server starting", "address", listener.Addr().String())

	err = s.httpServer.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")

	s.healthHandler.SetReady(false)

	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil {
		s.log.Error("shutdown error", "error", err.Error())
		return err
	}

	s.log.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HealthHandler returns the health handler.
func (s *Server) HealthHandler() *handlers.HealthHandler {
	return s.healthHandler
}

// AddReadyCheck registers a dependency consulted by /ready.
func (s *Server) AddReadyCheck(name string, check handlers.CheckFunc) {
	s.healthHandler.AddCheck(name, check)
}

// SetEngine attaches the code engine served under /v1.
func (s *Server) SetEngine(engine handlers.CodeEngine) {
	h := handlers.NewCodeHandler(engine, s.cfg.Engine.ReservedPath, s.log.With("component", "http"))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codeHandler = h
}
