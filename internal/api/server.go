// Package api exposes the analysis engine over HTTP: task submission and
// status, progress streaming (SSE and websocket), cached result reads, and
// service health.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gourav1632/into-the-repo/internal/analysis"
	"github.com/Gourav1632/into-the-repo/internal/history"
	"github.com/Gourav1632/into-the-repo/internal/logging"
	"github.com/Gourav1632/into-the-repo/internal/tasks"
)

// Deps are the collaborators the server fronts.
type Deps struct {
	Orchestrator *tasks.Orchestrator
	Pipeline     *analysis.Pipeline
	Resolver     analysis.Resolver
	History      *history.Store
}

// Server is the HTTP API server.
type Server struct {
	router    *http.ServeMux
	server    *http.Server
	addr      string
	logger    *logging.Logger
	deps      Deps
	startedAt time.Time
}

// NewServer creates a server with routes registered and middleware applied.
func NewServer(addr string, deps Deps, logger *logging.Logger) *Server {
	s := &Server{
		addr:      addr,
		logger:    logger,
		deps:      deps,
		router:    http.NewServeMux(),
		startedAt: time.Now().UTC(),
	}
	s.registerRoutes()

	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No write timeout: progress streams are long-lived.
		IdleTimeout: 120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/status", s.handleStatus)

	s.router.HandleFunc("/api/analyze", s.handleAnalyze)
	s.router.HandleFunc("/api/tasks/", s.handleTaskRoutes) // GET /:id, POST /:id/cancel
	s.router.HandleFunc("/api/progress", s.handleProgressSSE)
	s.router.HandleFunc("/api/progress/ws", s.handleProgressWS)
	s.router.HandleFunc("/api/result", s.handleResult)
	s.router.HandleFunc("/api/files/", s.handleFileRoutes) // GET /:path/callgraph
	s.router.HandleFunc("/api/verify", s.handleVerify)
	s.router.HandleFunc("/api/history", s.handleHistory)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.addr,
	})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", nil)
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}
