package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/subscription-params/internal/core/ports/driven"
	"github.com/custodia-labs/subscription-params/internal/core/ports/driving"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	parameterService driving.ParameterService
	tokenVerifier    driven.TokenVerifier
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	parameterService driving.ParameterService,
	tokenVerifier driven.TokenVerifier,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		logger:           logger,
		parameterService: parameterService,
		tokenVerifier:    tokenVerifier,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router wrapped in recovery and logging middleware
func (s *Server) Handler() http.Handler {
	logging := NewLoggingMiddleware(s.logger)
	recovery := NewRecoveryMiddleware(s.logger)
	return recovery.Handler(logging.Handler(s.router))
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.tokenVerifier)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Subscription parameter endpoints
	s.router.Handle("GET /api/v1/subscriptions/{subscriptionID}/parameters",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListParameters)))
	s.router.Handle("POST /api/v1/subscriptions/{subscriptionID}/parameters",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleCreateParameter)))
	s.router.Handle("PUT /api/v1/subscriptions/{subscriptionID}/parameters",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleReplaceParameters)))
	s.router.Handle("GET /api/v1/subscriptions/{subscriptionID}/parameters/{name}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetParameter)))

	// Plan-scoped endpoints
	s.router.Handle("GET /api/v1/subscriptions/{subscriptionID}/plans/{planID}/parameters",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListPlanParameters)))
	s.router.Handle("GET /api/v1/subscriptions/{subscriptionID}/plans/{planID}/arm-parameters",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleExportARMParameters)))
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	s.logger.Info("shutting down server")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
