package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/polarlyst/arbmonitor/internal/domain"
	"github.com/polarlyst/arbmonitor/internal/server/handler"
	"github.com/polarlyst/arbmonitor/internal/server/middleware"
	"github.com/polarlyst/arbmonitor/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter enables per-client request throttling when set.
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Opportunities *handler.OpportunityHandler
	Status        *handler.StatusHandler
	Archives      *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API for the arbitrage monitor.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Opportunity endpoints.
	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.List)
	mux.HandleFunc("GET /api/opportunities/top", handlers.Opportunities.Top)
	mux.HandleFunc("GET /api/opportunities/recent", handlers.Opportunities.Recent)
	mux.HandleFunc("GET /api/summary", handlers.Opportunities.GetSummary)
	mux.HandleFunc("GET /api/history", handlers.Opportunities.GetHistory)
	mux.HandleFunc("GET /api/alerts", handlers.Opportunities.ListAlerts)

	// Status endpoint.
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Archived snapshot listing.
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.List)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
