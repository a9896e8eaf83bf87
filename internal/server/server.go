// Package server serves the monitoring dashboard over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/branchd-dev/queuemon/internal/auth"
	"github.com/branchd-dev/queuemon/internal/config"
	"github.com/branchd-dev/queuemon/internal/monitor"
)

// HealthPath is served outside the dashboard prefix and without auth.
const HealthPath = "/healthz"

// ErrPortUnavailable is returned when the listen address cannot be bound.
var ErrPortUnavailable = errors.New("port unavailable")

// Pinger checks broker reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the dashboard HTTP server
type Server struct {
	router    *gin.Engine
	config    config.ServerConfig
	dashboard monitor.Dashboard
	broker    Pinger
	accounts  auth.Accounts
	logger    zerolog.Logger
}

// New creates a new server instance. It fails with a configuration error if
// the dashboard credentials are malformed.
func New(cfg config.ServerConfig, dashboard monitor.Dashboard, broker Pinger, zlog zerolog.Logger) (*Server, error) {
	accounts, err := auth.ParseCredentials(cfg.Auth)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    cfg,
		dashboard: dashboard,
		broker:    broker,
		accounts:  accounts,
		logger:    zlog,
	}

	s.setupRouter()

	return s, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	if len(s.config.CORSAllowedOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	if s.accounts.Enabled() {
		s.router.Use(BasicAuthMiddleware(s.accounts, s.logger, HealthPath))
	} else {
		s.logger.Warn().Msg("FLOWER_AUTH not set - dashboard is unauthenticated")
	}

	// The dashboard owns every path under its root, so a single catch-all
	// route dispatches between it and the health check.
	dashboard := gin.WrapH(s.dashboard)
	s.router.Any("/*path", func(c *gin.Context) {
		if c.Request.URL.Path == HealthPath && c.Request.Method == http.MethodGet {
			s.healthCheck(c)
			return
		}
		dashboard(c)
	})
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "online", http.StatusOK
	if err := s.broker.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Health check: broker ping failed")
		status, code = "broker_unreachable", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"service":   "queuemon",
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the configured address and port.
func (s *Server) Listen() (net.Listener, error) {
	addr := s.config.ListenAddr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPortUnavailable, addr, err)
	}
	return ln, nil
}

// Start binds the listener and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves the dashboard on ln until ctx is cancelled. It returns nil on
// cancellation and an error if the server stops on its own.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       300 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Str("url_prefix", s.dashboard.RootPath()).
			Bool("auth", s.accounts.Enabled()).
			Msg("Starting dashboard server")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Received shutdown signal, shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("Dashboard server did not shut down cleanly")
		return srv.Close()
	}

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}
