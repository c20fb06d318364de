// Package http provides the HTTP adapter for the transition engine and catalog.
// This is a thin adapter layer that translates HTTP requests to application calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/workflow-engine/internal/application/workflow"
	domainwf "github.com/garyjia/workflow-engine/internal/domain/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Catalog manages machine definitions
type Catalog interface {
	Register(ctx context.Context, def *domainwf.Definition) (*domainwf.Definition, error)
	Machine(ctx context.Context, ref domainwf.MachineRef) (*domainwf.Definition, error)
	DeleteMachine(ctx context.Context, ref domainwf.MachineRef) error
	CreateGroup(ctx context.Context, group *domainwf.Group) error
	ListGroups(ctx context.Context) ([]*domainwf.Group, error)
}

// GuardValidator pre-flights guard configuration strings
type GuardValidator interface {
	Validate(config string) []error
	Types() []string
}

// HealthCheck reports the health of one dependency
type HealthCheck func(ctx context.Context) error

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		Mode:         gin.ReleaseMode,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ServerOption configures optional server features
type ServerOption func(*Server)

// WithMetricsHandler exposes h on GET /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithHealthCheck adds a named dependency check to GET /health
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	engine     workflow.Engine
	catalog    Catalog
	guards     GuardValidator
	metrics    http.Handler
	checks     map[string]HealthCheck
	logger     Logger
}

// NewServer creates a new HTTP server
func NewServer(
	config ServerConfig,
	engine workflow.Engine,
	catalog Catalog,
	guards GuardValidator,
	logger Logger,
	opts ...ServerOption,
) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	server := &Server{
		config:  config,
		router:  gin.New(),
		engine:  engine,
		catalog: catalog,
		guards:  guards,
		checks:  make(map[string]HealthCheck),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.engine, s.catalog, s.guards, s.checks, s.logger)

	s.router.GET("/health", handlers.HealthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := s.router.Group("/api/v1")
	{
		api.POST("/transitions/check", handlers.CheckTransition)
		api.POST("/transitions/apply", handlers.ApplyTransition)
		api.POST("/transitions/force", handlers.ForceTransition)

		entity := api.Group("/entities/:entity_type/:entity_id")
		entity.GET("/history", handlers.EntityHistory)
		entity.GET("/machines/:machine/state", handlers.CurrentState)
		entity.GET("/machines/:machine/history", handlers.EntityHistory)
		entity.GET("/machines/:machine/available", handlers.AvailableTransitions)
		entity.POST("/machines/:machine/available", handlers.AvailableTransitions)

		api.POST("/machines", handlers.RegisterMachine)
		api.GET("/machines/:machine", handlers.GetMachine)
		api.DELETE("/machines/:machine", handlers.DeleteMachine)

		api.GET("/groups", handlers.ListGroups)
		api.POST("/groups", handlers.CreateGroup)

		api.GET("/guards", handlers.GuardTypes)
		api.POST("/guards/validate", handlers.ValidateGuard)
	}
}

// Start starts the HTTP server and blocks until ctx is done or serving fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
