// Package httpapi serves the daemon's health and status endpoints. The
// document API itself is exposed over MCP; this server exists for liveness
// probes and operator inspection only.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/boundary"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// Version is stamped at build time.
var Version = "dev"

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the health and status endpoints.
type Server struct {
	echo      *echo.Echo
	gate      *boundary.Service
	store     vectorstore.Store
	knowledge *knowledge.Service
	logger    *zap.Logger
	config    Config
}

// NewServer creates the HTTP server.
func NewServer(gate *boundary.Service, store vectorstore.Store, kn *knowledge.Service, logger *zap.Logger, cfg Config) (*Server, error) {
	if gate == nil {
		return nil, fmt.Errorf("boundary service is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		gate:      gate,
		store:     store,
		knowledge: kn,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/api/v1/status", s.handleStatus)
	s.echo.POST("/api/v1/maintain", s.handleMaintain)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status  string                   `json:"status"`
	Version string                   `json:"version,omitempty"`
	Session *boundary.ActivateResult `json:"session,omitempty"`
	Counts  map[string]int           `json:"counts"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady reports whether the vector store answers requests.
func (s *Server) handleReady(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := s.store.CollectionExists(ctx, s.knowledge.Collection(knowledge.KindKnowledge)); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "store unavailable"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ready"})
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := StatusResponse{
		Status:  "no_tenant",
		Version: Version,
		Counts:  map[string]int{},
	}

	if session, ok := s.gate.Status(); ok {
		resp.Status = "active"
		resp.Session = session
	}

	ctx := c.Request().Context()
	for _, kind := range []string{knowledge.KindKnowledge, knowledge.KindReference} {
		collection := s.knowledge.Collection(kind)
		exists, err := s.store.CollectionExists(ctx, collection)
		if err != nil || !exists {
			continue
		}
		n, err := s.store.Count(ctx, collection)
		if err != nil {
			continue
		}
		resp.Counts[kind] = n
	}

	return c.JSON(http.StatusOK, resp)
}

// MaintainResponse is the response body for POST /api/v1/maintain.
type MaintainResponse struct {
	Maintained []string `json:"maintained"`
}

// handleMaintain runs index maintenance across the daemon's collections.
// Maintenance is out-of-band: engines rebuild off the serving path, so
// concurrent searches keep being answered from the pre-maintenance index.
func (s *Server) handleMaintain(c echo.Context) error {
	ctx := c.Request().Context()
	maintained := make([]string, 0, 2)
	for _, kind := range []string{knowledge.KindKnowledge, knowledge.KindReference} {
		collection := s.knowledge.Collection(kind)
		exists, err := s.store.CollectionExists(ctx, collection)
		if err != nil {
			s.logger.Warn("maintenance check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "store unavailable"})
		}
		if !exists {
			continue
		}
		if err := s.store.Maintain(ctx, collection); err != nil {
			s.logger.Warn("maintenance failed", zap.String("kind", kind), zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "maintenance failed"})
		}
		maintained = append(maintained, kind)
	}
	return c.JSON(http.StatusOK, MaintainResponse{Maintained: maintained})
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
