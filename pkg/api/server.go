// Package api provides the ops HTTP server used in http mode: health and
// readiness probes plus the SSE mount for the MCP tool surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentinelops/alertbridge/pkg/version"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	readinessTimeout = 5 * time.Second
)

// Pinger checks backend reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the ops HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	backend    Pinger
}

// NewServer builds the ops server. mcpHandler is mounted at /mcp and serves
// the MCP protocol over SSE.
func NewServer(backend Pinger, mcpHandler http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		backend: backend,
	}

	engine.GET("/healthz", s.healthHandler)
	engine.GET("/readyz", s.readyHandler)
	engine.Any("/mcp", gin.WrapH(mcpHandler))

	return s
}

// healthHandler handles GET /healthz. Liveness only: it does not touch the
// backend, so an unreachable backend never restarts the bridge.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  statusHealthy,
		"version": version.Full(),
	})
}

// readyHandler handles GET /readyz. Ready means the backend answers its
// status endpoint with the configured credentials.
func (s *Server) readyHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := s.backend.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  statusUnhealthy,
			"backend": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": statusHealthy,
	})
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
