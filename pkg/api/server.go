// Package api exposes the orchestration engine over HTTP: a JSON REST
// surface under /api/v1 for workflow lifecycle, checkpoints, audit,
// settings and activity queries, plus a WebSocket endpoint for live
// activity streaming. Errors cross the boundary as structured fault
// bodies; the fault code picks the HTTP status.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/config"
	"github.com/codeready-toolchain/baton/pkg/events"
	"github.com/codeready-toolchain/baton/pkg/queue"
)

// Server wires HTTP handlers to the engine's components. Optional
// components (activity stream, persisted activity store, WebSocket
// connection manager) may be nil; their endpoints degrade gracefully.
type Server struct {
	cfg         *config.Config
	runs        *queue.RunStore
	pool        *queue.WorkerPool
	settings    *config.SettingsStore
	auditLog    *audit.Log
	connManager *events.ConnectionManager

	stream        *activity.Stream
	activityStore activity.Persistence

	httpServer *http.Server
}

// NewServer creates the API server over the given components.
func NewServer(cfg *config.Config, runs *queue.RunStore, pool *queue.WorkerPool, settings *config.SettingsStore, auditLog *audit.Log, connManager *events.ConnectionManager) *Server {
	return &Server{
		cfg:         cfg,
		runs:        runs,
		pool:        pool,
		settings:    settings,
		auditLog:    auditLog,
		connManager: connManager,
	}
}

// SetActivityStream attaches the in-memory activity stream, used for
// event queries when no persisted store is configured and for health
// reporting.
func (s *Server) SetActivityStream(stream *activity.Stream) {
	s.stream = stream
}

// SetActivityStore attaches the persisted activity store backing
// GET /api/v1/events.
func (s *Server) SetActivityStore(store activity.Persistence) {
	s.activityStore = store
}

// Handler builds the routing tree. Exposed separately from Start so
// tests can drive the full middleware and handler chain in-process.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery(), securityHeaders())

	r.GET("/healthz", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.websocketHandler)

	v1 := r.Group("/api/v1")
	if token := s.authToken(); token != "" {
		v1.Use(bearerAuth(token, s.auditLog))
	}

	v1.POST("/workflows", s.startWorkflowHandler)
	v1.GET("/workflows", s.listWorkflowsHandler)
	v1.GET("/workflows/:id", s.getWorkflowHandler)
	v1.POST("/workflows/:id/approval", s.approveWorkflowHandler)
	v1.POST("/workflows/:id/cancel", s.cancelWorkflowHandler)
	v1.POST("/workflows/:id/resume", s.resumeWorkflowHandler)
	v1.GET("/workflows/:id/checkpoints", s.listCheckpointsHandler)

	v1.GET("/checkpoints/:id", s.getCheckpointHandler)
	v1.GET("/checkpoints/:id/validate", s.validateCheckpointHandler)

	v1.GET("/audit", s.queryAuditHandler)
	v1.GET("/audit/verify", s.verifyAuditHandler)
	v1.GET("/audit/report", s.auditReportHandler)

	v1.GET("/settings", s.getSettingsHandler)
	v1.PUT("/settings", s.updateSettingsHandler)
	v1.POST("/settings/reset", s.resetSettingsHandler)

	v1.GET("/events", s.queryEventsHandler)

	return r
}

// authToken resolves the bearer token from the configured environment
// variable. Empty result disables authentication.
func (s *Server) authToken() string {
	if s.cfg == nil || s.cfg.API == nil || s.cfg.API.AuthTokenEnv == "" {
		return ""
	}
	token := os.Getenv(s.cfg.API.AuthTokenEnv)
	if token == "" {
		slog.Warn("API auth token env var is set but empty; authentication disabled",
			"env_var", s.cfg.API.AuthTokenEnv)
	}
	return token
}

// Start runs the HTTP server on addr and blocks until it stops.
func (s *Server) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	if s.cfg != nil && s.cfg.API != nil {
		s.httpServer.ReadTimeout = s.cfg.API.ReadTimeout
		s.httpServer.WriteTimeout = s.cfg.API.WriteTimeout
	}

	slog.Info("Starting API server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// up to the context deadline. WebSocket connections are closed by the
// connection manager, not here.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
