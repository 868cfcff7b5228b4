package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/baton/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /healthz.
// Only the engine's own components are checked; upstream providers are
// excluded so an LLM outage cannot make an orchestrator restart loop.
// A dead worker pool is unhealthy (503); activity persistence trouble
// only degrades.
func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.pool != nil {
		poolHealth := s.pool.Health()
		if poolHealth != nil && !poolHealth.IsHealthy {
			status = healthStatusUnhealthy
			checks["worker_pool"] = HealthCheck{
				Status:  healthStatusUnhealthy,
				Message: "no workers are accepting dispatches",
			}
		} else {
			checks["worker_pool"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.stream != nil {
		stats := s.stream.Stats()
		if stats.PersistFailures > 0 {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["activity_stream"] = HealthCheck{
				Status:  healthStatusDegraded,
				Message: "activity events have failed to persist",
			}
		} else {
			checks["activity_stream"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
