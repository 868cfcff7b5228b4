package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// requestLogger logs one line per request. Health and metrics probes
// are skipped to keep the log readable under scrape traffic.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP())
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// bearerAuth enforces a static bearer token on the API group. The
// comparison is constant-time; failures carry a security fault body and
// are audited as denied authentication.
func bearerAuth(token string, auditLog *audit.Log) gin.HandlerFunc {
	deny := func(c *gin.Context, reason string) {
		auditAppend(c.Request.Context(), auditLog, audit.Entry{
			Category:    models.AuditAuthentication,
			Action:      "api.authenticate",
			Severity:    models.SeverityWarning,
			Outcome:     models.OutcomeDenied,
			Actor:       models.AuditActor{Type: models.ActorExternal, ID: c.ClientIP()},
			Description: reason,
			Details:     map[string]any{"path": c.Request.URL.Path},
		})
		abortWithFault(c, http.StatusUnauthorized,
			faults.New(faults.CodeSecurity, reason))
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			deny(c, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			deny(c, "invalid bearer token")
			return
		}
		c.Next()
	}
}
