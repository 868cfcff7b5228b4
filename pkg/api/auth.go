package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/baton/pkg/models"
)

// extractAuthor determines the acting user from proxy headers.
// Priority: X-Forwarded-User > X-Forwarded-Email > X-Remote-User,
// falling back to "api-client" for direct unauthenticated access.
func extractAuthor(c *gin.Context) string {
	if user := c.GetHeader("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.GetHeader("X-Forwarded-Email"); email != "" {
		return email
	}
	if user := c.GetHeader("X-Remote-User"); user != "" {
		return user
	}
	return "api-client"
}

// buildAuthContext assembles the identity attached to a submitted
// workflow: tenant from the request body, user from proxy headers, and
// a fresh session id minted per submission.
func buildAuthContext(c *gin.Context, tenantID string) models.AuthContext {
	return models.AuthContext{
		TenantID:  tenantID,
		UserID:    extractAuthor(c),
		SessionID: uuid.NewString(),
	}
}
