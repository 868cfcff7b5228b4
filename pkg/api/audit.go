package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/baton/pkg/audit"
)

// auditAppend appends an API-boundary audit entry. Audit write failures
// are logged, never surfaced: the audited action itself already
// happened.
func auditAppend(ctx context.Context, log *audit.Log, entry audit.Entry) {
	if log == nil {
		return
	}
	if _, err := log.Append(ctx, entry); err != nil {
		slog.Error("Failed to append audit event", "action", entry.Action, "error", err)
	}
}

func (s *Server) recordAudit(c *gin.Context, entry audit.Entry) {
	auditAppend(c.Request.Context(), s.auditLog, entry)
}
