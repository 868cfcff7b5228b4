package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// getSettingsHandler handles GET /api/v1/settings.
func (s *Server) getSettingsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings.Get())
}

// updateSettingsHandler handles PUT /api/v1/settings.
// Unknown keys are rejected; omitted keys keep their current values.
// The store validates ranges and persists before the response.
func (s *Server) updateSettingsHandler(c *gin.Context) {
	settings := s.settings.Get()

	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		respondError(c, faults.Newf(faults.CodeValidation, "invalid settings document: %v", err))
		return
	}

	updated, err := s.settings.Update(settings)
	if err != nil {
		respondError(c, err)
		return
	}

	s.recordAudit(c, audit.Entry{
		Category:    models.AuditConfiguration,
		Action:      "settings.update",
		Severity:    models.SeverityInfo,
		Outcome:     models.OutcomeOK,
		Actor:       models.AuditActor{Type: models.ActorUser, ID: extractAuthor(c)},
		Target:      &models.AuditTarget{Type: "settings", ID: s.settings.Path()},
		Description: "workflow settings updated",
	})

	c.JSON(http.StatusOK, updated)
}

// resetSettingsHandler handles POST /api/v1/settings/reset.
func (s *Server) resetSettingsHandler(c *gin.Context) {
	defaults, err := s.settings.Reset()
	if err != nil {
		respondError(c, err)
		return
	}

	s.recordAudit(c, audit.Entry{
		Category:    models.AuditConfiguration,
		Action:      "settings.reset",
		Severity:    models.SeverityInfo,
		Outcome:     models.OutcomeOK,
		Actor:       models.AuditActor{Type: models.ActorUser, ID: extractAuthor(c)},
		Target:      &models.AuditTarget{Type: "settings", ID: s.settings.Path()},
		Description: "workflow settings reset to defaults",
	})

	c.JSON(http.StatusOK, defaults)
}
