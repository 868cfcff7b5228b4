package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

var knownAuditCategories = map[models.AuditCategory]bool{
	models.AuditAuthentication:   true,
	models.AuditAuthorization:    true,
	models.AuditDataAccess:       true,
	models.AuditDataModification: true,
	models.AuditWorkflow:         true,
	models.AuditAgentExecution:   true,
	models.AuditSecurity:         true,
	models.AuditConfiguration:    true,
	models.AuditSystem:           true,
}

var knownAuditOutcomes = map[models.AuditOutcome]bool{
	models.OutcomeOK:      true,
	models.OutcomeFailure: true,
	models.OutcomeDenied:  true,
}

// queryAuditHandler handles GET /api/v1/audit.
// Filters: from, to (RFC3339), category, outcome (comma-separated),
// min_severity, max_severity, actor_id, target_id, session_id,
// project_id, limit, offset. Events come back in ascending sequence
// order.
func (s *Server) queryAuditHandler(c *gin.Context) {
	var opts audit.QueryOptions
	var ok bool

	if opts.From, ok = parseTimeParam(c, "from"); !ok {
		return
	}
	if opts.To, ok = parseTimeParam(c, "to"); !ok {
		return
	}

	for _, raw := range splitParam(c.Query("category")) {
		category := models.AuditCategory(raw)
		if !knownAuditCategories[category] {
			respondError(c, faults.Newf(faults.CodeValidation, "unknown audit category %q", raw))
			return
		}
		opts.Categories = append(opts.Categories, category)
	}
	for _, raw := range splitParam(c.Query("outcome")) {
		outcome := models.AuditOutcome(raw)
		if !knownAuditOutcomes[outcome] {
			respondError(c, faults.Newf(faults.CodeValidation, "unknown audit outcome %q", raw))
			return
		}
		opts.Outcomes = append(opts.Outcomes, outcome)
	}

	if raw := c.Query("min_severity"); raw != "" {
		severity := models.Severity(raw)
		if !severity.IsValid() {
			respondError(c, faults.Newf(faults.CodeValidation, "unknown severity %q", raw))
			return
		}
		opts.MinSeverity = severity
	}
	if raw := c.Query("max_severity"); raw != "" {
		severity := models.Severity(raw)
		if !severity.IsValid() {
			respondError(c, faults.Newf(faults.CodeValidation, "unknown severity %q", raw))
			return
		}
		opts.MaxSeverity = severity
	}

	opts.ActorID = c.Query("actor_id")
	opts.TargetID = c.Query("target_id")
	opts.SessionID = c.Query("session_id")
	opts.ProjectID = c.Query("project_id")

	if opts.Limit, ok = parseIntParam(c, "limit", defaultAuditLimit, 1, maxAuditLimit); !ok {
		return
	}
	if opts.Offset, ok = parseIntParam(c, "offset", 0, 0, math.MaxInt); !ok {
		return
	}

	events := s.auditLog.Query(opts)
	c.JSON(http.StatusOK, &AuditQueryResponse{Events: events, Count: len(events)})
}

// verifyAuditHandler handles GET /api/v1/audit/verify.
// Recomputes the hash chain over the whole log, or over [from_seq,to_seq]
// when both are given. A broken chain is reported in the body, not as an
// HTTP error.
func (s *Server) verifyAuditHandler(c *gin.Context) {
	fromRaw, toRaw := c.Query("from_seq"), c.Query("to_seq")
	if (fromRaw == "") != (toRaw == "") {
		respondError(c, faults.New(faults.CodeValidation,
			"from_seq and to_seq must be given together"))
		return
	}

	var report *audit.IntegrityReport
	var err error
	if fromRaw == "" {
		report, err = s.auditLog.VerifyIntegrity()
	} else {
		var fromSeq, toSeq int64
		if fromSeq, err = strconv.ParseInt(fromRaw, 10, 64); err != nil {
			respondError(c, faults.Newf(faults.CodeValidation, "from_seq must be an integer, got %q", fromRaw))
			return
		}
		if toSeq, err = strconv.ParseInt(toRaw, 10, 64); err != nil {
			respondError(c, faults.Newf(faults.CodeValidation, "to_seq must be an integer, got %q", toRaw))
			return
		}
		report, err = s.auditLog.VerifyIntegrityRange(fromSeq, toSeq)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// auditReportHandler handles GET /api/v1/audit/report.
// Builds a compliance report over the events in the optional [from,to]
// window.
func (s *Server) auditReportHandler(c *gin.Context) {
	from, ok := parseTimeParam(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(c, "to")
	if !ok {
		return
	}

	events := s.auditLog.Query(audit.QueryOptions{From: from, To: to})
	c.JSON(http.StatusOK, audit.BuildComplianceReport(events, from, to))
}
