package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// seedAudit appends a minimal entry and returns its sequence.
func seedAudit(t *testing.T, srv *Server, category models.AuditCategory, severity models.Severity, outcome models.AuditOutcome, action string) int64 {
	t.Helper()
	event, err := srv.auditLog.Append(context.Background(), audit.Entry{
		Category:    category,
		Action:      action,
		Severity:    severity,
		Outcome:     outcome,
		Actor:       models.AuditActor{Type: models.ActorSystem, ID: "baton"},
		Description: "seeded for handler test",
	})
	require.NoError(t, err)
	return event.Sequence
}

func TestQueryAudit(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	seedAudit(t, srv, models.AuditWorkflow, models.SeverityInfo, models.OutcomeOK, "workflow.submit")
	seedAudit(t, srv, models.AuditConfiguration, models.SeverityInfo, models.OutcomeOK, "settings.update")
	seedAudit(t, srv, models.AuditSecurity, models.SeverityWarning, models.OutcomeDenied, "redaction.blocked")

	rec := doRequest(t, h, http.MethodGet, "/api/v1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var resp AuditQueryResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, 3, resp.Count)
	assert.True(t, resp.Events[0].Sequence < resp.Events[1].Sequence)
	assert.True(t, resp.Events[1].Sequence < resp.Events[2].Sequence)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/audit?category=security", nil)
	decodeBody(t, rec, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "redaction.blocked", resp.Events[0].Action)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/audit?min_severity=warning", nil)
	decodeBody(t, rec, &resp)
	require.Equal(t, 1, resp.Count)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/audit?outcome=denied", nil)
	decodeBody(t, rec, &resp)
	require.Equal(t, 1, resp.Count)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/audit?limit=2&offset=2", nil)
	decodeBody(t, rec, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "redaction.blocked", resp.Events[0].Action)
}

func TestQueryAudit_Validation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	tests := []struct {
		name  string
		query string
	}{
		{name: "unknown category", query: "category=aviation"},
		{name: "unknown outcome", query: "outcome=maybe"},
		{name: "unknown min severity", query: "min_severity=screaming"},
		{name: "unknown max severity", query: "max_severity=silent"},
		{name: "malformed from", query: "from=yesterday"},
		{name: "zero limit", query: "limit=0"},
		{name: "oversized limit", query: "limit=99999"},
		{name: "negative offset", query: "offset=-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodGet, "/api/v1/audit?"+tt.query, nil)
			requireFault(t, rec, http.StatusBadRequest, faults.CodeValidation)
		})
	}
}

func TestVerifyAudit(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	seedAudit(t, srv, models.AuditWorkflow, models.SeverityInfo, models.OutcomeOK, "workflow.submit")
	seedAudit(t, srv, models.AuditWorkflow, models.SeverityInfo, models.OutcomeOK, "workflow.cancel")

	rec := doRequest(t, h, http.MethodGet, "/api/v1/audit/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var report audit.IntegrityReport
	decodeBody(t, rec, &report)
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.CheckedEvents)
	assert.False(t, report.ChainBroken)
}

func TestVerifyAudit_Range(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	first := seedAudit(t, srv, models.AuditWorkflow, models.SeverityInfo, models.OutcomeOK, "workflow.submit")
	seedAudit(t, srv, models.AuditWorkflow, models.SeverityInfo, models.OutcomeOK, "workflow.cancel")

	rec := doRequest(t, h, http.MethodGet,
		"/api/v1/audit/verify?from_seq=1&to_seq=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var report audit.IntegrityReport
	decodeBody(t, rec, &report)
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.CheckedEvents)
	assert.EqualValues(t, 1, first)
}

func TestVerifyAudit_HalfRange(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/audit/verify?from_seq=1", nil)
	requireFault(t, rec, http.StatusBadRequest, faults.CodeValidation)

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/audit/verify?from_seq=one&to_seq=2", nil)
	requireFault(t, rec, http.StatusBadRequest, faults.CodeValidation)
}

func TestAuditReport(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	seedAudit(t, srv, models.AuditWorkflow, models.SeverityInfo, models.OutcomeOK, "workflow.submit")
	seedAudit(t, srv, models.AuditAuthentication, models.SeverityWarning, models.OutcomeDenied, "api.authenticate")

	rec := doRequest(t, h, http.MethodGet, "/api/v1/audit/report", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var report audit.ComplianceReport
	decodeBody(t, rec, &report)
	assert.Equal(t, 2, report.TotalEvents)
	assert.False(t, report.GeneratedAt.IsZero())
	require.NotEmpty(t, report.Controls)

	byControl := make(map[string]audit.ControlAssessment, len(report.Controls))
	for _, control := range report.Controls {
		byControl[control.Control] = control
	}
	access := byControl["CC6.1"]
	assert.Equal(t, audit.ControlPartial, access.Status, "denied authentication is partial evidence")
	monitoring := byControl["CC7.2"]
	assert.Equal(t, audit.ControlCompliant, monitoring.Status)
}

func TestAuditReport_MalformedWindow(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/audit/report?to=lastweek", nil)
	requireFault(t, rec, http.StatusBadRequest, faults.CodeValidation)
}
