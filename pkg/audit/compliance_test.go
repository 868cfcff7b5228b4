package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/models"
)

func evidence(category models.AuditCategory, outcome models.AuditOutcome, n int) []models.AuditEvent {
	out := make([]models.AuditEvent, n)
	for i := range out {
		out[i] = models.AuditEvent{
			Category: category,
			Outcome:  outcome,
			Actor:    models.AuditActor{Type: models.ActorSystem, ID: "engine"},
		}
	}
	return out
}

func findControl(t *testing.T, report *ComplianceReport, id string) ControlAssessment {
	t.Helper()
	for _, c := range report.Controls {
		if c.Control == id {
			return c
		}
	}
	t.Fatalf("control %s not in report", id)
	return ControlAssessment{}
}

func TestBuildComplianceReport(t *testing.T) {
	t.Run("no evidence is non compliant", func(t *testing.T) {
		report := BuildComplianceReport(nil, nil, nil)
		require.Len(t, report.Controls, 5)
		for _, c := range report.Controls {
			assert.Equal(t, ControlNonCompliant, c.Status, c.Control)
			assert.Zero(t, c.EvidenceCount)
		}
	})

	t.Run("clean evidence is compliant", func(t *testing.T) {
		events := evidence(models.AuditAuthentication, models.OutcomeOK, 10)
		report := BuildComplianceReport(events, nil, nil)

		access := findControl(t, report, "CC6.1")
		assert.Equal(t, ControlCompliant, access.Status)
		assert.Equal(t, 10, access.EvidenceCount)
	})

	t.Run("a few failures downgrade to partial", func(t *testing.T) {
		events := append(
			evidence(models.AuditWorkflow, models.OutcomeOK, 19),
			evidence(models.AuditWorkflow, models.OutcomeFailure, 1)...)
		report := BuildComplianceReport(events, nil, nil)

		monitoring := findControl(t, report, "CC7.2")
		assert.Equal(t, ControlPartial, monitoring.Status)
		assert.Equal(t, 20, monitoring.EvidenceCount)
		assert.Equal(t, 1, monitoring.FailureCount)
	})

	t.Run("heavy failures are non compliant", func(t *testing.T) {
		events := append(
			evidence(models.AuditConfiguration, models.OutcomeOK, 5),
			evidence(models.AuditConfiguration, models.OutcomeFailure, 5)...)
		report := BuildComplianceReport(events, nil, nil)

		change := findControl(t, report, "CC8.1")
		assert.Equal(t, ControlNonCompliant, change.Status)
	})

	t.Run("denials alone mark partial", func(t *testing.T) {
		events := append(
			evidence(models.AuditSecurity, models.OutcomeOK, 8),
			evidence(models.AuditSecurity, models.OutcomeDenied, 2)...)
		report := BuildComplianceReport(events, nil, nil)

		incidents := findControl(t, report, "CC7.3")
		assert.Equal(t, ControlPartial, incidents.Status)
		assert.Equal(t, 2, incidents.DeniedCount)
	})

	t.Run("total events counted", func(t *testing.T) {
		events := evidence(models.AuditDataAccess, models.OutcomeOK, 7)
		report := BuildComplianceReport(events, nil, nil)
		assert.Equal(t, 7, report.TotalEvents)
	})
}
