package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/api"
	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/queue"
	"github.com/codeready-toolchain/baton/pkg/workflow"
)

const (
	testTenantID  = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	testProjectID = "6ba7b811-9dad-11d1-80b4-00c04fd430c8"

	testPrompt = "add a checkout flow to the storefront"

	// Orchestrator classification payloads for the two standard paths.
	clsFullStack = `{"type":"feature","complexity":"moderate","requires_design":true,"requires_architecture":true,"confidence":0.9}`
	clsBackend   = `{"type":"feature","complexity":"simple","confidence":0.8}`

	waitTimeout  = 30 * time.Second
	pollInterval = 100 * time.Millisecond
)

// ─────────────────────────────────────────────────────────────────────────
// HTTP plumbing
// ─────────────────────────────────────────────────────────────────────────

func (app *TestApp) doJSON(t *testing.T, method, path string, body any, expectedStatus int, out any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode, "%s %s: %s", method, path, raw)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out), "body: %s", raw)
	}
}

func (app *TestApp) postJSON(t *testing.T, path string, body any, expectedStatus int, out any) {
	t.Helper()
	app.doJSON(t, http.MethodPost, path, body, expectedStatus, out)
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int, out any) {
	t.Helper()
	app.doJSON(t, http.MethodGet, path, expectedStatus, out)
}

func (app *TestApp) putJSON(t *testing.T, path string, body any, expectedStatus int, out any) {
	t.Helper()
	app.doJSON(t, http.MethodPut, path, body, expectedStatus, out)
}

// tryGetJSON fetches path and decodes a 200 response. Safe inside
// Eventually closures, which must not call require.
func (app *TestApp) tryGetJSON(path string, out any) bool {
	resp, err := http.Get(app.BaseURL + path)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(out) == nil
}

// ─────────────────────────────────────────────────────────────────────────
// Workflow lifecycle
// ─────────────────────────────────────────────────────────────────────────

func (app *TestApp) StartWorkflow(t *testing.T, taskID, prompt string) api.WorkflowAcceptedResponse {
	t.Helper()
	var resp api.WorkflowAcceptedResponse
	app.postJSON(t, "/api/v1/workflows", api.StartWorkflowRequest{
		TaskID:    taskID,
		TenantID:  testTenantID,
		ProjectID: testProjectID,
		Prompt:    prompt,
	}, http.StatusAccepted, &resp)
	return resp
}

func (app *TestApp) GetWorkflow(t *testing.T, id string) queue.Run {
	t.Helper()
	var run queue.Run
	app.getJSON(t, "/api/v1/workflows/"+id, http.StatusOK, &run)
	return run
}

// WaitForRunState polls over HTTP until the run reaches one of the
// wanted states.
func (app *TestApp) WaitForRunState(t *testing.T, id string, want ...queue.RunState) queue.Run {
	t.Helper()
	var run queue.Run
	require.Eventually(t, func() bool {
		var current queue.Run
		if !app.tryGetJSON("/api/v1/workflows/"+id, &current) {
			return false
		}
		run = current
		for _, s := range want {
			if run.State == s {
				return true
			}
		}
		return false
	}, waitTimeout, pollInterval,
		"workflow %s never reached %v (last state %q, reason %q)", id, want, run.State, run.Reason)
	return run
}

func (app *TestApp) ApproveWorkflow(t *testing.T, id string, approved bool, option, feedback string) queue.Run {
	t.Helper()
	var run queue.Run
	app.postJSON(t, "/api/v1/workflows/"+id+"/approval", api.ApprovalDecisionRequest{
		Approved:       approved,
		SelectedOption: option,
		Feedback:       feedback,
	}, http.StatusOK, &run)
	return run
}

func (app *TestApp) CancelWorkflow(t *testing.T, id string) {
	t.Helper()
	app.postJSON(t, "/api/v1/workflows/"+id+"/cancel", nil, http.StatusOK, nil)
}

// ResumeWorkflow resumes from the named checkpoint, or from the latest
// one when checkpointID is empty.
func (app *TestApp) ResumeWorkflow(t *testing.T, id, checkpointID string) api.WorkflowAcceptedResponse {
	t.Helper()
	var body any
	if checkpointID != "" {
		body = api.ResumeWorkflowRequest{CheckpointID: checkpointID}
	}
	var resp api.WorkflowAcceptedResponse
	app.postJSON(t, "/api/v1/workflows/"+id+"/resume", body, http.StatusAccepted, &resp)
	return resp
}

func (app *TestApp) ListCheckpoints(t *testing.T, id string) api.CheckpointListResponse {
	t.Helper()
	var resp api.CheckpointListResponse
	app.getJSON(t, "/api/v1/workflows/"+id+"/checkpoints", http.StatusOK, &resp)
	return resp
}

func (app *TestApp) ValidateCheckpoint(t *testing.T, checkpointID string) api.CheckpointValidationResponse {
	t.Helper()
	var resp api.CheckpointValidationResponse
	app.getJSON(t, "/api/v1/checkpoints/"+checkpointID+"/validate", http.StatusOK, &resp)
	return resp
}

// ─────────────────────────────────────────────────────────────────────────
// Audit, events, settings, health
// ─────────────────────────────────────────────────────────────────────────

func (app *TestApp) QueryAudit(t *testing.T, rawQuery string) api.AuditQueryResponse {
	t.Helper()
	path := "/api/v1/audit"
	if rawQuery != "" {
		path += "?" + rawQuery
	}
	var resp api.AuditQueryResponse
	app.getJSON(t, path, http.StatusOK, &resp)
	return resp
}

func (app *TestApp) VerifyAudit(t *testing.T) audit.IntegrityReport {
	t.Helper()
	var report audit.IntegrityReport
	app.getJSON(t, "/api/v1/audit/verify", http.StatusOK, &report)
	return report
}

func (app *TestApp) QueryEvents(t *testing.T, rawQuery string) api.EventQueryResponse {
	t.Helper()
	path := "/api/v1/events"
	if rawQuery != "" {
		path += "?" + rawQuery
	}
	var resp api.EventQueryResponse
	app.getJSON(t, path, http.StatusOK, &resp)
	return resp
}

func (app *TestApp) GetSettings(t *testing.T) models.WorkflowSettings {
	t.Helper()
	var doc models.WorkflowSettings
	app.getJSON(t, "/api/v1/settings", http.StatusOK, &doc)
	return doc
}

// UpdateSettings PUTs a partial settings document. The returned value is
// only meaningful when expectedStatus is 200.
func (app *TestApp) UpdateSettings(t *testing.T, patch map[string]any, expectedStatus int) models.WorkflowSettings {
	t.Helper()
	var doc models.WorkflowSettings
	var out any
	if expectedStatus == http.StatusOK {
		out = &doc
	}
	app.putJSON(t, "/api/v1/settings", patch, expectedStatus, out)
	return doc
}

func (app *TestApp) ResetSettings(t *testing.T) models.WorkflowSettings {
	t.Helper()
	var doc models.WorkflowSettings
	app.postJSON(t, "/api/v1/settings/reset", nil, http.StatusOK, &doc)
	return doc
}

func (app *TestApp) GetHealth(t *testing.T) api.HealthResponse {
	t.Helper()
	var resp api.HealthResponse
	app.getJSON(t, "/healthz", http.StatusOK, &resp)
	return resp
}

// ─────────────────────────────────────────────────────────────────────────
// Direct submissions
// ─────────────────────────────────────────────────────────────────────────

// SubmitWithFingerprint submits through the pool so the Slack
// fingerprint carries; the HTTP surface does not accept one.
func (app *TestApp) SubmitWithFingerprint(t *testing.T, taskID, prompt, fingerprint string) queue.Run {
	t.Helper()
	run, err := app.Pool.Submit(queue.Submission{
		Input:            newWorkflowInput(taskID, prompt),
		SlackFingerprint: fingerprint,
	})
	require.NoError(t, err)
	return run
}

func newWorkflowInput(taskID, prompt string) workflow.Input {
	return workflow.Input{
		TaskID:    taskID,
		TenantID:  testTenantID,
		ProjectID: testProjectID,
		Prompt:    prompt,
		Auth: models.AuthContext{
			TenantID:  testTenantID,
			UserID:    "e2e-user",
			SessionID: uuid.NewString(),
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────
// Standard scripts
// ─────────────────────────────────────────────────────────────────────────

// scriptFullStackRun scripts the moderate-feature path: orchestrator,
// architect, ui_designer, frontend_dev, tester, reviewer.
func scriptFullStackRun(p *ScriptedProvider) {
	p.AddRouted("orchestrator", ScriptEntry{Text: clsFullStack})
	p.AddRouted("architect", ScriptEntry{Text: "architecture notes"})
	p.AddRouted("ui_designer", ScriptEntry{Text: "style package ready"})
	p.AddRouted("frontend_dev", ScriptEntry{Text: "frontend changes applied"})
	p.AddRouted("tester", ScriptEntry{Text: "all tests passing"})
	p.AddRouted("reviewer", ScriptEntry{Text: "review approved"})
}

// scriptBackendRun scripts the simple-feature path: orchestrator,
// backend_dev, tester, reviewer.
func scriptBackendRun(p *ScriptedProvider) {
	p.AddRouted("orchestrator", ScriptEntry{Text: clsBackend})
	p.AddRouted("backend_dev", ScriptEntry{Text: "backend changes applied"})
	p.AddRouted("tester", ScriptEntry{Text: "all tests passing"})
	p.AddRouted("reviewer", ScriptEntry{Text: "review approved"})
}
