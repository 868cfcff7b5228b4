package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/queue"
	"github.com/codeready-toolchain/baton/pkg/workflow"
)

// knownRunStates whitelists the state query filter on workflow listing.
var knownRunStates = map[queue.RunState]bool{
	queue.RunQueued:           true,
	queue.RunRunning:          true,
	queue.RunAwaitingApproval: true,
	queue.RunCompleted:        true,
	queue.RunFailed:           true,
	queue.RunCancelled:        true,
	queue.RunTimedOut:         true,
	queue.RunEscalated:        true,
}

// startWorkflowHandler handles POST /api/v1/workflows.
// Accepts the submission and returns immediately; processing happens on
// the worker pool.
func (s *Server) startWorkflowHandler(c *gin.Context) {
	var req StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, faults.Newf(faults.CodeValidation, "invalid request body: %v", err))
		return
	}
	if req.Prompt == "" {
		respondError(c, faults.New(faults.CodeValidation, "prompt is required"))
		return
	}
	if req.TenantID == "" {
		respondError(c, faults.New(faults.CodeValidation, "tenant_id is required"))
		return
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = "task-" + uuid.NewString()
	}

	input := workflow.Input{
		TaskID:    taskID,
		TenantID:  req.TenantID,
		ProjectID: req.ProjectID,
		Prompt:    req.Prompt,
		Auth:      buildAuthContext(c, req.TenantID),
	}

	run, err := s.pool.Submit(queue.Submission{Input: input})
	if err != nil {
		respondError(c, err)
		return
	}

	s.recordAudit(c, audit.Entry{
		Category:    models.AuditWorkflow,
		Action:      "workflow.submit",
		Severity:    models.SeverityInfo,
		Outcome:     models.OutcomeOK,
		Actor:       models.AuditActor{Type: models.ActorUser, ID: input.Auth.UserID},
		Target:      &models.AuditTarget{Type: "workflow", ID: run.ID},
		SessionID:   input.Auth.SessionID,
		ProjectID:   input.ProjectID,
		Description: "workflow submitted via API",
	})

	c.JSON(http.StatusAccepted, &WorkflowAcceptedResponse{
		WorkflowID: run.ID,
		State:      run.State,
		Message:    "workflow accepted for processing",
	})
}

// listWorkflowsHandler handles GET /api/v1/workflows.
// Optional filters: tenant_id, state.
func (s *Server) listWorkflowsHandler(c *gin.Context) {
	state := queue.RunState(c.Query("state"))
	if state != "" && !knownRunStates[state] {
		respondError(c, faults.Newf(faults.CodeValidation, "unknown state %q", string(state)))
		return
	}

	runs := s.runs.List(c.Query("tenant_id"))
	if state != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if run.State == state {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}

	c.JSON(http.StatusOK, &WorkflowListResponse{Workflows: runs, Count: len(runs)})
}

// getWorkflowHandler handles GET /api/v1/workflows/:id.
func (s *Server) getWorkflowHandler(c *gin.Context) {
	run, err := s.runs.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// approveWorkflowHandler handles POST /api/v1/workflows/:id/approval.
// Answers a pending approval; the continuation runs on a worker.
func (s *Server) approveWorkflowHandler(c *gin.Context) {
	var req ApprovalDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, faults.Newf(faults.CodeValidation, "invalid request body: %v", err))
		return
	}

	workflowID := c.Param("id")
	run, err := s.pool.SubmitApproval(workflowID, models.ApprovalResponse{
		Approved:       req.Approved,
		SelectedOption: req.SelectedOption,
		Feedback:       req.Feedback,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	s.recordAudit(c, audit.Entry{
		Category:    models.AuditWorkflow,
		Action:      "workflow.approval",
		Severity:    models.SeverityInfo,
		Outcome:     models.OutcomeOK,
		Actor:       models.AuditActor{Type: models.ActorUser, ID: extractAuthor(c)},
		Target:      &models.AuditTarget{Type: "workflow", ID: workflowID},
		ProjectID:   run.ProjectID,
		Description: "approval decision submitted",
		Details: map[string]any{
			"approved":        req.Approved,
			"selected_option": req.SelectedOption,
		},
	})

	c.JSON(http.StatusOK, run)
}

// cancelWorkflowHandler handles POST /api/v1/workflows/:id/cancel.
func (s *Server) cancelWorkflowHandler(c *gin.Context) {
	workflowID := c.Param("id")
	if err := s.pool.CancelRun(workflowID); err != nil {
		respondError(c, err)
		return
	}

	s.recordAudit(c, audit.Entry{
		Category:    models.AuditWorkflow,
		Action:      "workflow.cancel",
		Severity:    models.SeverityWarning,
		Outcome:     models.OutcomeOK,
		Actor:       models.AuditActor{Type: models.ActorUser, ID: extractAuthor(c)},
		Target:      &models.AuditTarget{Type: "workflow", ID: workflowID},
		Description: "workflow cancellation requested",
	})

	c.JSON(http.StatusOK, &CancelResponse{
		WorkflowID: workflowID,
		Message:    "cancellation requested",
	})
}

// resumeWorkflowHandler handles POST /api/v1/workflows/:id/resume.
// Rebuilds the submission from the checkpoint's task snapshot, so runs
// from a previous process can be resumed after a restart.
func (s *Server) resumeWorkflowHandler(c *gin.Context) {
	var req ResumeWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, faults.Newf(faults.CodeValidation, "invalid request body: %v", err))
		return
	}

	store, err := s.checkpointStoreFor(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var cp *models.Checkpoint
	if req.CheckpointID != "" {
		cp, err = store.Get(req.CheckpointID)
	} else {
		cp, err = store.Latest()
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if cp.Workflow.Task == nil {
		respondError(c, faults.Newf(faults.CodeIntegrity,
			"checkpoint %s carries no task snapshot", cp.ID))
		return
	}

	task := cp.Workflow.Task
	input := workflow.Input{
		TaskID:    task.ID,
		TenantID:  task.TenantID,
		ProjectID: task.ProjectID,
		Prompt:    task.Prompt,
		Auth:      buildAuthContext(c, task.TenantID),
	}

	run, err := s.pool.SubmitResume(queue.Submission{Input: input}, cp)
	if err != nil {
		respondError(c, err)
		return
	}

	s.recordAudit(c, audit.Entry{
		Category:    models.AuditWorkflow,
		Action:      "workflow.resume",
		Severity:    models.SeverityInfo,
		Outcome:     models.OutcomeOK,
		Actor:       models.AuditActor{Type: models.ActorUser, ID: input.Auth.UserID},
		Target:      &models.AuditTarget{Type: "workflow", ID: run.ID},
		SessionID:   input.Auth.SessionID,
		ProjectID:   input.ProjectID,
		Description: "workflow resumed from checkpoint",
		Details:     map[string]any{"checkpoint_id": cp.ID},
	})

	c.JSON(http.StatusAccepted, &WorkflowAcceptedResponse{
		WorkflowID: run.ID,
		State:      run.State,
		Message:    "workflow resume accepted",
	})
}
