package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/redact"
)

// SubmitApproval answers the pending approval request and drives the loop
// onward. Approvals clear the request and resume from the pre-pause
// phase; rejections route back to the originating agent with the feedback
// attached to its next execution. Design rejections beyond the configured
// bound escalate instead of looping forever.
func (e *Engine) SubmitApproval(ctx context.Context, resp models.ApprovalResponse) (*Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if e.st == nil {
		e.mu.Unlock()
		return nil, faults.New(faults.CodeInvariant, "no workflow to approve")
	}
	req := e.st.approval
	suspended := e.st.task.Phase.Suspended()
	e.mu.Unlock()
	if req == nil || !suspended {
		return nil, faults.New(faults.CodeNotFound, "no approval is pending")
	}

	if e.cancelled.Load() {
		return e.finalize(context.WithoutCancel(ctx), models.PhaseFailed, models.OutcomeAborted, reasonCancelled)
	}

	e.emit(ctx, models.ActivityEvent{
		Type:    models.ActivityUserApproval,
		AgentID: string(req.Agent),
		Title:   "approval response received",
		Details: map[string]any{
			"approved":        resp.Approved,
			"selected_option": resp.SelectedOption,
			"approval_id":     req.ID,
		},
	})

	if resp.Approved {
		return e.approve(ctx, req, resp)
	}
	return e.reject(ctx, req, resp)
}

func (e *Engine) approve(ctx context.Context, req *models.ApprovalRequest, resp models.ApprovalResponse) (*Result, error) {
	e.mu.Lock()
	competed := len(e.st.competition) > 0
	if competed {
		winner, err := pickWinner(req.Options, e.st.competition, resp.SelectedOption)
		if err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.st.competition = nil
		// Tokens and execution notes were recorded when the round ran;
		// only the winning output joins the transcript.
		e.st.outputs = append(e.st.outputs, winner)
		e.st.applySuccess(winner)
	}
	if e.st.flags.RequiresUserInput {
		// The human resolved whatever forced the escalation.
		e.st.task.RetryCount = 0
		e.st.flags.HasFailures = false
	}
	e.st.approval = nil
	e.st.flags.NeedsApproval = false
	e.st.flags.RequiresUserInput = false
	delete(e.st.rejections, req.Agent)
	if resp.Feedback != "" {
		e.st.feedback = resp.Feedback
	}
	to := e.st.resumePhase
	if competed || !to.IsValid() || to.Suspended() {
		to = derivePhase(e.st.task.Classification, &e.st.task)
	}
	e.mu.Unlock()

	e.transition(ctx, to, "approval granted")
	e.emit(ctx, models.ActivityEvent{
		Type:  models.ActivityWorkflowResumed,
		Title: "workflow resumed",
		Details: map[string]any{
			"approval_id": req.ID,
		},
	})
	return e.loop(ctx)
}

func (e *Engine) reject(ctx context.Context, req *models.ApprovalRequest, resp models.ApprovalResponse) (*Result, error) {
	e.mu.Lock()
	escalated := e.st.flags.RequiresUserInput
	e.mu.Unlock()
	if escalated {
		reason := "escalation closed without resolution"
		if resp.Feedback != "" {
			reason = redact.String(resp.Feedback)
		}
		return e.finalize(ctx, models.PhaseFailed, models.OutcomeEscalated, reason)
	}

	e.mu.Lock()
	e.st.competition = nil
	e.st.rejections[req.Agent]++
	count := e.st.rejections[req.Agent]
	e.mu.Unlock()

	if req.Agent == models.AgentUIDesigner && count > e.settings.MaxStyleRejections {
		reason := fmt.Sprintf("design rejected %d times, needs human intervention", count)
		esc := e.escalationRequest(reason)
		esc.Agent = req.Agent
		e.mu.Lock()
		e.st.approval = esc
		e.st.flags.RequiresUserInput = true
		e.st.lastReason = reason
		e.mu.Unlock()
		e.emit(ctx, models.ActivityEvent{
			Type:     models.ActivityWorkflowPaused,
			Severity: models.SeverityWarning,
			AgentID:  string(req.Agent),
			Title:    "workflow paused",
			Details: map[string]any{
				"reason":              reason,
				"requires_user_input": true,
				"approval_id":         esc.ID,
			},
		})
		e.checkpoint(ctx, models.TriggerManual, reason)
		return e.result(), nil
	}

	agt := req.Agent
	e.mu.Lock()
	e.st.approval = nil
	e.st.flags.NeedsApproval = false
	e.st.feedback = resp.Feedback
	if agt.IsValid() {
		e.st.forced = &agt
	}
	to := e.st.resumePhase
	if !to.IsValid() || to.Suspended() {
		to = derivePhase(e.st.task.Classification, &e.st.task)
	}
	e.mu.Unlock()

	e.transition(ctx, to, fmt.Sprintf("approval rejected, rerouting to %s", agt))
	e.emit(ctx, models.ActivityEvent{
		Type:  models.ActivityWorkflowResumed,
		Title: "workflow resumed",
		Details: map[string]any{
			"approval_id": req.ID,
			"rejected":    true,
		},
	})
	return e.loop(ctx)
}

// Resume rebuilds run state from a checkpoint and continues the loop. A
// checkpoint whose recovery analysis found blockers is rejected. When the
// resume-from agent was mid-flight at capture time, its prior attempt is
// discarded and the agent re-executes with its original input.
func (e *Engine) Resume(ctx context.Context, cp *models.Checkpoint, auth models.AuthContext) (*Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.started() {
		return nil, faults.New(faults.CodeConflict, "engine already ran a workflow; use one engine per workflow")
	}
	if cp == nil {
		return nil, faults.New(faults.CodeValidation, "checkpoint is required")
	}
	if err := auth.Validate(time.Now()); err != nil {
		return nil, err
	}
	if !cp.Recovery.CanResume {
		fault := faults.New(faults.CodeValidation, "checkpoint cannot be resumed")
		if len(cp.Recovery.Blockers) > 0 {
			fault = fault.WithDetail("blockers", cp.Recovery.Blockers)
		}
		return nil, fault
	}
	if cp.Workflow.Task == nil {
		return nil, faults.New(faults.CodeValidation, "checkpoint carries no task snapshot")
	}
	if cp.Workflow.Task.TenantID != auth.TenantID {
		return nil, faults.New(faults.CodeSecurity, "checkpoint belongs to another tenant")
	}

	st := restoreState(cp, auth)
	if phase := cp.Recovery.ResumeFromState; phase.IsValid() && !phase.Terminal() {
		st.task.Phase = phase
	}
	if agt := models.AgentType(cp.Recovery.ResumeFromAgent); agt.IsValid() {
		if prior, ok := st.agents[cp.Recovery.ResumeFromAgent]; ok && prior.Status == models.AgentRunRunning {
			prior.Status = models.AgentRunPending
			st.agents[cp.Recovery.ResumeFromAgent] = prior
			st.forced = &agt
			if feedback, ok := prior.Input["feedback"].(string); ok {
				st.feedback = feedback
			}
		}
	}
	if st.task.Phase.Suspended() {
		st.resumePhase = cp.Workflow.PreviousState
		if !st.resumePhase.IsValid() || st.resumePhase.Suspended() {
			st.resumePhase = derivePhase(st.task.Classification, &st.task)
		}
		if st.approval == nil {
			// A paused snapshot without its approval request cannot say
			// what it was waiting for; hand the question to the user.
			st.approval = &models.ApprovalRequest{
				ID:          uuid.NewString(),
				WorkflowID:  st.task.ID,
				Title:       "workflow escalated",
				Description: "paused checkpoint carried no approval request",
				CreatedAt:   time.Now().UTC(),
			}
			st.flags.RequiresUserInput = true
		}
	}

	e.mu.Lock()
	e.st = st
	e.mu.Unlock()

	e.emit(ctx, models.ActivityEvent{
		Type:  models.ActivityWorkflowResumed,
		Title: "workflow resumed from checkpoint",
		Details: map[string]any{
			"checkpoint_id": cp.ID,
			"resume_phase":  string(st.task.Phase),
		},
	})

	if st.task.Phase.Suspended() {
		return e.result(), nil
	}
	return e.loop(ctx)
}
