// Package workflow drives one task through the agent state machine: it
// classifies the prompt, consults the decision engine every iteration,
// routes agent executions, and checkpoints after each agent completion
// and phase transition.
//
// An Engine is single-use: one workflow per engine, driven by exactly one
// goroutine at a time. Cancel, Status and Checkpoint are safe to call
// concurrently with a run.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/agent"
	"github.com/codeready-toolchain/baton/pkg/checkpoint"
	"github.com/codeready-toolchain/baton/pkg/decision"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/llm"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/redact"
)

// DefaultMaxIterations bounds the decision loop.
const DefaultMaxIterations = 50

const (
	reasonCancelled     = "cancelled by user"
	reasonMaxIterations = "max iterations exceeded"
)

// Config assembles the collaborators one workflow run needs.
type Config struct {
	Router  *agent.Router
	Decider *decision.Engine

	// Checkpoints and Stream are optional; nil disables checkpointing or
	// event emission respectively.
	Checkpoints *checkpoint.Store
	Stream      *activity.Stream

	// Settings zero value takes the documented defaults.
	Settings models.WorkflowSettings

	// MaxIterations defaults to DefaultMaxIterations.
	MaxIterations int
}

// Input identifies the task one workflow run executes.
type Input struct {
	TaskID    string
	TenantID  string
	ProjectID string
	Prompt    string
	Auth      models.AuthContext
}

// Validate checks the input against the task, prompt, identifier and auth
// rules before any work starts. Run calls it; queue submission calls it
// early so malformed work is rejected at enqueue time.
func (in *Input) Validate() error {
	if err := in.Auth.Validate(time.Now()); err != nil {
		return err
	}
	if err := models.ValidateTaskID(in.TaskID); err != nil {
		return err
	}
	if err := models.ValidatePrompt(in.Prompt); err != nil {
		return err
	}
	if _, err := uuid.Parse(in.TenantID); err != nil {
		return faults.Newf(faults.CodeValidation, "tenant id %q is not a UUID", in.TenantID)
	}
	if _, err := uuid.Parse(in.ProjectID); err != nil {
		return faults.Newf(faults.CodeValidation, "project id %q is not a UUID", in.ProjectID)
	}
	if in.TenantID != in.Auth.TenantID {
		return faults.New(faults.CodeSecurity, "task tenant does not match the auth context")
	}
	return nil
}

// Result is the workflow state when a run returns: terminal, or suspended
// awaiting user input.
type Result struct {
	Task              models.Task
	Outputs           []*models.AgentOutput
	Approval          *models.ApprovalRequest
	RequiresUserInput bool
	Reason            string
}

// Status is a point-in-time view of a running or suspended workflow.
type Status struct {
	Task              models.Task
	Approval          *models.ApprovalRequest
	RequiresUserInput bool
	TokensUsed        models.TokenUsage
	Executions        int
}

// Engine runs one workflow to a terminal or suspended state.
type Engine struct {
	router        *agent.Router
	decider       *decision.Engine
	checkpoints   *checkpoint.Store
	stream        *activity.Stream
	settings      models.WorkflowSettings
	maxIterations int

	// runMu serializes Run, Resume and SubmitApproval; mu guards st for
	// the concurrent readers (Status, Cancel, Checkpoint).
	runMu     sync.Mutex
	mu        sync.Mutex
	st        *workflowState
	cancelled atomic.Bool
}

// New creates an engine. The settings are normalized and validated; a
// zero-value Settings takes the documented defaults.
func New(cfg Config) (*Engine, error) {
	if cfg.Router == nil {
		return nil, faults.New(faults.CodeValidation, "workflow engine requires a router")
	}
	if cfg.Decider == nil {
		return nil, faults.New(faults.CodeValidation, "workflow engine requires a decision engine")
	}
	settings := cfg.Settings
	if settings == (models.WorkflowSettings{}) {
		settings = models.DefaultWorkflowSettings()
	}
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Engine{
		router:        cfg.Router,
		decider:       cfg.Decider,
		checkpoints:   cfg.Checkpoints,
		stream:        cfg.Stream,
		settings:      settings,
		maxIterations: maxIterations,
	}, nil
}

// Run executes the workflow: analyze the prompt, then loop on decisions
// until a terminal phase, a suspension, or the iteration bound. It returns
// an error only for invalid input or caller cancellation; everything else
// lands in the Result.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.started() {
		return nil, faults.New(faults.CodeConflict, "engine already ran a workflow; use one engine per workflow")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	st := newWorkflowState(in)
	e.mu.Lock()
	e.st = st
	e.mu.Unlock()

	e.emit(ctx, models.ActivityEvent{
		Type:    models.ActivityWorkflowStart,
		Title:   "workflow started",
		Details: map[string]any{"task_id": in.TaskID},
	})

	if err := e.analyze(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	next := derivePhase(e.st.task.Classification, &e.st.task)
	e.mu.Unlock()
	e.transition(ctx, next, "task analyzed")

	return e.loop(ctx)
}

// Cancel requests cancellation. A loop in flight finalizes at its next
// step; the current agent call is allowed to complete and its output is
// recorded but not acted upon. A suspended workflow finalizes immediately.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
	if !e.runMu.TryLock() {
		return
	}
	defer e.runMu.Unlock()

	e.mu.Lock()
	pending := e.st != nil && !e.st.task.Phase.Terminal()
	e.mu.Unlock()
	if pending {
		e.finalize(context.Background(), models.PhaseFailed, models.OutcomeAborted, reasonCancelled)
	}
}

// Status reports the current workflow state; ok is false before Run.
func (e *Engine) Status() (Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st == nil {
		return Status{}, false
	}
	status := Status{
		Task:              e.st.task,
		Approval:          e.st.approval,
		RequiresUserInput: e.st.flags.RequiresUserInput,
		TokensUsed:        e.st.tokens,
		Executions:        len(e.st.outputs),
	}
	status.Task.CompletedAgents = slices.Clone(e.st.task.CompletedAgents)
	return status, true
}

// History returns the phase transitions, most recent first.
func (e *Engine) History() []models.StateTransition {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st == nil {
		return nil
	}
	return slices.Clone(e.st.history)
}

// Checkpoint captures a checkpoint of the current state on demand.
func (e *Engine) Checkpoint(ctx context.Context, trigger models.CheckpointTrigger, reason string) (*models.Checkpoint, error) {
	if e.checkpoints == nil {
		return nil, faults.New(faults.CodeValidation, "no checkpoint store configured")
	}
	e.mu.Lock()
	if e.st == nil {
		e.mu.Unlock()
		return nil, faults.New(faults.CodeInvariant, "no workflow to checkpoint")
	}
	snap := e.st.snapshot()
	workflowID := e.st.task.ID
	e.mu.Unlock()
	return e.checkpoints.Create(ctx, workflowID, snap, trigger, reason)
}

func (e *Engine) started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st != nil
}

// loop is the decision cycle. Each iteration consults the decision engine
// (or a forced route left by failure handling and rejections) and executes
// the chosen agent. Only caller cancellation errors out; every other
// outcome finalizes or suspends the workflow.
func (e *Engine) loop(ctx context.Context) (*Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("workflow interrupted: %w", err)
		}
		if e.cancelled.Load() {
			return e.finalize(context.WithoutCancel(ctx), models.PhaseFailed, models.OutcomeAborted, reasonCancelled)
		}

		e.mu.Lock()
		terminal := e.st.task.Phase.Terminal()
		iterations := e.st.task.IterationCount
		e.mu.Unlock()
		if terminal {
			return e.result(), nil
		}
		if iterations >= e.maxIterations {
			return e.finalize(ctx, models.PhaseFailed, models.OutcomeFailed, reasonMaxIterations)
		}

		e.mu.Lock()
		e.st.task.IterationCount++
		forced := e.st.forced
		e.st.forced = nil
		dctx := e.st.decisionContext()
		auth := e.st.auth
		e.mu.Unlock()

		var next models.AgentType
		if forced != nil {
			next = *forced
		} else {
			dec, err := e.decider.Decide(ctx, auth, dctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("workflow interrupted: %w", err)
				}
				return e.finalize(ctx, models.PhaseFailed, models.OutcomeAborted, redact.Error(err))
			}
			switch dec.Action {
			case models.ActionComplete:
				return e.finalize(ctx, models.PhaseComplete, models.OutcomeSuccess, dec.Reason)
			case models.ActionAbort:
				return e.finalize(ctx, models.PhaseFailed, models.OutcomeAborted, dec.Reason)
			case models.ActionEscalate:
				return e.pause(ctx, e.escalationRequest(dec.Reason), true, dec.Reason)
			case models.ActionPause:
				return e.pause(ctx, e.approvalFromLastOutput(dec.Reason), false, dec.Reason)
			case models.ActionRoute:
				next = dec.NextAgent
			}
			if !next.IsValid() {
				return e.finalize(ctx, models.PhaseFailed, models.OutcomeAborted,
					fmt.Sprintf("routing decision %q carried no agent", dec.RuleID))
			}
		}

		if next == models.AgentUIDesigner && e.settings.EnableStyleCompetition {
			res, done, err := e.runCompetition(ctx)
			if err != nil {
				return nil, err
			}
			if done {
				return res, nil
			}
			continue
		}

		out, err := e.executeAgent(ctx, next)
		if err != nil {
			return nil, err
		}
		if e.cancelled.Load() {
			// The in-flight output above is recorded but not acted upon.
			return e.finalize(context.WithoutCancel(ctx), models.PhaseFailed, models.OutcomeAborted, reasonCancelled)
		}
		if res, done := e.afterExecution(ctx, out); done {
			return res, nil
		}
	}
}

// analyze classifies the prompt through the orchestrator agent. Any
// failure falls back to the conservative default classification; analysis
// never fails the workflow.
func (e *Engine) analyze(ctx context.Context) error {
	out, err := e.executeAgent(ctx, models.AgentOrchestrator)
	if err != nil {
		return err
	}

	cls, parseErr := parseClassification(out)
	e.mu.Lock()
	if parseErr != nil {
		e.st.task.Classification = models.DefaultClassification()
	} else {
		e.st.task.Classification = cls
	}
	if out.Success && !e.st.task.HasCompleted(models.AgentOrchestrator) {
		e.st.task.CompletedAgents = append(e.st.task.CompletedAgents, models.AgentOrchestrator)
	}
	e.mu.Unlock()

	if parseErr != nil {
		e.emit(ctx, models.ActivityEvent{
			Type:     models.ActivitySystemInfo,
			Severity: models.SeverityWarning,
			Title:    "task analysis fell back to conservative defaults",
			Details:  map[string]any{"error": redact.Error(parseErr)},
		})
	}
	return nil
}

// executeAgent routes one agent execution under the provider deadline.
// Infrastructure failures come back as synthesized failure outputs; only
// caller cancellation returns an error. The output is recorded and a
// checkpoint taken before returning.
func (e *Engine) executeAgent(ctx context.Context, agt models.AgentType) (*models.AgentOutput, error) {
	e.mu.Lock()
	input := agent.ExecutionInput{
		Agent:    agt,
		Task:     e.st.task,
		Auth:     e.st.auth,
		Previous: e.st.previousOutputs(),
		Feedback: e.st.feedback,
	}
	input.Task.CompletedAgents = slices.Clone(e.st.task.CompletedAgents)
	e.st.feedback = ""
	e.st.markRunning(agt, input.Feedback)
	e.mu.Unlock()

	execCtx, cancel := context.WithTimeout(ctx, e.settings.ProviderTimeout())
	out, err := e.router.Execute(execCtx, input)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("agent %q execution interrupted: %w", agt, err)
		}
		out = failureOutput(agt, err)
	}

	e.mu.Lock()
	e.st.recordOutput(out)
	e.mu.Unlock()
	e.checkpoint(ctx, models.TriggerAgentComplete, fmt.Sprintf("agent %s finished", agt))
	return out, nil
}

// afterExecution applies the loop bookkeeping for one routed execution.
// done reports that the loop must stop and return res.
func (e *Engine) afterExecution(ctx context.Context, out *models.AgentOutput) (res *Result, done bool) {
	if out.Success {
		if out.Agent == models.AgentPlanner {
			e.recordPlan(ctx, out)
		}
		e.mu.Lock()
		e.st.applySuccess(out)
		next := derivePhase(e.st.task.Classification, &e.st.task)
		e.mu.Unlock()
		e.transition(ctx, next, fmt.Sprintf("agent %s completed", out.Agent))
		return nil, false
	}

	e.mu.Lock()
	e.st.task.RetryCount++
	e.st.flags.HasFailures = true
	analysis := decision.AnalyzeFailure(*out, e.st.decisionContext())
	e.mu.Unlock()

	e.emit(ctx, models.ActivityEvent{
		Type:     models.ActivitySystemInfo,
		Severity: models.SeverityWarning,
		AgentID:  string(out.Agent),
		Title:    "failure analysis",
		Details: map[string]any{
			"strategy":        string(analysis.Strategy),
			"reason":          analysis.Reason,
			"suggested_agent": string(analysis.SuggestedAgent),
		},
	})

	switch analysis.Strategy {
	case models.StrategyRetry:
		agt := out.Agent
		e.mu.Lock()
		e.st.forced = &agt
		e.mu.Unlock()
	case models.StrategyFix:
		agt := analysis.SuggestedAgent
		if !agt.IsValid() {
			agt = models.AgentBugFixer
		}
		e.mu.Lock()
		e.st.forced = &agt
		e.mu.Unlock()
	case models.StrategyEscalate:
		res, _ := e.pause(ctx, e.escalationRequest(analysis.Reason), analysis.RequiresUserInput, analysis.Reason)
		return res, true
	case models.StrategyAbort:
		res, _ := e.finalize(ctx, models.PhaseFailed, models.OutcomeAborted, analysis.Reason)
		return res, true
	case models.StrategySkip:
		e.mu.Lock()
		e.st.task.RetryCount = 0
		e.st.flags.HasFailures = false
		e.mu.Unlock()
	}
	return nil, false
}

// transition moves the phase, emits the change and checkpoints it.
func (e *Engine) transition(ctx context.Context, to models.Phase, reason string) {
	e.mu.Lock()
	from, changed := e.st.transition(to, reason)
	e.mu.Unlock()
	if !changed {
		return
	}
	e.emit(ctx, models.ActivityEvent{
		Type:  models.ActivityPhaseChange,
		Title: fmt.Sprintf("phase %s -> %s", from, to),
		Details: map[string]any{
			"from":   string(from),
			"to":     string(to),
			"reason": reason,
		},
	})
	e.checkpoint(ctx, models.TriggerStateTransition, reason)
}

// finalize moves the workflow to a terminal phase and emits the closing
// event. It returns the final Result with a nil error so callers can
// return it directly.
func (e *Engine) finalize(ctx context.Context, phase models.Phase, outcome models.Outcome, reason string) (*Result, error) {
	e.mu.Lock()
	e.st.task.Outcome = &outcome
	e.st.lastReason = reason
	e.mu.Unlock()
	e.transition(ctx, phase, reason)

	eventType := models.ActivityWorkflowComplete
	severity := models.SeveritySuccess
	if outcome != models.OutcomeSuccess {
		eventType = models.ActivityWorkflowError
		severity = models.SeverityError
	}
	e.mu.Lock()
	details := map[string]any{
		"outcome":      string(outcome),
		"reason":       reason,
		"iterations":   e.st.task.IterationCount,
		"total_tokens": e.st.tokens.Total(),
	}
	e.mu.Unlock()
	e.emit(ctx, models.ActivityEvent{
		Type:     eventType,
		Severity: severity,
		Title:    "workflow " + string(phase),
		Details:  details,
	})
	return e.result(), nil
}

// pause suspends the workflow with a pending approval request. userInput
// marks escalations that need human intervention beyond a yes/no.
func (e *Engine) pause(ctx context.Context, req *models.ApprovalRequest, userInput bool, reason string) (*Result, error) {
	e.mu.Lock()
	e.st.resumePhase = e.st.task.Phase
	e.st.approval = req
	e.st.flags.RequiresUserInput = userInput
	e.st.lastReason = reason
	e.mu.Unlock()
	e.transition(ctx, models.PhasePaused, reason)

	severity := models.SeverityInfo
	if userInput {
		severity = models.SeverityWarning
	}
	e.emit(ctx, models.ActivityEvent{
		Type:     models.ActivityWorkflowPaused,
		Severity: severity,
		AgentID:  string(req.Agent),
		Title:    "workflow paused",
		Details: map[string]any{
			"reason":              reason,
			"requires_user_input": userInput,
			"approval_id":         req.ID,
		},
	})
	return e.result(), nil
}

func (e *Engine) result() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	res := &Result{
		Task:              e.st.task,
		Approval:          e.st.approval,
		RequiresUserInput: e.st.flags.RequiresUserInput,
		Reason:            e.st.lastReason,
	}
	res.Task.CompletedAgents = slices.Clone(e.st.task.CompletedAgents)
	res.Outputs = slices.Clone(e.st.outputs)
	return res
}

// escalationRequest builds the approval request surfaced for escalations,
// attributed to the last executed agent.
func (e *Engine) escalationRequest(reason string) *models.ApprovalRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	req := &models.ApprovalRequest{
		ID:          uuid.NewString(),
		WorkflowID:  e.st.task.ID,
		Title:       "workflow escalated",
		Description: reason,
		CreatedAt:   time.Now().UTC(),
	}
	if last := e.st.lastOutput(); last != nil {
		req.Agent = last.Agent
	}
	return req
}

// approvalFromLastOutput builds the approval request for a pause decision
// from the last agent's pending approval payload.
func (e *Engine) approvalFromLastOutput(reason string) *models.ApprovalRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	req := &models.ApprovalRequest{
		ID:          uuid.NewString(),
		WorkflowID:  e.st.task.ID,
		Title:       "approval required",
		Description: reason,
		CreatedAt:   time.Now().UTC(),
	}
	last := e.st.lastOutput()
	if last == nil {
		return req
	}
	req.Agent = last.Agent
	req.Title = fmt.Sprintf("agent %s requests approval", last.Agent)
	req.Payload = last.Result
	if raw, ok := last.Result["options"].([]any); ok {
		for _, option := range raw {
			if s, ok := option.(string); ok && s != "" {
				req.Options = append(req.Options, s)
			}
		}
	}
	return req
}

// checkpoint writes a checkpoint and emits the created event. Checkpoint
// failures are logged, never fatal: durability degrades, the run goes on.
func (e *Engine) checkpoint(ctx context.Context, trigger models.CheckpointTrigger, reason string) {
	if e.checkpoints == nil {
		return
	}
	cp, err := e.Checkpoint(ctx, trigger, reason)
	if err != nil {
		slog.Warn("Checkpoint write failed", "trigger", trigger, "error", err)
		return
	}
	e.emit(ctx, models.ActivityEvent{
		Type:  models.ActivityCheckpointCreated,
		Title: "checkpoint created",
		Details: map[string]any{
			"checkpoint_id": cp.ID,
			"trigger":       string(trigger),
		},
	})
}

func (e *Engine) emit(ctx context.Context, event models.ActivityEvent) {
	if e.stream == nil {
		return
	}
	e.mu.Lock()
	if e.st != nil {
		event.SessionID = e.st.auth.SessionID
		event.WorkflowID = e.st.task.ID
	}
	e.mu.Unlock()
	if _, err := e.stream.Emit(ctx, event); err != nil {
		slog.Warn("Activity emit failed", "type", event.Type, "error", err)
	}
}

// parseClassification decodes the classification JSON from an analysis
// output, tolerating fenced blocks and surrounding prose.
func parseClassification(out *models.AgentOutput) (models.TaskClassification, error) {
	if !out.Success {
		message := "analysis agent failed"
		if out.Error != nil && out.Error.Message != "" {
			message = out.Error.Message
		}
		return models.TaskClassification{}, faults.Newf(faults.CodeUpstream, "task analysis failed: %s", message)
	}
	content, ok := out.Result["content"].(string)
	if !ok || content == "" {
		return models.TaskClassification{}, faults.New(faults.CodeValidation, "analysis result carries no content")
	}
	raw, err := llm.ExtractJSONObject(content)
	if err != nil {
		return models.TaskClassification{}, err
	}
	var cls models.TaskClassification
	if err := json.Unmarshal(raw, &cls); err != nil {
		return models.TaskClassification{}, fmt.Errorf("failed to decode classification: %w", err)
	}
	cls.Normalize()
	return cls, nil
}

// failureOutput converts an infrastructure error into the failure shape
// the analysis ladder understands.
func failureOutput(agt models.AgentType, err error) *models.AgentOutput {
	code := models.ErrorCodeGeneric
	recoverable := false
	if f := faults.AsFault(err); f != nil {
		recoverable = f.Recoverable
		if f.Code == faults.CodeSecurity {
			code = models.ErrorCodeSecurityViolation
		}
	}
	return &models.AgentOutput{
		Agent:   agt,
		Success: false,
		Routing: models.RoutingHints{HasFailures: true},
		Error: &models.AgentError{
			Code:        code,
			Message:     redact.Error(err),
			Recoverable: recoverable,
		},
	}
}
