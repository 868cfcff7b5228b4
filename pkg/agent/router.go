package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/curator"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// ExecutionInput is what a caller supplies to route one agent execution.
type ExecutionInput struct {
	Agent       models.AgentType
	Task        models.Task
	Auth        models.AuthContext
	Previous    []models.AgentOutput
	Constraints map[string]any

	// Feedback carries user rejection feedback when a resumed workflow
	// re-routes to the agent whose output was rejected.
	Feedback string
}

// Router is the single gate between workflow logic and agents: it validates
// the caller, curates context, runs the agent and enforces tenant isolation
// on what comes back.
type Router struct {
	registry *Registry
	curator  *curator.Manager
	stream   *activity.Stream
}

// NewRouter creates a router. stream may be nil, in which case no activity
// events are emitted.
func NewRouter(registry *Registry, cur *curator.Manager, stream *activity.Stream) (*Router, error) {
	if registry == nil {
		return nil, faults.New(faults.CodeValidation, "router requires a registry")
	}
	if cur == nil {
		return nil, faults.New(faults.CodeValidation, "router requires a curator")
	}
	return &Router{registry: registry, curator: cur, stream: stream}, nil
}

// Route prepares an execution request without running the agent: validates
// the caller, resolves the agent metadata, curates context against the
// agent's declared requirements and stamps a fresh execution id.
// A warning event is emitted for every required context type that could not
// be satisfied; curation itself does not fail for them.
func (r *Router) Route(ctx context.Context, input ExecutionInput) (*Request, error) {
	if err := input.Auth.Validate(time.Now()); err != nil {
		return nil, err
	}
	meta, err := r.registry.Metadata(input.Agent)
	if err != nil {
		return nil, err
	}

	curated, err := r.curator.Curate(ctx, curator.Request{
		Requirements: meta.RequiredContext,
		Auth:         input.Auth,
		ProjectID:    input.Task.ProjectID,
		Query:        input.Task.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("context curation for agent %q failed: %w", input.Agent, err)
	}
	for _, missing := range curated.MissingRequired {
		r.emit(ctx, models.ActivityEvent{
			Type:       models.ActivitySystemInfo,
			Severity:   models.SeverityWarning,
			SessionID:  input.Auth.SessionID,
			WorkflowID: input.Task.ID,
			AgentID:    string(input.Agent),
			Title:      "required context unavailable",
			Message:    fmt.Sprintf("agent %s is missing required context type %q", input.Agent, missing),
			Details: map[string]any{
				"context_type": string(missing),
			},
		})
	}

	return &Request{
		ExecutionID: uuid.NewString(),
		Agent:       input.Agent,
		Task:        input.Task,
		Context: RequestContext{
			TenantID:        input.Auth.TenantID,
			Curated:         curated,
			PreviousOutputs: input.Previous,
			Constraints:     input.Constraints,
			Auth:            input.Auth,
			Feedback:        input.Feedback,
		},
	}, nil
}

// Execute routes the input and runs the agent to completion.
//
// Agent-level failures (provider errors, failed work) come back inside the
// output with Success=false; a non-nil error means the execution could not
// run at all or its output was rejected at the tenant boundary. Callers
// should use errors.Is on the returned error to distinguish cancellation.
func (r *Router) Execute(ctx context.Context, input ExecutionInput) (*models.AgentOutput, error) {
	req, err := r.Route(ctx, input)
	if err != nil {
		return nil, err
	}
	ag, err := r.registry.GetAgent(input.Agent)
	if err != nil {
		return nil, err
	}

	r.registry.markRunning(input.Agent)
	success := false
	defer func() { r.registry.recordResult(input.Agent, success) }()

	r.emit(ctx, models.ActivityEvent{
		Type:       models.ActivityAgentStart,
		SessionID:  input.Auth.SessionID,
		WorkflowID: input.Task.ID,
		AgentID:    string(input.Agent),
		Title:      fmt.Sprintf("agent %s started", input.Agent),
		Details:    map[string]any{"execution_id": req.ExecutionID},
	})

	started := time.Now()
	output, err := ag.Execute(ctx, req)
	elapsed := time.Since(started)
	if err != nil {
		r.emitAgentError(ctx, input, req.ExecutionID, elapsed, err.Error())
		return nil, fmt.Errorf("agent %q execution failed: %w", input.Agent, err)
	}
	if output == nil {
		err := faults.Newf(faults.CodeInvariant, "agent %q returned neither output nor error", input.Agent)
		r.emitAgentError(ctx, input, req.ExecutionID, elapsed, err.Error())
		return nil, err
	}

	if output.Agent == "" {
		output.Agent = input.Agent
	}
	output.DurationMs = elapsed.Milliseconds()

	if err := verifyArtifactPaths(output, input.Auth.TenantID); err != nil {
		r.emitAgentError(ctx, input, req.ExecutionID, elapsed, err.Error())
		return nil, err
	}

	success = output.Success
	r.emitAgentResult(ctx, input, req.ExecutionID, output)
	return output, nil
}

// ExecuteParallel runs several executions concurrently under one tenant.
// Auth is validated up front and every input must carry the same tenant id.
// Results are collected by input index; the first error cancels the rest.
func (r *Router) ExecuteParallel(ctx context.Context, inputs []ExecutionInput) ([]*models.AgentOutput, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if err := inputs[0].Auth.Validate(time.Now()); err != nil {
		return nil, err
	}
	tenant := inputs[0].Auth.TenantID
	for i := 1; i < len(inputs); i++ {
		if inputs[i].Auth.TenantID != tenant {
			return nil, faults.New(faults.CodeSecurity,
				"parallel execution must stay within one tenant").
				WithDetail("index", i)
		}
	}

	outputs := make([]*models.AgentOutput, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, input := range inputs {
		g.Go(func() error {
			output, err := r.Execute(gctx, input)
			if err != nil {
				return fmt.Errorf("parallel execution %d (%s): %w", i, input.Agent, err)
			}
			outputs[i] = output
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// verifyArtifactPaths enforces tenant isolation on produced artifacts: every
// path either lives under the request tenant or carries no tenant reference
// at all. Traversal segments are rejected outright.
func verifyArtifactPaths(output *models.AgentOutput, tenantID string) error {
	for _, artifact := range output.Artifacts {
		segments := strings.Split(artifact.Path, "/")
		for i, seg := range segments {
			switch {
			case seg == "..":
				return faults.Newf(faults.CodeSecurity,
					"artifact %q path contains a traversal segment", artifact.ID).
					WithDetail("path", artifact.Path)
			case seg == "tenants":
				if i+1 >= len(segments) || segments[i+1] != tenantID {
					return faults.Newf(faults.CodeSecurity,
						"artifact %q path references another tenant", artifact.ID).
						WithDetail("path", artifact.Path)
				}
			}
		}
	}
	return nil
}

func (r *Router) emit(ctx context.Context, event models.ActivityEvent) {
	if r.stream == nil {
		return
	}
	if _, err := r.stream.Emit(ctx, event); err != nil {
		slog.Warn("failed to emit router activity event",
			"type", event.Type,
			"agent", event.AgentID,
			"error", err)
	}
}

func (r *Router) emitAgentResult(ctx context.Context, input ExecutionInput, executionID string, output *models.AgentOutput) {
	event := models.ActivityEvent{
		Type:       models.ActivityAgentComplete,
		Severity:   models.SeveritySuccess,
		SessionID:  input.Auth.SessionID,
		WorkflowID: input.Task.ID,
		AgentID:    string(input.Agent),
		Title:      fmt.Sprintf("agent %s completed", input.Agent),
		DurationMs: &output.DurationMs,
		Details: map[string]any{
			"execution_id": executionID,
			"tokens_used":  output.TokensUsed.Total(),
		},
	}
	if !output.Success {
		event.Type = models.ActivityAgentError
		event.Severity = models.SeverityError
		event.Title = fmt.Sprintf("agent %s failed", input.Agent)
		if output.Error != nil {
			event.Message = output.Error.Message
			event.Details["error_code"] = output.Error.Code
			event.Details["recoverable"] = output.Error.Recoverable
		}
	}
	r.emit(ctx, event)
}

func (r *Router) emitAgentError(ctx context.Context, input ExecutionInput, executionID string, elapsed time.Duration, message string) {
	durationMs := elapsed.Milliseconds()
	r.emit(ctx, models.ActivityEvent{
		Type:       models.ActivityAgentError,
		Severity:   models.SeverityError,
		SessionID:  input.Auth.SessionID,
		WorkflowID: input.Task.ID,
		AgentID:    string(input.Agent),
		Title:      fmt.Sprintf("agent %s failed", input.Agent),
		Message:    message,
		DurationMs: &durationMs,
		Details:    map[string]any{"execution_id": executionID},
	})
}
