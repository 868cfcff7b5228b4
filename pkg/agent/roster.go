package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/llm"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// roleAgent is the shared implementation behind the contract roster: one
// fixed role prompt driven through the provider. The depth of each role
// lives in its prompt, not in code.
type roleAgent struct {
	meta       Metadata
	provider   llm.Provider
	rolePrompt string
}

func (a *roleAgent) Metadata() Metadata { return a.meta }

func (a *roleAgent) Execute(ctx context.Context, req *Request) (*models.AgentOutput, error) {
	if req == nil {
		return nil, faults.New(faults.CodeValidation, "execution request is required")
	}
	started := time.Now()
	resp, err := a.provider.Complete(ctx, llm.Request{
		System:   a.rolePrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: taskMessage(req)}},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return failureOutput(a.meta.Type, err, time.Since(started)), nil
	}
	return &models.AgentOutput{
		Agent:   a.meta.Type,
		Success: true,
		Result: map[string]any{
			"content":     resp.Content,
			"model":       resp.Model,
			"stop_reason": resp.StopReason,
		},
		TokensUsed: resp.Usage,
		DurationMs: time.Since(started).Milliseconds(),
	}, nil
}

// failureOutput converts a provider fault into an agent-level failure the
// decision engine can analyze. Security faults keep their code so failure
// analysis aborts instead of retrying.
func failureOutput(agent models.AgentType, err error, elapsed time.Duration) *models.AgentOutput {
	code := models.ErrorCodeGeneric
	recoverable := false
	if f := faults.AsFault(err); f != nil {
		recoverable = f.Recoverable
		if f.Code == faults.CodeSecurity {
			code = models.ErrorCodeSecurityViolation
		}
	}
	return &models.AgentOutput{
		Agent:   agent,
		Success: false,
		Error: &models.AgentError{
			Code:        code,
			Message:     err.Error(),
			Recoverable: recoverable,
		},
		Routing:    models.RoutingHints{HasFailures: true},
		DurationMs: elapsed.Milliseconds(),
	}
}

// taskMessage renders the routed request into the single user message the
// role prompt operates on. Curated items are embedded as JSON so structured
// context survives verbatim.
func taskMessage(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s (%s, %s complexity, phase %s)\n\n",
		req.Task.ID,
		req.Task.Classification.Type,
		req.Task.Classification.Complexity,
		req.Task.Phase)
	b.WriteString(req.Task.Prompt)
	b.WriteString("\n")

	if len(req.Context.Curated.Items) > 0 {
		b.WriteString("\n## Context\n")
		for _, item := range req.Context.Curated.Items {
			content, err := json.Marshal(item.Content)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "\n[%s] %s\n", item.Type, content)
		}
	}
	if len(req.Context.PreviousOutputs) > 0 {
		b.WriteString("\n## Previous agents\n")
		for _, out := range req.Context.PreviousOutputs {
			status := "succeeded"
			if !out.Success {
				status = "failed"
				if out.Error != nil {
					status = fmt.Sprintf("failed (%s)", out.Error.Code)
				}
			}
			fmt.Fprintf(&b, "- %s %s\n", out.Agent, status)
		}
	}
	if len(req.Context.Constraints) > 0 {
		if encoded, err := json.Marshal(req.Context.Constraints); err == nil {
			fmt.Fprintf(&b, "\n## Constraints\n%s\n", encoded)
		}
	}
	if req.Context.Feedback != "" {
		fmt.Fprintf(&b, "\n## User feedback on the rejected result\n%s\n", req.Context.Feedback)
	}
	return b.String()
}

type rosterDef struct {
	meta   Metadata
	prompt string
}

// roster declares the ten contract agents. Capabilities and context
// requirements drive registry lookups and curation; prompts carry the
// role contracts.
func roster() []rosterDef {
	return []rosterDef{
		{
			meta: Metadata{
				Type: models.AgentOrchestrator,
				Name: "Orchestrator",
				Capabilities: []Capability{{
					Name:        "classify_task",
					InputTypes:  []string{"task_prompt"},
					OutputTypes: []string{"classification"},
				}},
				RequiredContext: []models.ContextRequirement{
					{Type: models.ContextCurrentTask, Required: true},
					{Type: models.ContextLessonsLearned},
				},
				OutputSchemaID: "classification.v1",
			},
			prompt: "You are the orchestrator of a multi-agent software delivery workflow. " +
				"Analyze the task and respond with a single JSON object: " +
				`{"type": "feature|bugfix|refactor|research|deployment|config", ` +
				`"complexity": "trivial|simple|moderate|complex|epic", ` +
				`"requires_design": bool, "requires_architecture": bool, ` +
				`"requires_compliance": bool, "confidence": number in [0,1]}. ` +
				"No prose outside the JSON.",
		},
		{
			meta: Metadata{
				Type: models.AgentPlanner,
				Name: "Planner",
				Capabilities: []Capability{{
					Name:        "plan_work",
					InputTypes:  []string{"task_prompt", "classification"},
					OutputTypes: []string{"work_breakdown"},
				}},
				RequiredContext: []models.ContextRequirement{
					{Type: models.ContextCurrentTask, Required: true},
					{Type: models.ContextProjectConfig},
					{Type: models.ContextLessonsLearned},
				},
				OutputSchemaID: "breakdown.v1",
			},
			prompt: "You are the planning agent. Decompose the task into epics, features and leaf tasks. " +
				"Respond with a single JSON object shaped " +
				`{"epics": [{"id", "title", "features": [{"id", "title", "tasks": ` +
				`[{"id", "title", "kind", "complexity", "depends_on": []}]}]}]}. ` +
				"Epic and feature ids are prefixed (epic-*, feat-*); leaf ids are lowercase kebab-case; " +
				"kind is one of design, frontend, backend, database, testing, integration, documentation, devops, review. " +
				"Dependencies may only name leaf tasks in this document. No prose outside the JSON.",
		},
		{
			meta: Metadata{
				Type: models.AgentArchitect,
				Name: "Architect",
				Capabilities: []Capability{{
					Name:        "design_architecture",
					InputTypes:  []string{"work_breakdown"},
					OutputTypes: []string{"architecture_decision"},
				}},
				RequiredContext: []models.ContextRequirement{
					{Type: models.ContextCurrentTask, Required: true},
					{Type: models.ContextProjectConfig, Required: true},
					{Type: models.ContextSourceCode},
				},
				OutputSchemaID: "architecture.v1",
			},
			prompt: "You are the system architect. Decide the structural approach for the task: components, " +
				"boundaries, data flow and the technology constraints the implementing agents must respect. " +
				"Record each decision with its context and consequences.",
		},
		{
			meta: Metadata{
				Type: models.AgentUIDesigner,
				Name: "UI Designer",
				Capabilities: []Capability{{
					Name:        "design_ui",
					InputTypes:  []string{"work_breakdown", "architecture_decision"},
					OutputTypes: []string{"style_package"},
				}},
				RequiredContext: []models.ContextRequirement{
					{Type: models.ContextCurrentTask, Required: true},
					{Type: models.ContextDesignSystem},
					{Type: models.ContextProjectConfig},
				},
				OutputSchemaID: "style_package.v1",
			},
			prompt: "You are the UI designer. Produce a coherent style package for the task: layout structure, " +
				"design tokens (color, type scale, spacing), and component treatments. Stay within the " +
				"project's existing design system where one is provided.",
		},
		{
			meta: Metadata{
				Type: models.AgentFrontendDev,
				Name: "Frontend Developer",
				Capabilities: []Capability{{
					Name:        "implement_frontend",
					InputTypes:  []string{"style_package", "work_breakdown"},
					OutputTypes: []string{"frontend_change"},
				}},
				RequiredContext: []models.ContextRequirement{
					{Type: models.ContextCurrentTask, Required: true},
					{Type: models.ContextSourceCode, Required: true},
					{Type: models.ContextDesignSystem},
				},
				OutputSchemaID: "frontend_change.v1",
			},
			prompt: "You are the frontend developer. Implement the client-side changes for the task, following " +
				"the approved style package and the project's conventions. Describe every file you would " +
				"create or modify and the change it carries.",
		},
		{
			meta: Metadata{
				Type: models.AgentBackendDev,
				Name: "Backend Developer",
				Capabilities: []Capability{{
					Name:        "implement_backend",
					InputTypes:  []string{"work_breakdown", "architecture_decision"},
					OutputTypes: []string{"backend_change"},
				}},
				RequiredContext: []models.ContextRequirement{
					{Type: models.ContextCurrentTask, Required: true},
					{Type: models.ContextSourceCode, Required: true},
					{Type: models.ContextProjectConfig},
				},
				OutputSchemaID: "backend_change.v1",
			},
			prompt: "You are the backend developer. Implement the server-side changes for the task within the " +
				"architecture constraints. Describe every file you would create or modify, the data model " +
				"impact, and any migration required.",
		},
		{
			meta: Metadata{
				Type: models.AgentTester,
				Name: "Tester",
				Capabilities: []Capability{{
					Name:        "verify_changes",
					InputTypes:  []string{"frontend_change", "backend_change"},
					OutputTypes: []string{"test_report"},
				}},
				RequiredContext: []models.ContextRequirement{
					{Type: models.ContextCurrentTask, Required: true},
					{Type: models.ContextTestResults},
					{Type: models.ContextSourceCode},
				},
				OutputSchemaID: "test_report.v1",
			},
			prompt: "You are the tester. Verify the implemented changes against the task's acceptance criteria. " +
				"Report each check as pass or fail with the failing evidence, and state clearly whether the " +
				"change set is releasable.",
		},
		{
			meta: Metadata{
				Type: models.AgentBugFixer,
				Name: "Bug Fixer",
				Capabilities: []Capability{{
					Name:        "fix_failures",
					InputTypes:  []string{"test_report"},
					OutputTypes: []string{"fix_report"},
				}},
				RequiredContext: []models.ContextRequirement{
					{Type: models.ContextCurrentTask, Required: true},
					{Type: models.ContextTestResults, Required: true},
					{Type: models.ContextSourceCode},
				},
				OutputSchemaID: "fix_report.v1",
			},
			prompt: "You are the bug fixer. Diagnose the reported test failures, find the root cause, and " +
				"describe the minimal fix. Do not restructure working code; repair the defect.",
		},
		{
			meta: Metadata{
				Type: models.AgentReviewer,
				Name: "Reviewer",
				Capabilities: []Capability{{
					Name:        "review_changes",
					InputTypes:  []string{"frontend_change", "backend_change", "test_report"},
					OutputTypes: []string{"review_report"},
				}},
				RequiredContext: []models.ContextRequirement{
					{Type: models.ContextCurrentTask, Required: true},
					{Type: models.ContextProjectConfig},
				},
				OutputSchemaID: "review.v1",
			},
			prompt: "You are the reviewer. Assess the complete change set for correctness, consistency with " +
				"the project's conventions, and completeness against the task. Approve, or list the blocking " +
				"findings that must be resolved.",
		},
		{
			meta: Metadata{
				Type: models.AgentCompliance,
				Name: "Compliance",
				Capabilities: []Capability{{
					Name:        "check_compliance",
					InputTypes:  []string{"task_prompt", "work_breakdown"},
					OutputTypes: []string{"compliance_report"},
				}},
				RequiredContext: []models.ContextRequirement{
					{Type: models.ContextCurrentTask, Required: true},
					{Type: models.ContextComplianceRules, Required: true},
				},
				OutputSchemaID: "compliance_report.v1",
			},
			prompt: "You are the compliance agent. Check the task and its planned changes against the tenant's " +
				"compliance rules: data handling, credentials, licensing, and regulatory constraints. Flag " +
				"every violation with the rule it breaks and whether it blocks the work.",
		},
	}
}

// RegisterRoster registers the full contract roster against the provider.
// The registry is left unsealed so callers can add agents before sealing.
func RegisterRoster(registry *Registry, provider llm.Provider) error {
	if registry == nil {
		return faults.New(faults.CodeValidation, "roster requires a registry")
	}
	if provider == nil {
		return faults.New(faults.CodeValidation, "roster requires an llm provider")
	}
	for _, def := range roster() {
		meta, prompt := def.meta, def.prompt
		err := registry.Register(meta, func() (Agent, error) {
			return &roleAgent{meta: meta, provider: provider, rolePrompt: prompt}, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// NewRosterRegistry builds a sealed registry carrying the default roster.
func NewRosterRegistry(provider llm.Provider) (*Registry, error) {
	registry := NewRegistry()
	if err := RegisterRoster(registry, provider); err != nil {
		return nil, err
	}
	registry.Seal()
	return registry, nil
}
