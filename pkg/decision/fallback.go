package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/baton/pkg/llm"
	"github.com/codeready-toolchain/baton/pkg/models"
)

const (
	fallbackPriority   = 50
	reasoningMaxTokens = 1024
)

// safeFallback is the decision used when the reasoning step cannot produce
// a valid one: hand the work back to the planner at neutral priority.
func safeFallback(note string) models.RoutingDecision {
	return models.RoutingDecision{
		Action:    models.ActionRoute,
		NextAgent: models.AgentPlanner,
		Reason:    "fallback: " + note,
		Priority:  fallbackPriority,
	}
}

// reasoningPrompt enumerates the available agents and pins the response
// contract the schema validates against.
func reasoningPrompt() string {
	agents := models.AllAgentTypes()
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = string(a)
	}
	return "You are the routing policy of a multi-agent software delivery workflow. " +
		"Given the workflow state, choose the next step.\n\n" +
		"Available agents: " + strings.Join(names, ", ") + ".\n" +
		"Actions: route (set next_agent), pause, complete, escalate, abort.\n\n" +
		"Respond with a single JSON object shaped " +
		`{"action": "route|pause|complete|escalate|abort", "next_agent": "<agent id when routing>", ` +
		`"reason": "<why>", "priority": <integer 0-100>, "alternative_agents": ["<agent id>"]}. ` +
		"No prose outside the JSON."
}

// sanitizedPayload rebuilds the context field by field so tenant and auth
// identifiers can never ride into the prompt.
func sanitizedPayload(dctx models.DecisionContext) map[string]any {
	completed := make([]string, len(dctx.CompletedAgents))
	for i, a := range dctx.CompletedAgents {
		completed[i] = string(a)
	}
	return map[string]any{
		"classification":    dctx.Classification,
		"phase":             string(dctx.Phase),
		"has_failures":      dctx.HasFailures,
		"failure_count":     dctx.FailureCount,
		"needs_approval":    dctx.NeedsApproval,
		"security_concern":  dctx.SecurityConcern,
		"completed_agents":  completed,
		"total_tokens_used": dctx.TotalTokensUsed,
	}
}

// reason asks the provider for a routing decision. Every degradation path
// lands on the safe fallback; only cancellation propagates.
func (e *Engine) reason(ctx context.Context, dctx models.DecisionContext) (models.RoutingDecision, error) {
	if e.provider == nil {
		return safeFallback("no reasoning provider configured"), nil
	}
	payload, err := json.Marshal(sanitizedPayload(dctx))
	if err != nil {
		return safeFallback("failed to encode the decision context"), nil
	}

	resp, err := e.provider.SpawnSubagent(ctx, reasoningPrompt(), string(payload), llm.SubagentOptions{
		MaxTokens: reasoningMaxTokens,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.RoutingDecision{}, err
		}
		slog.Warn("decision reasoning call failed, using fallback", "error", err)
		return safeFallback("reasoning call failed"), nil
	}

	decision, err := e.parseDecision(resp.Content)
	if err != nil {
		slog.Warn("decision reasoning returned no usable decision, using fallback", "error", err)
		return safeFallback("reasoning response was not a valid decision"), nil
	}
	return decision, nil
}

func (e *Engine) parseDecision(content string) (models.RoutingDecision, error) {
	raw, err := llm.ExtractJSONObject(content)
	if err != nil {
		return models.RoutingDecision{}, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.RoutingDecision{}, fmt.Errorf("failed to decode decision: %w", err)
	}
	if err := e.schema.Validate(doc); err != nil {
		return models.RoutingDecision{}, fmt.Errorf("decision failed schema validation: %w", err)
	}
	var decision models.RoutingDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return models.RoutingDecision{}, fmt.Errorf("failed to decode decision: %w", err)
	}
	if decision.Action != models.ActionRoute {
		// The schema requires next_agent only when routing; drop any noise.
		decision.NextAgent = ""
	}
	return decision, nil
}
