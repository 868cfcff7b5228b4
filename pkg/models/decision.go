package models

// DecisionAction is what the engine tells the workflow to do next
type DecisionAction string

const (
	// ActionRoute dispatches the decided agent
	ActionRoute DecisionAction = "route"
	// ActionPause suspends the workflow for user approval
	ActionPause DecisionAction = "pause"
	// ActionComplete ends the workflow successfully
	ActionComplete DecisionAction = "complete"
	// ActionEscalate suspends the workflow for human intervention
	ActionEscalate DecisionAction = "escalate"
	// ActionAbort ends the workflow as failed
	ActionAbort DecisionAction = "abort"
)

// IsValid checks if the decision action is valid
func (a DecisionAction) IsValid() bool {
	switch a {
	case ActionRoute, ActionPause, ActionComplete, ActionEscalate, ActionAbort:
		return true
	default:
		return false
	}
}

// DecisionContext is the workflow state the engine decides over
type DecisionContext struct {
	Classification  TaskClassification `json:"classification"`
	Phase           Phase              `json:"phase"`
	HasFailures     bool               `json:"has_failures"`
	FailureCount    int                `json:"failure_count"`
	NeedsApproval   bool               `json:"needs_approval"`
	SecurityConcern bool               `json:"security_concern"`
	CompletedAgents []AgentType        `json:"completed_agents"`
	TotalTokensUsed int64              `json:"total_tokens_used"`
}

// Completed reports whether the given agent already ran successfully
func (c *DecisionContext) Completed(agent AgentType) bool {
	for _, a := range c.CompletedAgents {
		if a == agent {
			return true
		}
	}
	return false
}

// RoutingDecision is the engine's answer: either an agent to dispatch or a
// workflow-level action. NextAgent is set exactly when Action is route.
type RoutingDecision struct {
	Action              DecisionAction       `json:"action"`
	NextAgent           AgentType            `json:"next_agent,omitempty"`
	Reason              string               `json:"reason"`
	Priority            int                  `json:"priority"`
	RuleID              string               `json:"rule_id,omitempty"`
	ContextRequirements []ContextRequirement `json:"context_requirements,omitempty"`
	AlternativeAgents   []AgentType          `json:"alternative_agents,omitempty"`
}

// FailureStrategy is the recovery plan after a failed agent execution
type FailureStrategy string

const (
	// StrategyRetry re-runs the same agent
	StrategyRetry FailureStrategy = "retry"
	// StrategyFix routes a repair agent before retrying
	StrategyFix FailureStrategy = "fix"
	// StrategyEscalate suspends for human intervention
	StrategyEscalate FailureStrategy = "escalate"
	// StrategyAbort ends the workflow as failed
	StrategyAbort FailureStrategy = "abort"
	// StrategySkip abandons the failing step and moves on
	StrategySkip FailureStrategy = "skip"
)

// IsValid checks if the failure strategy is valid
func (s FailureStrategy) IsValid() bool {
	switch s {
	case StrategyRetry, StrategyFix, StrategyEscalate, StrategyAbort, StrategySkip:
		return true
	default:
		return false
	}
}

// FailureAnalysis recommends how the workflow should react to a failure
type FailureAnalysis struct {
	Strategy          FailureStrategy `json:"strategy"`
	Reason            string          `json:"reason"`
	SuggestedAgent    AgentType       `json:"suggested_agent,omitempty"`
	RequiresUserInput bool            `json:"requires_user_input"`
}
