package decision

import "github.com/codeready-toolchain/baton/pkg/models"

// Rule is one deterministic routing policy. Rules are evaluated ascending
// by priority; the first matching rule decides and nothing below it runs.
type Rule struct {
	ID          string
	Priority    int
	Description string
	Condition   func(models.DecisionContext) bool
	Action      models.DecisionAction
	Agent       models.AgentType
}

// decision materializes the rule into the engine's answer.
func (r Rule) decision() models.RoutingDecision {
	return models.RoutingDecision{
		Action:    r.Action,
		NextAgent: r.Agent,
		Reason:    r.Description,
		Priority:  r.Priority,
		RuleID:    r.ID,
	}
}

// seedRules is the routing policy table. Priorities are spaced so operators
// can slot new rules between existing ones without renumbering.
func seedRules() []Rule {
	return []Rule{
		{
			ID:          "security-concern",
			Priority:    0,
			Description: "security concern flagged, routing to compliance",
			Condition: func(c models.DecisionContext) bool {
				return c.SecurityConcern
			},
			Action: models.ActionRoute,
			Agent:  models.AgentCompliance,
		},
		{
			ID:          "max-failures-abort",
			Priority:    5,
			Description: "failure count reached the abort threshold",
			Condition: func(c models.DecisionContext) bool {
				return c.FailureCount >= 5
			},
			Action: models.ActionAbort,
		},
		{
			ID:          "max-failures-escalate",
			Priority:    10,
			Description: "repeated failures need human intervention",
			Condition: func(c models.DecisionContext) bool {
				return c.FailureCount >= 3
			},
			Action: models.ActionEscalate,
		},
		{
			ID:          "test-failure",
			Priority:    15,
			Description: "failures present, routing to bug fixer",
			Condition: func(c models.DecisionContext) bool {
				return c.HasFailures && c.FailureCount < 3
			},
			Action: models.ActionRoute,
			Agent:  models.AgentBugFixer,
		},
		{
			ID:          "needs-approval",
			Priority:    25,
			Description: "user approval required before continuing",
			Condition: func(c models.DecisionContext) bool {
				return c.NeedsApproval
			},
			Action: models.ActionPause,
		},
		{
			ID:          "needs-architecture",
			Priority:    35,
			Description: "task requires architecture and the architect has not run",
			Condition: func(c models.DecisionContext) bool {
				return c.Classification.RequiresArchitecture && !c.Completed(models.AgentArchitect)
			},
			Action: models.ActionRoute,
			Agent:  models.AgentArchitect,
		},
		{
			ID:          "needs-design",
			Priority:    36,
			Description: "task requires design and the ui designer has not run",
			Condition: func(c models.DecisionContext) bool {
				return c.Classification.RequiresDesign && !c.Completed(models.AgentUIDesigner)
			},
			Action: models.ActionRoute,
			Agent:  models.AgentUIDesigner,
		},
		{
			ID:          "needs-compliance",
			Priority:    37,
			Description: "task requires compliance review and compliance has not run",
			Condition: func(c models.DecisionContext) bool {
				return c.Classification.RequiresCompliance && !c.Completed(models.AgentCompliance)
			},
			Action: models.ActionRoute,
			Agent:  models.AgentCompliance,
		},
		{
			ID:          "ready-for-frontend",
			Priority:    45,
			Description: "design approved, frontend implementation pending",
			Condition: func(c models.DecisionContext) bool {
				return c.Phase == models.PhaseBuilding &&
					c.Completed(models.AgentUIDesigner) &&
					!c.Completed(models.AgentFrontendDev)
			},
			Action: models.ActionRoute,
			Agent:  models.AgentFrontendDev,
		},
		{
			ID:          "ready-for-backend",
			Priority:    46,
			Description: "building phase, backend implementation pending",
			Condition: func(c models.DecisionContext) bool {
				return c.Phase == models.PhaseBuilding && !c.Completed(models.AgentBackendDev)
			},
			Action: models.ActionRoute,
			Agent:  models.AgentBackendDev,
		},
		{
			ID:          "ready-for-testing",
			Priority:    55,
			Description: "implementation done, testing pending",
			Condition: func(c models.DecisionContext) bool {
				return c.Phase == models.PhaseTesting &&
					(c.Completed(models.AgentFrontendDev) || c.Completed(models.AgentBackendDev)) &&
					!c.Completed(models.AgentTester)
			},
			Action: models.ActionRoute,
			Agent:  models.AgentTester,
		},
		{
			ID:          "ready-for-review",
			Priority:    65,
			Description: "tests done, review pending",
			Condition: func(c models.DecisionContext) bool {
				return c.Phase == models.PhaseReviewing &&
					c.Completed(models.AgentTester) &&
					!c.Completed(models.AgentReviewer)
			},
			Action: models.ActionRoute,
			Agent:  models.AgentReviewer,
		},
		{
			ID:          "all-complete",
			Priority:    90,
			Description: "review finished with no outstanding failures",
			Condition: func(c models.DecisionContext) bool {
				return c.Completed(models.AgentReviewer) && !c.HasFailures
			},
			Action: models.ActionComplete,
		},
	}
}
