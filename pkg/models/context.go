package models

// ContextType names a category of curated context
type ContextType string

const (
	// ContextCurrentTask is the task description and classification
	ContextCurrentTask ContextType = "current_task"
	// ContextProjectConfig is project-level configuration and conventions
	ContextProjectConfig ContextType = "project_config"
	// ContextSourceCode is relevant source file excerpts
	ContextSourceCode ContextType = "source_code"
	// ContextLessonsLearned is accumulated lessons from prior runs
	ContextLessonsLearned ContextType = "lessons_learned"
	// ContextAgentOutputs is prior agent outputs from this workflow
	ContextAgentOutputs ContextType = "agent_outputs"
	// ContextDesignSystem is design tokens and style packages
	ContextDesignSystem ContextType = "design_system"
	// ContextComplianceRules is tenant compliance constraints
	ContextComplianceRules ContextType = "compliance_rules"
	// ContextTestResults is recent test run output
	ContextTestResults ContextType = "test_results"
)

// IsValid checks if the context type is valid
func (t ContextType) IsValid() bool {
	switch t {
	case ContextCurrentTask, ContextProjectConfig, ContextSourceCode,
		ContextLessonsLearned, ContextAgentOutputs, ContextDesignSystem,
		ContextComplianceRules, ContextTestResults:
		return true
	default:
		return false
	}
}

// ContextRequirement is one context need an agent declares in its metadata
type ContextRequirement struct {
	Type     ContextType    `json:"type"`
	Required bool           `json:"required"`
	MaxItems int            `json:"max_items,omitempty"`
	Filter   map[string]any `json:"filter,omitempty"`
}

// ContextItem is one unit of curated context returned by a source
type ContextItem struct {
	ID       string         `json:"id"`
	Type     ContextType    `json:"type"`
	Content  any            `json:"content"`
	Score    float64        `json:"score,omitempty"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CuratedContext is the assembled context window for one agent execution.
// Items appear in curation priority order; MissingRequired lists required
// types that yielded nothing.
type CuratedContext struct {
	Items           []ContextItem `json:"items"`
	TokensUsed      int           `json:"tokens_used"`
	TokenBudget     int           `json:"token_budget"`
	Truncated       bool          `json:"truncated"`
	MissingRequired []ContextType `json:"missing_required,omitempty"`
}
