package models

// AgentType identifies a specialized agent role
type AgentType string

const (
	// AgentOrchestrator coordinates multi-agent plans
	AgentOrchestrator AgentType = "orchestrator"
	// AgentPlanner produces work breakdowns
	AgentPlanner AgentType = "planner"
	// AgentArchitect produces system architecture decisions
	AgentArchitect AgentType = "architect"
	// AgentUIDesigner produces UI designs and style packages
	AgentUIDesigner AgentType = "ui_designer"
	// AgentFrontendDev implements client-side code
	AgentFrontendDev AgentType = "frontend_dev"
	// AgentBackendDev implements server-side code
	AgentBackendDev AgentType = "backend_dev"
	// AgentTester runs and writes tests
	AgentTester AgentType = "tester"
	// AgentBugFixer repairs reported test failures
	AgentBugFixer AgentType = "bug_fixer"
	// AgentReviewer performs final review
	AgentReviewer AgentType = "reviewer"
	// AgentCompliance checks security and compliance constraints
	AgentCompliance AgentType = "compliance"
)

// IsValid checks if the agent type is valid
func (a AgentType) IsValid() bool {
	switch a {
	case AgentOrchestrator, AgentPlanner, AgentArchitect, AgentUIDesigner,
		AgentFrontendDev, AgentBackendDev, AgentTester, AgentBugFixer,
		AgentReviewer, AgentCompliance:
		return true
	default:
		return false
	}
}

// AllAgentTypes returns every known agent type in stable order
func AllAgentTypes() []AgentType {
	return []AgentType{
		AgentOrchestrator,
		AgentPlanner,
		AgentArchitect,
		AgentUIDesigner,
		AgentFrontendDev,
		AgentBackendDev,
		AgentTester,
		AgentBugFixer,
		AgentReviewer,
		AgentCompliance,
	}
}

// Agent error codes used by failure analysis.
const (
	// ErrorCodeSecurityViolation aborts the workflow immediately
	ErrorCodeSecurityViolation = "SECURITY_VIOLATION"
	// ErrorCodeTestFailure routes to the bug fixer
	ErrorCodeTestFailure = "TEST_FAILURE"
	// ErrorCodeGeneric is the default for unclassified agent failures
	ErrorCodeGeneric = "GENERIC_ERROR"
)

// AgentError describes a failure reported by an agent execution
type AgentError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// Artifact is a single deliverable produced by an agent
type Artifact struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Path     string         `json:"path"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RoutingHints let an agent influence the next decision
type RoutingHints struct {
	SuggestedNext []AgentType `json:"suggested_next,omitempty"`
	Skip          []AgentType `json:"skip,omitempty"`
	NeedsApproval bool        `json:"needs_approval"`
	HasFailures   bool        `json:"has_failures"`
	IsComplete    bool        `json:"is_complete"`
}

// TokenUsage accumulates provider token counts for one execution
type TokenUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens,omitempty"`
}

// Total returns all tokens billed for the execution
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens +
		u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// Add accumulates another usage record into this one
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// AgentOutput is the immutable record of one agent execution.
// Outputs are appended to the workflow; they are never mutated.
type AgentOutput struct {
	Agent      AgentType      `json:"agent"`
	Success    bool           `json:"success"`
	Result     map[string]any `json:"result,omitempty"`
	Artifacts  []Artifact     `json:"artifacts,omitempty"`
	Routing    RoutingHints   `json:"routing"`
	Error      *AgentError    `json:"error,omitempty"`
	TokensUsed TokenUsage     `json:"tokens_used"`
	DurationMs int64          `json:"duration_ms"`
}
