// Package models contains the core domain types shared across the engine:
// tasks, agents, work breakdowns, activity and audit events, checkpoints.
package models

import (
	"fmt"
	"regexp"
	"time"

	"github.com/codeready-toolchain/baton/pkg/faults"
)

// TaskType classifies what kind of work a task represents
type TaskType string

const (
	// TaskTypeFeature is new functionality
	TaskTypeFeature TaskType = "feature"
	// TaskTypeBugfix repairs defective behavior
	TaskTypeBugfix TaskType = "bugfix"
	// TaskTypeRefactor restructures code without behavior change
	TaskTypeRefactor TaskType = "refactor"
	// TaskTypeResearch is investigation with no code deliverable
	TaskTypeResearch TaskType = "research"
	// TaskTypeDeployment is release or rollout work
	TaskTypeDeployment TaskType = "deployment"
	// TaskTypeConfig is configuration-only change
	TaskTypeConfig TaskType = "config"
)

// IsValid checks if the task type is valid
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeFeature, TaskTypeBugfix, TaskTypeRefactor,
		TaskTypeResearch, TaskTypeDeployment, TaskTypeConfig:
		return true
	default:
		return false
	}
}

// Complexity estimates the effort scale of a task
type Complexity string

const (
	// ComplexityTrivial is a one-line or config-level change
	ComplexityTrivial Complexity = "trivial"
	// ComplexitySimple is a small, single-component change
	ComplexitySimple Complexity = "simple"
	// ComplexityModerate spans a few components
	ComplexityModerate Complexity = "moderate"
	// ComplexityComplex spans many components or needs design
	ComplexityComplex Complexity = "complex"
	// ComplexityEpic is large enough to decompose into features
	ComplexityEpic Complexity = "epic"
)

// IsValid checks if the complexity is valid
func (c Complexity) IsValid() bool {
	switch c {
	case ComplexityTrivial, ComplexitySimple, ComplexityModerate,
		ComplexityComplex, ComplexityEpic:
		return true
	default:
		return false
	}
}

// Phase is a workflow state machine phase
type Phase string

const (
	// PhaseAnalyzing is initial prompt analysis and classification
	PhaseAnalyzing Phase = "analyzing"
	// PhasePlanning is work breakdown construction
	PhasePlanning Phase = "planning"
	// PhaseDesigning is architecture and UI design
	PhaseDesigning Phase = "designing"
	// PhaseBuilding is implementation by dev agents
	PhaseBuilding Phase = "building"
	// PhaseTesting is test execution and verification
	PhaseTesting Phase = "testing"
	// PhaseReviewing is final review before completion
	PhaseReviewing Phase = "reviewing"
	// PhaseComplete is successful terminal state
	PhaseComplete Phase = "complete"
	// PhasePaused is suspended awaiting user input; resumable
	PhasePaused Phase = "paused"
	// PhaseFailed is unsuccessful terminal state
	PhaseFailed Phase = "failed"
)

// IsValid checks if the phase is valid
func (p Phase) IsValid() bool {
	switch p {
	case PhaseAnalyzing, PhasePlanning, PhaseDesigning, PhaseBuilding,
		PhaseTesting, PhaseReviewing, PhaseComplete, PhasePaused, PhaseFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the phase ends the workflow for good.
// Paused is not terminal: a paused workflow can be resumed.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Suspended reports whether the workflow is waiting on user input
func (p Phase) Suspended() bool {
	return p == PhasePaused
}

// Outcome is the terminal result of a workflow
type Outcome string

const (
	// OutcomeSuccess means the workflow completed all phases
	OutcomeSuccess Outcome = "success"
	// OutcomeFailed means the workflow hit an unrecoverable failure
	OutcomeFailed Outcome = "failed"
	// OutcomeAborted means the workflow was stopped deliberately
	OutcomeAborted Outcome = "aborted"
	// OutcomeEscalated means the workflow was handed to a human
	OutcomeEscalated Outcome = "escalated"
)

// IsValid checks if the outcome is valid
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailed, OutcomeAborted, OutcomeEscalated:
		return true
	default:
		return false
	}
}

// TaskClassification is the analyzed shape of a task prompt.
//
// Values arriving from a language model are normalized with documented
// coercions rather than rejected:
//   - unknown type        -> feature
//   - unknown complexity  -> moderate
//   - confidence outside [0,1] -> clamped
type TaskClassification struct {
	Type                 TaskType   `json:"type"`
	Complexity           Complexity `json:"complexity"`
	RequiresDesign       bool       `json:"requires_design"`
	RequiresArchitecture bool       `json:"requires_architecture"`
	RequiresCompliance   bool       `json:"requires_compliance"`
	Confidence           float64    `json:"confidence"`
}

// Normalize applies the documented coercions in place
func (c *TaskClassification) Normalize() {
	if !c.Type.IsValid() {
		c.Type = TaskTypeFeature
	}
	if !c.Complexity.IsValid() {
		c.Complexity = ComplexityModerate
	}
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
}

// DefaultClassification is the conservative fallback used when prompt
// analysis fails to produce a parseable result.
func DefaultClassification() TaskClassification {
	return TaskClassification{
		Type:       TaskTypeFeature,
		Complexity: ComplexityModerate,
		Confidence: 0.5,
	}
}

// Task is the unit of work a workflow executes
type Task struct {
	ID              string             `json:"id"`
	TenantID        string             `json:"tenant_id"`
	ProjectID       string             `json:"project_id"`
	Prompt          string             `json:"prompt"`
	Classification  TaskClassification `json:"classification"`
	Phase           Phase              `json:"phase"`
	RetryCount      int                `json:"retry_count"`
	IterationCount  int                `json:"iteration_count"`
	CompletedAgents []AgentType        `json:"completed_agents"`
	Outcome         *Outcome           `json:"outcome,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// HasCompleted reports whether the given agent already ran successfully
func (t *Task) HasCompleted(agent AgentType) bool {
	for _, a := range t.CompletedAgents {
		if a == agent {
			return true
		}
	}
	return false
}

var (
	// taskIDPattern matches prefixed work item ids (task-, feat-, epic-).
	taskIDPattern = regexp.MustCompile(`^(task|feat|epic)-[a-z0-9-]+$`)

	// leafIDPattern matches breakdown leaf task ids.
	leafIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

// ValidateTaskID checks a prefixed work item id (task-*, feat-*, epic-*)
func ValidateTaskID(id string) error {
	if id == "" {
		return faults.New(faults.CodeValidation, "task id must not be empty")
	}
	if !taskIDPattern.MatchString(id) {
		return faults.Newf(faults.CodeValidation,
			"task id %q must match %s", id, taskIDPattern.String())
	}
	return nil
}

// ValidateLeafID checks a breakdown leaf task id
func ValidateLeafID(id string) error {
	if id == "" {
		return faults.New(faults.CodeValidation, "leaf task id must not be empty")
	}
	if !leafIDPattern.MatchString(id) {
		return faults.Newf(faults.CodeValidation,
			"leaf task id %q must match %s", id, leafIDPattern.String())
	}
	return nil
}

// injectionPatterns flag prompt fragments that try to override agent
// instructions. Matching input fails validation outright.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(prior|previous)\s+(instructions|context)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?(developer|jailbreak|dan)\s+mode`),
}

// MaxPromptLength caps user prompt size at submission time.
const MaxPromptLength = 100 * 1024 // 100 KiB

// ValidatePrompt enforces the user input contract: non-empty, bounded,
// and free of instruction-override attempts.
func ValidatePrompt(prompt string) error {
	if prompt == "" {
		return faults.New(faults.CodeValidation, "prompt must not be empty")
	}
	if len(prompt) > MaxPromptLength {
		return faults.Newf(faults.CodeValidation,
			"prompt exceeds maximum length of %d bytes", MaxPromptLength)
	}
	for _, p := range injectionPatterns {
		if p.MatchString(prompt) {
			return faults.New(faults.CodeValidation,
				fmt.Sprintf("prompt rejected: matched injection pattern %s", p.String()))
		}
	}
	return nil
}
