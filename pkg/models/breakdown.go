package models

import (
	"fmt"

	"github.com/codeready-toolchain/baton/pkg/faults"
)

// TaskKind is the discipline a breakdown leaf task belongs to
type TaskKind string

const (
	// TaskKindDesign is UI or UX design work
	TaskKindDesign TaskKind = "design"
	// TaskKindFrontend is client-side implementation
	TaskKindFrontend TaskKind = "frontend"
	// TaskKindBackend is server-side implementation
	TaskKindBackend TaskKind = "backend"
	// TaskKindDatabase is schema or query work
	TaskKindDatabase TaskKind = "database"
	// TaskKindTesting is test authoring or execution
	TaskKindTesting TaskKind = "testing"
	// TaskKindIntegration is wiring between components or services
	TaskKindIntegration TaskKind = "integration"
	// TaskKindDocumentation is docs work
	TaskKindDocumentation TaskKind = "documentation"
	// TaskKindDevops is build, deploy, or infra work
	TaskKindDevops TaskKind = "devops"
	// TaskKindReview is review-only work
	TaskKindReview TaskKind = "review"
)

// IsValid checks if the task kind is valid
func (k TaskKind) IsValid() bool {
	switch k {
	case TaskKindDesign, TaskKindFrontend, TaskKindBackend, TaskKindDatabase,
		TaskKindTesting, TaskKindIntegration, TaskKindDocumentation,
		TaskKindDevops, TaskKindReview:
		return true
	default:
		return false
	}
}

// BreakdownTask is a leaf work item inside a breakdown
type BreakdownTask struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	Kind               TaskKind    `json:"kind"`
	Complexity         Complexity  `json:"complexity"`
	DependsOn          []string    `json:"depends_on,omitempty"`
	AcceptanceCriteria []string    `json:"acceptance_criteria,omitempty"`
	AssignedAgents     []AgentType `json:"assigned_agents,omitempty"`
	ComplianceRelevant bool        `json:"compliance_relevant"`
}

// Feature groups related leaf tasks
type Feature struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Tasks       []BreakdownTask `json:"tasks"`
}

// Epic groups related features
type Epic struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Features    []Feature `json:"features"`
}

// WorkBreakdown is the planner's hierarchical decomposition of a task
type WorkBreakdown struct {
	Epics []Epic `json:"epics"`
}

// AllTasks flattens the hierarchy into its leaf tasks, in document order
func (b *WorkBreakdown) AllTasks() []BreakdownTask {
	var out []BreakdownTask
	for _, e := range b.Epics {
		for _, f := range e.Features {
			out = append(out, f.Tasks...)
		}
	}
	return out
}

// Validate checks structural integrity of the breakdown: id formats,
// uniqueness across the document, enum values, and that every dependency
// names an existing leaf task.
func (b *WorkBreakdown) Validate() error {
	seen := make(map[string]bool)
	leaves := make(map[string]bool)

	for _, e := range b.Epics {
		if err := ValidateTaskID(e.ID); err != nil {
			return err
		}
		if seen[e.ID] {
			return faults.Newf(faults.CodeConflict, "duplicate id %q in breakdown", e.ID)
		}
		seen[e.ID] = true

		for _, f := range e.Features {
			if err := ValidateTaskID(f.ID); err != nil {
				return err
			}
			if seen[f.ID] {
				return faults.Newf(faults.CodeConflict, "duplicate id %q in breakdown", f.ID)
			}
			seen[f.ID] = true

			for _, t := range f.Tasks {
				if err := ValidateLeafID(t.ID); err != nil {
					return err
				}
				if seen[t.ID] {
					return faults.Newf(faults.CodeConflict, "duplicate id %q in breakdown", t.ID)
				}
				seen[t.ID] = true
				leaves[t.ID] = true

				if !t.Kind.IsValid() {
					return faults.Newf(faults.CodeValidation,
						"task %q has unknown kind %q", t.ID, t.Kind)
				}
				if !t.Complexity.IsValid() {
					return faults.Newf(faults.CodeValidation,
						"task %q has unknown complexity %q", t.ID, t.Complexity)
				}
				for _, a := range t.AssignedAgents {
					if !a.IsValid() {
						return faults.Newf(faults.CodeValidation,
							"task %q assigned to unknown agent %q", t.ID, a)
					}
				}
			}
		}
	}

	// Dependency references are resolved after the whole document is read
	// so declaration order does not matter.
	for _, e := range b.Epics {
		for _, f := range e.Features {
			for _, t := range f.Tasks {
				for _, dep := range t.DependsOn {
					if dep == t.ID {
						return faults.Newf(faults.CodeValidation,
							"task %q depends on itself", t.ID)
					}
					if !leaves[dep] {
						return faults.New(faults.CodeValidation,
							fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep))
					}
				}
			}
		}
	}
	return nil
}
