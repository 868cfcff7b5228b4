package models

import "time"

// CheckpointTrigger records why a checkpoint was taken
type CheckpointTrigger string

const (
	// TriggerManual is an operator-requested checkpoint
	TriggerManual CheckpointTrigger = "manual"
	// TriggerStateTransition follows a workflow phase change
	TriggerStateTransition CheckpointTrigger = "state_transition"
	// TriggerAgentComplete follows an agent execution
	TriggerAgentComplete CheckpointTrigger = "agent_complete"
	// TriggerBeforeDestructive precedes a destructive operation
	TriggerBeforeDestructive CheckpointTrigger = "before_destructive"
	// TriggerTimeInterval is a periodic checkpoint
	TriggerTimeInterval CheckpointTrigger = "time_interval"
)

// IsValid checks if the checkpoint trigger is valid
func (t CheckpointTrigger) IsValid() bool {
	switch t {
	case TriggerManual, TriggerStateTransition, TriggerAgentComplete,
		TriggerBeforeDestructive, TriggerTimeInterval:
		return true
	default:
		return false
	}
}

// CheckpointStatus is the lifecycle state of a stored checkpoint
type CheckpointStatus string

const (
	// CheckpointValid passed its last integrity validation
	CheckpointValid CheckpointStatus = "valid"
	// CheckpointCorrupted failed checksum validation
	CheckpointCorrupted CheckpointStatus = "corrupted"
	// CheckpointArchived was rotated out of the active set
	CheckpointArchived CheckpointStatus = "archived"
)

// AgentRunStatus is the per-agent execution state captured in a checkpoint
type AgentRunStatus string

const (
	AgentRunPending  AgentRunStatus = "pending"
	AgentRunRunning  AgentRunStatus = "running"
	AgentRunComplete AgentRunStatus = "complete"
	AgentRunFailed   AgentRunStatus = "failed"
)

// StateTransition is one entry in the workflow phase history
type StateTransition struct {
	From   Phase     `json:"from"`
	To     Phase     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// WorkflowFlags is the loop bookkeeping the decision engine reads.
type WorkflowFlags struct {
	HasFailures       bool `json:"has_failures"`
	NeedsApproval     bool `json:"needs_approval"`
	SecurityConcern   bool `json:"security_concern"`
	RequiresUserInput bool `json:"requires_user_input"`
}

// WorkflowSnapshot captures the state machine position plus the task and
// loop bookkeeping a resume needs to continue where the run left off.
type WorkflowSnapshot struct {
	CurrentState  Phase             `json:"current_state"`
	PreviousState Phase             `json:"previous_state,omitempty"`
	History       []StateTransition `json:"history,omitempty"`
	Task          *Task             `json:"task,omitempty"`
	Approval      *ApprovalRequest  `json:"approval,omitempty"`
	Rejections    map[string]int    `json:"rejections,omitempty"`
	Feedback      string            `json:"feedback,omitempty"`
	TokensUsed    TokenUsage        `json:"tokens_used"`
	Flags         WorkflowFlags     `json:"flags"`
}

// AgentState captures one agent's progress at checkpoint time.
// Output is stored post-redaction; raw agent output never reaches disk.
type AgentState struct {
	Status     AgentRunStatus `json:"status"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Attempts   int            `json:"attempts"`
	TokensUsed int64          `json:"tokens_used"`
}

// ContextSnapshot captures the curated knowledge the workflow accumulated
type ContextSnapshot struct {
	TaskDescription   string            `json:"task_description,omitempty"`
	ArtifactChecksums map[string]string `json:"artifact_checksums,omitempty"`
	Lessons           []string          `json:"lessons,omitempty"`
	Decisions         []ADR             `json:"decisions,omitempty"`
}

// FilesystemSnapshot captures file changes since the workflow started
type FilesystemSnapshot struct {
	Modified []string `json:"modified,omitempty"`
	Created  []string `json:"created,omitempty"`
	Deleted  []string `json:"deleted,omitempty"`
}

// CheckpointIntegrity holds the checksums recomputed at validation time.
// Each checksum is the first 16 hex characters of the SHA-256 of the
// snapshot's canonical serialization; Overall covers the four snapshot
// checksums concatenated in struct order.
type CheckpointIntegrity struct {
	Workflow   string `json:"workflow"`
	Agents     string `json:"agents"`
	Context    string `json:"context"`
	Filesystem string `json:"filesystem"`
	Overall    string `json:"overall"`
}

// CheckpointRecovery summarizes whether and where a workflow can resume
type CheckpointRecovery struct {
	CanResume       bool     `json:"can_resume"`
	ResumeFromAgent string   `json:"resume_from_agent,omitempty"`
	ResumeFromState Phase    `json:"resume_from_state,omitempty"`
	Blockers        []string `json:"blockers,omitempty"`
}

// Checkpoint is a durable snapshot of a workflow.
// Once persisted a checkpoint is immutable; validation recomputes the
// integrity checksums and must reproduce them byte for byte.
type Checkpoint struct {
	ID         string                `json:"id"`
	SessionID  string                `json:"session_id"`
	WorkflowID string                `json:"workflow_id"`
	CreatedAt  time.Time             `json:"created_at"`
	Trigger    CheckpointTrigger     `json:"trigger"`
	Status     CheckpointStatus      `json:"status"`
	Reason     string                `json:"reason,omitempty"`
	Workflow   WorkflowSnapshot      `json:"workflow"`
	Agents     map[string]AgentState `json:"agents"`
	Context    ContextSnapshot       `json:"context"`
	Filesystem FilesystemSnapshot    `json:"filesystem"`
	Integrity  CheckpointIntegrity   `json:"integrity"`
	Recovery   CheckpointRecovery    `json:"recovery"`
}
