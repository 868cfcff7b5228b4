package models

import "time"

// ActivityType enumerates the events the activity stream carries
type ActivityType string

const (
	ActivityWorkflowStart     ActivityType = "workflow_start"
	ActivityWorkflowComplete  ActivityType = "workflow_complete"
	ActivityWorkflowError     ActivityType = "workflow_error"
	ActivityWorkflowPaused    ActivityType = "workflow_paused"
	ActivityWorkflowResumed   ActivityType = "workflow_resumed"
	ActivityPhaseChange       ActivityType = "phase_change"
	ActivityAgentStart        ActivityType = "agent_start"
	ActivityAgentThinking     ActivityType = "agent_thinking"
	ActivityAgentComplete     ActivityType = "agent_complete"
	ActivityAgentError        ActivityType = "agent_error"
	ActivityFileWrite         ActivityType = "file_write"
	ActivityFileRead          ActivityType = "file_read"
	ActivityGitOperation      ActivityType = "git_operation"
	ActivityUserApproval      ActivityType = "user_approval"
	ActivityUserInput         ActivityType = "user_input"
	ActivitySystemInfo        ActivityType = "system_info"
	ActivityProgressUpdate    ActivityType = "progress_update"
	ActivityDesignDecision    ActivityType = "design_decision"
	ActivityCheckpointCreated ActivityType = "checkpoint_created"
)

// IsValid checks if the activity type is a known value
func (t ActivityType) IsValid() bool {
	_, ok := activityCategories[t]
	return ok
}

// Category returns the category an activity type belongs to; unknown types
// fall under the system category.
func (t ActivityType) Category() ActivityCategory {
	if c, ok := activityCategories[t]; ok {
		return c
	}
	return CategorySystem
}

// ActivityCategory groups activity types for subscription filtering
type ActivityCategory string

const (
	CategoryWorkflow ActivityCategory = "workflow"
	CategoryAgent    ActivityCategory = "agent"
	CategoryFile     ActivityCategory = "file"
	CategoryGit      ActivityCategory = "git"
	CategoryUser     ActivityCategory = "user"
	CategorySystem   ActivityCategory = "system"
	CategoryProgress ActivityCategory = "progress"
	CategoryDesign   ActivityCategory = "design"
)

// IsValid checks if the activity category is a known value
func (c ActivityCategory) IsValid() bool {
	switch c {
	case CategoryWorkflow, CategoryAgent, CategoryFile, CategoryGit,
		CategoryUser, CategorySystem, CategoryProgress, CategoryDesign:
		return true
	}
	return false
}

// activityCategories maps each activity type to its category.
var activityCategories = map[ActivityType]ActivityCategory{
	ActivityWorkflowStart:     CategoryWorkflow,
	ActivityWorkflowComplete:  CategoryWorkflow,
	ActivityWorkflowError:     CategoryWorkflow,
	ActivityWorkflowPaused:    CategoryWorkflow,
	ActivityWorkflowResumed:   CategoryWorkflow,
	ActivityPhaseChange:       CategoryWorkflow,
	ActivityAgentStart:        CategoryAgent,
	ActivityAgentThinking:     CategoryAgent,
	ActivityAgentComplete:     CategoryAgent,
	ActivityAgentError:        CategoryAgent,
	ActivityFileWrite:         CategoryFile,
	ActivityFileRead:          CategoryFile,
	ActivityGitOperation:      CategoryGit,
	ActivityUserApproval:      CategoryUser,
	ActivityUserInput:         CategoryUser,
	ActivitySystemInfo:        CategorySystem,
	ActivityProgressUpdate:    CategoryProgress,
	ActivityDesignDecision:    CategoryDesign,
	ActivityCheckpointCreated: CategorySystem,
}

// Severity orders event importance from debug up to error
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// IsValid checks if the severity is a known value
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// severityRank orders severities for range queries.
var severityRank = map[Severity]int{
	SeverityDebug:   0,
	SeverityInfo:    1,
	SeveritySuccess: 2,
	SeverityWarning: 3,
	SeverityError:   4,
}

// Rank returns the ordinal position of the severity; unknown values rank
// as info.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeverityInfo]
}

// AtLeast reports whether s is as severe as min
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Progress reports completion of a long-running step
type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ActivityEvent is one immutable entry in the activity stream.
// Sequence numbers are strictly monotonic per session; the stream assigns
// both the sequence and the timestamp at emit time.
type ActivityEvent struct {
	Sequence      int64            `json:"sequence"`
	ID            string           `json:"id"`
	Timestamp     time.Time        `json:"timestamp"`
	Type          ActivityType     `json:"type"`
	Category      ActivityCategory `json:"category"`
	Severity      Severity         `json:"severity"`
	SessionID     string           `json:"session_id"`
	WorkflowID    string           `json:"workflow_id,omitempty"`
	AgentID       string           `json:"agent_id,omitempty"`
	Title         string           `json:"title"`
	Message       string           `json:"message,omitempty"`
	Details       map[string]any   `json:"details,omitempty"`
	Progress      *Progress        `json:"progress,omitempty"`
	DurationMs    *int64           `json:"duration_ms,omitempty"`
	ParentID      string           `json:"parent_id,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
}
