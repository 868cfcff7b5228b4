package models

import "time"

// ApprovalRequest is surfaced to the user when a workflow pauses.
// It is stored alongside the paused state and cleared on response.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Agent       AgentType      `json:"agent"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Options     []string       `json:"options,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ApprovalResponse is the user's answer to a pending approval request.
// A rejection routes back to the originating agent with Feedback attached.
type ApprovalResponse struct {
	Approved       bool   `json:"approved"`
	SelectedOption string `json:"selected_option,omitempty"`
	Feedback       string `json:"feedback,omitempty"`
}
