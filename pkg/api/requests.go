package api

// StartWorkflowRequest is the HTTP request body for POST /api/v1/workflows.
// TaskID is optional; one is minted when absent.
type StartWorkflowRequest struct {
	TaskID    string `json:"task_id,omitempty"`
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id,omitempty"`
	Prompt    string `json:"prompt"`
}

// ApprovalDecisionRequest is the HTTP request body for
// POST /api/v1/workflows/:id/approval.
type ApprovalDecisionRequest struct {
	Approved       bool   `json:"approved"`
	SelectedOption string `json:"selected_option,omitempty"`
	Feedback       string `json:"feedback,omitempty"`
}

// ResumeWorkflowRequest is the HTTP request body for
// POST /api/v1/workflows/:id/resume. CheckpointID is optional; the
// latest checkpoint is used when absent. An empty body is accepted.
type ResumeWorkflowRequest struct {
	CheckpointID string `json:"checkpoint_id,omitempty"`
}
