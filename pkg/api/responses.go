package api

import (
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/queue"
)

// WorkflowAcceptedResponse is returned by POST /api/v1/workflows and
// POST /api/v1/workflows/:id/resume.
type WorkflowAcceptedResponse struct {
	WorkflowID string         `json:"workflow_id"`
	State      queue.RunState `json:"state"`
	Message    string         `json:"message"`
}

// WorkflowListResponse is returned by GET /api/v1/workflows.
type WorkflowListResponse struct {
	Workflows []queue.Run `json:"workflows"`
	Count     int         `json:"count"`
}

// CancelResponse is returned by POST /api/v1/workflows/:id/cancel.
type CancelResponse struct {
	WorkflowID string `json:"workflow_id"`
	Message    string `json:"message"`
}

// CheckpointListResponse is returned by GET /api/v1/workflows/:id/checkpoints.
type CheckpointListResponse struct {
	WorkflowID  string               `json:"workflow_id"`
	Checkpoints []*models.Checkpoint `json:"checkpoints"`
	Count       int                  `json:"count"`
}

// CheckpointValidationResponse is returned by GET /api/v1/checkpoints/:id/validate.
type CheckpointValidationResponse struct {
	CheckpointID string `json:"checkpoint_id"`
	Valid        bool   `json:"valid"`
}

// AuditQueryResponse is returned by GET /api/v1/audit.
type AuditQueryResponse struct {
	Events []models.AuditEvent `json:"events"`
	Count  int                 `json:"count"`
}

// EventQueryResponse is returned by GET /api/v1/events.
type EventQueryResponse struct {
	Events []models.ActivityEvent `json:"events"`
	Count  int                    `json:"count"`
}

// HealthCheck reports one component's health inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}
