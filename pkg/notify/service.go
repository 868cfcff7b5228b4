package notify

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// WorkflowStartedInput contains data for a workflow start notification.
type WorkflowStartedInput struct {
	WorkflowID  string
	Fingerprint string
}

// ApprovalRequestedInput contains data for an approval request notification.
type ApprovalRequestedInput struct {
	WorkflowID  string
	Title       string
	Description string
	Options     []string
	Fingerprint string
	ThreadTS    string
}

// WorkflowCompletedInput contains data for a terminal workflow notification.
type WorkflowCompletedInput struct {
	WorkflowID   string
	Status       string // completed, failed, timed_out, cancelled, escalated
	Reason       string
	ErrorMessage string
	Fingerprint  string
	ThreadTS     string // Cached from start notification
}

// Service handles Slack notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyWorkflowStarted sends a "workflow started" notification.
// Only sends if a fingerprint is present (Slack-originated submissions).
// Returns resolved threadTS for reuse by later notifications.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyWorkflowStarted(ctx context.Context, input WorkflowStartedInput) string {
	if s == nil {
		return ""
	}

	if input.Fingerprint == "" {
		return ""
	}

	threadTS, err := s.client.FindMessageByFingerprint(ctx, input.Fingerprint)
	if err != nil {
		s.logger.Warn("Failed to find Slack thread for fingerprint",
			"workflow_id", input.WorkflowID,
			"fingerprint", input.Fingerprint,
			"error", err)
	}

	blocks := BuildStartedMessage(input.WorkflowID, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 5*time.Second); err != nil {
		s.logger.Error("Failed to send Slack start notification",
			"workflow_id", input.WorkflowID,
			"error", err)
	}

	return threadTS
}

// NotifyApprovalRequested sends an approval request notification.
// Unlike start notifications, these go out even without a fingerprint:
// a paused workflow makes no progress until someone responds.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyApprovalRequested(ctx context.Context, input ApprovalRequestedInput) {
	if s == nil {
		return
	}

	threadTS := s.resolveThread(ctx, input.WorkflowID, input.ThreadTS, input.Fingerprint)

	blocks := BuildApprovalMessage(input, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send Slack approval notification",
			"workflow_id", input.WorkflowID,
			"error", err)
	}
}

// NotifyWorkflowCompleted sends a terminal status notification.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyWorkflowCompleted(ctx context.Context, input WorkflowCompletedInput) {
	if s == nil {
		return
	}

	threadTS := s.resolveThread(ctx, input.WorkflowID, input.ThreadTS, input.Fingerprint)

	blocks := BuildTerminalMessage(input, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send Slack notification",
			"workflow_id", input.WorkflowID,
			"status", input.Status,
			"error", err)
	}
}

// resolveThread returns the cached threadTS, or looks one up from the
// fingerprint when the cache is empty.
func (s *Service) resolveThread(ctx context.Context, workflowID, threadTS, fingerprint string) string {
	if threadTS != "" || fingerprint == "" {
		return threadTS
	}
	resolved, err := s.client.FindMessageByFingerprint(ctx, fingerprint)
	if err != nil {
		s.logger.Warn("Failed to find Slack thread for fingerprint",
			"workflow_id", workflowID,
			"fingerprint", fingerprint,
			"error", err)
	}
	return resolved
}
