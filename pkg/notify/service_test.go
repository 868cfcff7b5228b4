package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceNilReceiver(t *testing.T) {
	var s *Service

	t.Run("NotifyWorkflowStarted is no-op", func(t *testing.T) {
		result := s.NotifyWorkflowStarted(context.Background(), WorkflowStartedInput{
			WorkflowID:  "task-1",
			Fingerprint: "test fingerprint",
		})
		assert.Empty(t, result)
	})

	t.Run("NotifyApprovalRequested is no-op", func(_ *testing.T) {
		s.NotifyApprovalRequested(context.Background(), ApprovalRequestedInput{
			WorkflowID: "task-1",
			Title:      "plan approval",
		})
	})

	t.Run("NotifyWorkflowCompleted is no-op", func(_ *testing.T) {
		s.NotifyWorkflowCompleted(context.Background(), WorkflowCompletedInput{
			WorkflowID: "task-1",
			Status:     "completed",
		})
	})
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "", Channel: "C123"})
		assert.Nil(t, svc)
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "xoxb-test", Channel: ""})
		assert.Nil(t, svc)
	})

	t.Run("returns service when configured", func(t *testing.T) {
		svc := NewService(ServiceConfig{
			Token:        "xoxb-test",
			Channel:      "C123",
			DashboardURL: "https://example.com",
		})
		assert.NotNil(t, svc)
	})
}

func TestNotifyWorkflowStartedNoFingerprint(t *testing.T) {
	svc := NewService(ServiceConfig{
		Token:        "xoxb-test",
		Channel:      "C123",
		DashboardURL: "https://example.com",
	})

	result := svc.NotifyWorkflowStarted(context.Background(), WorkflowStartedInput{
		WorkflowID:  "task-1",
		Fingerprint: "",
	})
	assert.Empty(t, result, "should skip when no fingerprint")
}
