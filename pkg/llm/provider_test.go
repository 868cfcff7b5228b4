package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/faults"
)

func TestRequestValidate(t *testing.T) {
	valid := Request{
		System:   "You orchestrate agents.",
		Messages: []Message{{Role: RoleUser, Content: "build the login page"}},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr string
	}{
		{
			name:    "no messages",
			mutate:  func(r *Request) { r.Messages = nil },
			wantErr: "at least one message",
		},
		{
			name:    "system role in conversation",
			mutate:  func(r *Request) { r.Messages[0].Role = "system" },
			wantErr: "unsupported role",
		},
		{
			name:    "empty content",
			mutate:  func(r *Request) { r.Messages[0].Content = "" },
			wantErr: "content is empty",
		},
		{
			name:    "oversized system prompt",
			mutate:  func(r *Request) { r.System = strings.Repeat("s", MaxSystemBytes+1) },
			wantErr: "system prompt",
		},
		{
			name:    "oversized message",
			mutate:  func(r *Request) { r.Messages[0].Content = strings.Repeat("m", MaxContentBytes+1) },
			wantErr: "limit",
		},
		{
			name:    "negative max tokens",
			mutate:  func(r *Request) { r.MaxTokens = -1 },
			wantErr: "negative",
		},
		{
			name:    "temperature out of range",
			mutate:  func(r *Request) { r.Temperature = 2.5 },
			wantErr: "temperature",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{
				System:   valid.System,
				Messages: []Message{valid.Messages[0]},
			}
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStatusFaultMapping(t *testing.T) {
	tests := []struct {
		status      int
		wantCode    faults.Code
		recoverable bool
	}{
		{http.StatusUnauthorized, faults.CodeSecurity, false},
		{http.StatusForbidden, faults.CodeSecurity, false},
		{http.StatusTooManyRequests, faults.CodeUpstream, true},
		{http.StatusBadRequest, faults.CodeValidation, false},
		{http.StatusNotFound, faults.CodeValidation, false},
		{http.StatusRequestEntityTooLarge, faults.CodeValidation, false},
		{http.StatusUnprocessableEntity, faults.CodeValidation, false},
		{http.StatusInternalServerError, faults.CodeUpstream, true},
		{http.StatusServiceUnavailable, faults.CodeUpstream, true},
		{529, faults.CodeUpstream, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			f := statusFault("anthropic", "completion", tt.status, errors.New("upstream said no"))
			assert.Equal(t, tt.wantCode, f.Code)
			assert.Equal(t, tt.recoverable, f.Recoverable)
			assert.Contains(t, f.Message, "anthropic completion")
		})
	}

	rateLimited := statusFault("openai", "completion", http.StatusTooManyRequests, errors.New("slow down"))
	assert.Equal(t, true, rateLimited.Details["rate_limited"])
}

func TestStatusFaultRedactsSecrets(t *testing.T) {
	err := errors.New(`POST /v1/messages: 401 api_key="sk-ant-abc12345678901" Authorization: Bearer abcdef12345678`)

	f := statusFault("anthropic", "completion", http.StatusUnauthorized, err)

	assert.NotContains(t, f.Error(), "sk-ant-abc12345678901")
	assert.NotContains(t, f.Error(), "abcdef12345678")
	assert.Contains(t, f.Message, "[REDACTED]")
	// The raw cause must not survive into the error chain either.
	assert.NoError(t, f.Unwrap())
}

func TestTransportFaultRedactsSecrets(t *testing.T) {
	f := transportFault("openai", "completion", errors.New("dial failed: password=hunter2secret"))

	assert.Equal(t, faults.CodeUpstream, f.Code)
	assert.NotContains(t, f.Error(), "hunter2secret")
	assert.Contains(t, f.Message, "openai completion")
}

func TestEnsureDeadline(t *testing.T) {
	t.Run("applies budget when none set", func(t *testing.T) {
		ctx, cancel, budget := ensureDeadline(context.Background(), time.Minute)
		defer cancel()
		require.Equal(t, time.Minute, budget)
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
	})

	t.Run("keeps earlier caller deadline", func(t *testing.T) {
		parent, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		ctx, release, budget := ensureDeadline(parent, time.Hour)
		defer release()
		assert.LessOrEqual(t, budget, 50*time.Millisecond)
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		parentDeadline, _ := parent.Deadline()
		assert.Equal(t, parentDeadline, deadline)
	})

	t.Run("zero budget falls back to default", func(t *testing.T) {
		ctx, cancel, budget := ensureDeadline(context.Background(), 0)
		defer cancel()
		assert.Equal(t, DefaultTimeout, budget)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	})
}

func TestTimeoutOrCancel(t *testing.T) {
	started := time.Now().Add(-2 * time.Second)

	err := timeoutOrCancel("anthropic completion", fmt.Errorf("post: %w", context.DeadlineExceeded), started, time.Second)
	require.Error(t, err)
	assert.Equal(t, faults.CodeTimeout, faults.CodeOf(err))
	assert.Contains(t, err.Error(), "anthropic completion")

	err = timeoutOrCancel("anthropic completion", context.Canceled, started, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, faults.Code(""), faults.CodeOf(err))

	assert.NoError(t, timeoutOrCancel("anthropic completion", errors.New("boom"), started, time.Second))
}

func TestNewSubagentRequest(t *testing.T) {
	req, err := newSubagentRequest("You review database schemas.", "Review the activity_events table.", SubagentOptions{
		MaxTokens:   512,
		Temperature: 0.2,
		Metadata:    map[string]string{"user_id": "tenant-a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "You review database schemas.", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, RoleUser, req.Messages[0].Role)
	assert.Equal(t, "Review the activity_events table.", req.Messages[0].Content)
	assert.Equal(t, 512, req.MaxTokens)
	assert.Equal(t, "tenant-a", req.Metadata["user_id"])

	_, err = newSubagentRequest("", "task", SubagentOptions{})
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))

	_, err = newSubagentRequest("role", "", SubagentOptions{})
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{Provider: "anthropic", APIKey: "key", Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	p, err = NewProvider(Config{Provider: "openai", APIKey: "key", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = NewProvider(Config{Provider: "gemini", APIKey: "key", Model: "m"})
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))

	_, err = NewProvider(Config{Provider: "anthropic", Model: "claude-sonnet-4-5"})
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))
}
