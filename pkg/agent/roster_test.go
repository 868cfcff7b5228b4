package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/llm"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// stubProvider is a scriptable llm.Provider for roster tests.
type stubProvider struct {
	lastReq llm.Request
	calls   int
	resp    llm.Response
	err     error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return s.resp, nil
}

func (s *stubProvider) Stream(context.Context, llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

func (s *stubProvider) SpawnSubagent(ctx context.Context, role, task string, _ llm.SubagentOptions) (llm.Response, error) {
	return s.Complete(ctx, llm.Request{
		System:   role,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: task}},
	})
}

func rosterRequest(agentType models.AgentType) *Request {
	return &Request{
		ExecutionID: "f47ac10b-58cc-4372-a567-0e02b2c3d479",
		Agent:       agentType,
		Task: models.Task{
			ID:        "task-checkout",
			TenantID:  testTenantID,
			ProjectID: testProjectID,
			Prompt:    "add a checkout flow",
			Phase:     models.PhasePlanning,
			Classification: models.TaskClassification{
				Type:       models.TaskTypeFeature,
				Complexity: models.ComplexityModerate,
			},
		},
		Context: RequestContext{
			TenantID: testTenantID,
			Auth:     testAuth(),
			Curated: models.CuratedContext{
				Items: []models.ContextItem{
					{ID: "i1", Type: models.ContextCurrentTask, Content: "checkout details"},
				},
			},
			PreviousOutputs: []models.AgentOutput{
				{Agent: models.AgentOrchestrator, Success: true},
				{Agent: models.AgentTester, Success: false, Error: &models.AgentError{Code: models.ErrorCodeTestFailure}},
			},
			Constraints: map[string]any{"language": "go"},
			Feedback:    "use the existing cart service",
		},
	}
}

func TestNewRosterRegistry(t *testing.T) {
	registry, err := NewRosterRegistry(&stubProvider{})
	require.NoError(t, err)
	assert.True(t, registry.Sealed())

	metas := registry.List()
	require.Len(t, metas, len(models.AllAgentTypes()))

	for _, at := range models.AllAgentTypes() {
		meta, err := registry.Metadata(at)
		require.NoError(t, err, "agent %s must be registered", at)
		assert.Equal(t, at, meta.Type)
		assert.NotEmpty(t, meta.Name)
		assert.NotEmpty(t, meta.Capabilities, "agent %s must advertise a capability", at)
		assert.NotEmpty(t, meta.OutputSchemaID)

		ag, err := registry.GetAgent(at)
		require.NoError(t, err)
		assert.Equal(t, at, ag.Metadata().Type)
	}
}

func TestRosterRegistrationGuards(t *testing.T) {
	err := RegisterRoster(nil, &stubProvider{})
	require.Error(t, err)
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))

	err = RegisterRoster(NewRegistry(), nil)
	require.Error(t, err)
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))

	registry := NewRegistry()
	require.NoError(t, RegisterRoster(registry, &stubProvider{}))
	err = RegisterRoster(registry, &stubProvider{})
	require.Error(t, err)
	assert.Equal(t, faults.CodeConflict, faults.CodeOf(err))
}

func TestRosterLookups(t *testing.T) {
	registry, err := NewRosterRegistry(&stubProvider{})
	require.NoError(t, err)

	assert.Equal(t, []models.AgentType{models.AgentOrchestrator}, registry.FindByCapability("classify_task"))
	assert.Equal(t, []models.AgentType{models.AgentUIDesigner}, registry.FindByOutputType("style_package"))
	assert.Equal(t,
		[]models.AgentType{models.AgentBugFixer, models.AgentReviewer},
		registry.FindByInputType("test_report"),
		"lookup results are sorted by type")
}

func TestRoleAgentExecuteSuccess(t *testing.T) {
	provider := &stubProvider{resp: llm.Response{
		Content:    `{"epics": []}`,
		Usage:      models.TokenUsage{InputTokens: 900, OutputTokens: 120},
		Model:      "claude-sonnet-4-5",
		StopReason: "end_turn",
	}}
	registry, err := NewRosterRegistry(provider)
	require.NoError(t, err)
	planner, err := registry.GetAgent(models.AgentPlanner)
	require.NoError(t, err)

	output, err := planner.Execute(context.Background(), rosterRequest(models.AgentPlanner))
	require.NoError(t, err)
	require.NotNil(t, output)

	assert.True(t, output.Success)
	assert.Equal(t, models.AgentPlanner, output.Agent)
	assert.Equal(t, `{"epics": []}`, output.Result["content"])
	assert.Equal(t, "claude-sonnet-4-5", output.Result["model"])
	assert.Equal(t, "end_turn", output.Result["stop_reason"])
	assert.Equal(t, int64(900), output.TokensUsed.InputTokens)
	assert.Equal(t, int64(120), output.TokensUsed.OutputTokens)
	assert.Nil(t, output.Error)

	require.Equal(t, 1, provider.calls)
	assert.Contains(t, provider.lastReq.System, "planning agent")
	require.Len(t, provider.lastReq.Messages, 1)
	message := provider.lastReq.Messages[0].Content
	assert.Equal(t, llm.RoleUser, provider.lastReq.Messages[0].Role)
	assert.Contains(t, message, "add a checkout flow")
	assert.Contains(t, message, "task-checkout")
	assert.Contains(t, message, `[current_task] "checkout details"`)
	assert.Contains(t, message, "- orchestrator succeeded")
	assert.Contains(t, message, "- tester failed (TEST_FAILURE)")
	assert.Contains(t, message, `{"language":"go"}`)
	assert.Contains(t, message, "use the existing cart service")
	assert.NotContains(t, provider.lastReq.System, testTenantID)
}

func TestRoleAgentExecuteProviderFault(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantCode        string
		wantRecoverable bool
	}{
		{
			name:            "upstream fault stays recoverable",
			err:             faults.New(faults.CodeUpstream, "anthropic completion failed"),
			wantCode:        models.ErrorCodeGeneric,
			wantRecoverable: true,
		},
		{
			name:            "security fault maps to security violation",
			err:             faults.New(faults.CodeSecurity, "anthropic completion rejected: status 401"),
			wantCode:        models.ErrorCodeSecurityViolation,
			wantRecoverable: false,
		},
		{
			name:            "timeout fault stays recoverable",
			err:             faults.NewTimeout("anthropic completion", 0, 0),
			wantCode:        models.ErrorCodeGeneric,
			wantRecoverable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{err: tt.err}
			registry, err := NewRosterRegistry(provider)
			require.NoError(t, err)
			reviewer, err := registry.GetAgent(models.AgentReviewer)
			require.NoError(t, err)

			output, err := reviewer.Execute(context.Background(), rosterRequest(models.AgentReviewer))
			require.NoError(t, err, "provider faults travel inside the output")
			require.NotNil(t, output)

			assert.False(t, output.Success)
			assert.Equal(t, models.AgentReviewer, output.Agent)
			require.NotNil(t, output.Error)
			assert.Equal(t, tt.wantCode, output.Error.Code)
			assert.Equal(t, tt.wantRecoverable, output.Error.Recoverable)
			assert.True(t, output.Routing.HasFailures)
		})
	}
}

func TestRoleAgentCancellation(t *testing.T) {
	provider := &stubProvider{err: context.Canceled}
	registry, err := NewRosterRegistry(provider)
	require.NoError(t, err)
	architect, err := registry.GetAgent(models.AgentArchitect)
	require.NoError(t, err)

	output, err := architect.Execute(context.Background(), rosterRequest(models.AgentArchitect))
	require.Error(t, err)
	assert.Nil(t, output)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRoleAgentNilRequest(t *testing.T) {
	registry, err := NewRosterRegistry(&stubProvider{})
	require.NoError(t, err)
	orchestrator, err := registry.GetAgent(models.AgentOrchestrator)
	require.NoError(t, err)

	_, err = orchestrator.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))
}
