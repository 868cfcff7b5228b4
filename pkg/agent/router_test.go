package agent

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/curator"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

const (
	testTenantID  = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	testProjectID = "6ba7b811-9dad-11d1-80b4-00c04fd430c8"
	testSessionID = "session-1"
)

func testAuth() models.AuthContext {
	return models.AuthContext{
		TenantID:  testTenantID,
		UserID:    "user-1",
		SessionID: testSessionID,
	}
}

func testTask() models.Task {
	return models.Task{
		ID:        "task-checkout",
		TenantID:  testTenantID,
		ProjectID: testProjectID,
		Prompt:    "add a checkout flow",
		Phase:     models.PhaseBuilding,
	}
}

// taskSource serves one fixed current_task item.
type taskSource struct{}

func (taskSource) Type() models.ContextType         { return models.ContextCurrentTask }
func (taskSource) IsAvailable(context.Context) bool { return true }
func (taskSource) Fetch(context.Context, curator.FetchParams) ([]models.ContextItem, error) {
	return []models.ContextItem{{ID: "task-item", Content: "checkout flow details"}}, nil
}

type routerFixture struct {
	registry *Registry
	router   *Router
	stream   *activity.Stream
}

func newRouterFixture(t *testing.T, agents ...*stubAgent) *routerFixture {
	t.Helper()
	registry := NewRegistry()
	for _, stub := range agents {
		stub := stub
		require.NoError(t, registry.Register(stub.meta, func() (Agent, error) { return stub, nil }))
	}
	registry.Seal()

	manager := curator.NewManager(curator.Config{})
	require.NoError(t, manager.RegisterSource(taskSource{}))

	stream := activity.NewStream(activity.StreamConfig{}, nil)
	t.Cleanup(stream.Close)

	router, err := NewRouter(registry, manager, stream)
	require.NoError(t, err)
	return &routerFixture{registry: registry, router: router, stream: stream}
}

func (f *routerFixture) eventTypes() []models.ActivityType {
	events := f.stream.Recent(testSessionID, 50)
	out := make([]models.ActivityType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestNewRouterValidation(t *testing.T) {
	_, err := NewRouter(nil, curator.NewManager(curator.Config{}), nil)
	require.Error(t, err)
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))

	_, err = NewRouter(NewRegistry(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))
}

func TestRouteBuildsRequest(t *testing.T) {
	stub := &stubAgent{meta: Metadata{
		Type: models.AgentPlanner,
		Name: "Planner",
		RequiredContext: []models.ContextRequirement{
			{Type: models.ContextCurrentTask, Required: true},
		},
	}}
	f := newRouterFixture(t, stub)

	previous := []models.AgentOutput{{Agent: models.AgentOrchestrator, Success: true}}
	req, err := f.router.Route(context.Background(), ExecutionInput{
		Agent:       models.AgentPlanner,
		Task:        testTask(),
		Auth:        testAuth(),
		Previous:    previous,
		Constraints: map[string]any{"language": "go"},
		Feedback:    "tighten the epics",
	})
	require.NoError(t, err)

	_, parseErr := uuid.Parse(req.ExecutionID)
	assert.NoError(t, parseErr, "execution id must be a fresh uuid")
	assert.Equal(t, models.AgentPlanner, req.Agent)
	assert.Equal(t, "task-checkout", req.Task.ID)
	assert.Equal(t, testTenantID, req.Context.TenantID)
	assert.Equal(t, testAuth(), req.Context.Auth)
	assert.Equal(t, previous, req.Context.PreviousOutputs)
	assert.Equal(t, "go", req.Context.Constraints["language"])
	assert.Equal(t, "tighten the epics", req.Context.Feedback)
	require.Len(t, req.Context.Curated.Items, 1)
	assert.Equal(t, "task-item", req.Context.Curated.Items[0].ID)

	second, err := f.router.Route(context.Background(), ExecutionInput{
		Agent: models.AgentPlanner,
		Task:  testTask(),
		Auth:  testAuth(),
	})
	require.NoError(t, err)
	assert.NotEqual(t, req.ExecutionID, second.ExecutionID)
}

func TestRouteRejectsInvalidAuth(t *testing.T) {
	f := newRouterFixture(t, &stubAgent{meta: testMeta(models.AgentPlanner)})

	expired := time.Now().Add(-time.Minute)
	tests := []struct {
		name string
		auth models.AuthContext
	}{
		{"missing tenant", models.AuthContext{UserID: "u", SessionID: "s"}},
		{"missing user", models.AuthContext{TenantID: testTenantID, SessionID: "s"}},
		{"expired", models.AuthContext{TenantID: testTenantID, UserID: "u", SessionID: "s", ExpiresAt: &expired}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.router.Route(context.Background(), ExecutionInput{
				Agent: models.AgentPlanner,
				Task:  testTask(),
				Auth:  tt.auth,
			})
			require.Error(t, err)
			assert.Equal(t, faults.CodeSecurity, faults.CodeOf(err))
		})
	}
}

func TestRouteUnknownAgent(t *testing.T) {
	f := newRouterFixture(t, &stubAgent{meta: testMeta(models.AgentPlanner)})

	_, err := f.router.Route(context.Background(), ExecutionInput{
		Agent: models.AgentCompliance,
		Task:  testTask(),
		Auth:  testAuth(),
	})
	require.Error(t, err)
	assert.Equal(t, faults.CodeNotFound, faults.CodeOf(err))
}

func TestRouteWarnsOnMissingRequiredContext(t *testing.T) {
	stub := &stubAgent{meta: Metadata{
		Type: models.AgentCompliance,
		Name: "Compliance",
		RequiredContext: []models.ContextRequirement{
			{Type: models.ContextComplianceRules, Required: true},
		},
	}}
	f := newRouterFixture(t, stub)

	req, err := f.router.Route(context.Background(), ExecutionInput{
		Agent: models.AgentCompliance,
		Task:  testTask(),
		Auth:  testAuth(),
	})
	require.NoError(t, err, "missing context degrades, it does not fail routing")
	assert.Equal(t, []models.ContextType{models.ContextComplianceRules}, req.Context.Curated.MissingRequired)

	events := f.stream.Recent(testSessionID, 10)
	require.Len(t, events, 1)
	assert.Equal(t, models.ActivitySystemInfo, events[0].Type)
	assert.Equal(t, models.SeverityWarning, events[0].Severity)
	assert.Equal(t, string(models.AgentCompliance), events[0].AgentID)
	assert.Equal(t, "compliance_rules", events[0].Details["context_type"])
}

func TestExecuteSuccess(t *testing.T) {
	stub := &stubAgent{
		meta: testMeta(models.AgentBackendDev),
		execute: func(ctx context.Context, req *Request) (*models.AgentOutput, error) {
			return &models.AgentOutput{
				Success: true,
				Artifacts: []models.Artifact{
					{ID: "a1", Type: "source", Path: "tenants/" + testTenantID + "/api/server.go"},
					{ID: "a2", Type: "source", Path: "src/shared/util.go"},
				},
				TokensUsed: models.TokenUsage{InputTokens: 100, OutputTokens: 40},
			}, nil
		},
	}
	f := newRouterFixture(t, stub)

	output, err := f.router.Execute(context.Background(), ExecutionInput{
		Agent: models.AgentBackendDev,
		Task:  testTask(),
		Auth:  testAuth(),
	})
	require.NoError(t, err)
	require.NotNil(t, output)
	assert.True(t, output.Success)
	assert.Equal(t, models.AgentBackendDev, output.Agent, "router stamps the agent type")
	assert.GreaterOrEqual(t, output.DurationMs, int64(0))
	require.NotNil(t, stub.lastReq)
	assert.Equal(t, testTenantID, stub.lastReq.Context.TenantID)

	status, err := f.registry.Status(models.AgentBackendDev)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, status.State)
	require.NotNil(t, status.LastExecution)
	assert.Zero(t, status.ConsecutiveFailures)

	assert.Equal(t, []models.ActivityType{
		models.ActivityAgentStart,
		models.ActivityAgentComplete,
	}, f.eventTypes())
}

func TestExecuteAgentLevelFailure(t *testing.T) {
	stub := &stubAgent{
		meta: testMeta(models.AgentTester),
		execute: func(ctx context.Context, req *Request) (*models.AgentOutput, error) {
			return &models.AgentOutput{
				Success: false,
				Error: &models.AgentError{
					Code:        models.ErrorCodeTestFailure,
					Message:     "3 assertions failed",
					Recoverable: true,
				},
			}, nil
		},
	}
	f := newRouterFixture(t, stub)

	output, err := f.router.Execute(context.Background(), ExecutionInput{
		Agent: models.AgentTester,
		Task:  testTask(),
		Auth:  testAuth(),
	})
	require.NoError(t, err, "agent-level failures travel inside the output")
	require.NotNil(t, output)
	assert.False(t, output.Success)

	status, err := f.registry.Status(models.AgentTester)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, 1, status.ConsecutiveFailures)

	events := f.stream.Recent(testSessionID, 10)
	require.Len(t, events, 2)
	assert.Equal(t, models.ActivityAgentError, events[1].Type)
	assert.Equal(t, models.ErrorCodeTestFailure, events[1].Details["error_code"])
}

func TestExecuteInfrastructureError(t *testing.T) {
	stub := &stubAgent{
		meta: testMeta(models.AgentPlanner),
		execute: func(ctx context.Context, req *Request) (*models.AgentOutput, error) {
			return nil, context.Canceled
		},
	}
	f := newRouterFixture(t, stub)

	output, err := f.router.Execute(context.Background(), ExecutionInput{
		Agent: models.AgentPlanner,
		Task:  testTask(),
		Auth:  testAuth(),
	})
	require.Error(t, err)
	assert.Nil(t, output)
	assert.ErrorIs(t, err, context.Canceled, "cancellation must survive wrapping")

	status, err := f.registry.Status(models.AgentPlanner)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)
}

func TestExecuteNilOutputWithoutError(t *testing.T) {
	stub := &stubAgent{
		meta: testMeta(models.AgentPlanner),
		execute: func(ctx context.Context, req *Request) (*models.AgentOutput, error) {
			return nil, nil
		},
	}
	f := newRouterFixture(t, stub)

	_, err := f.router.Execute(context.Background(), ExecutionInput{
		Agent: models.AgentPlanner,
		Task:  testTask(),
		Auth:  testAuth(),
	})
	require.Error(t, err)
	assert.Equal(t, faults.CodeInvariant, faults.CodeOf(err))
}

func TestExecuteRejectsCrossTenantArtifacts(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"other tenant", "tenants/0b00b135-0000-4000-8000-000000000000/app/main.go"},
		{"bare tenants dir", "tenants"},
		{"traversal", "tenants/" + testTenantID + "/../other/app.go"},
		{"leading traversal", "../secrets/key.pem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAgent{
				meta: testMeta(models.AgentFrontendDev),
				execute: func(ctx context.Context, req *Request) (*models.AgentOutput, error) {
					return &models.AgentOutput{
						Success:   true,
						Artifacts: []models.Artifact{{ID: "a1", Type: "source", Path: tt.path}},
					}, nil
				},
			}
			f := newRouterFixture(t, stub)

			output, err := f.router.Execute(context.Background(), ExecutionInput{
				Agent: models.AgentFrontendDev,
				Task:  testTask(),
				Auth:  testAuth(),
			})
			require.Error(t, err)
			assert.Nil(t, output, "rejected outputs must not reach the caller")
			assert.Equal(t, faults.CodeSecurity, faults.CodeOf(err))

			status, statusErr := f.registry.Status(models.AgentFrontendDev)
			require.NoError(t, statusErr)
			assert.Equal(t, StateFailed, status.State)
		})
	}
}

func TestExecuteParallelCollectsByIndex(t *testing.T) {
	delays := map[models.AgentType]time.Duration{
		models.AgentFrontendDev: 30 * time.Millisecond,
		models.AgentBackendDev:  0,
	}
	newDelayed := func(at models.AgentType) *stubAgent {
		return &stubAgent{
			meta: testMeta(at),
			execute: func(ctx context.Context, req *Request) (*models.AgentOutput, error) {
				time.Sleep(delays[at])
				return &models.AgentOutput{Agent: at, Success: true}, nil
			},
		}
	}
	f := newRouterFixture(t, newDelayed(models.AgentFrontendDev), newDelayed(models.AgentBackendDev))

	outputs, err := f.router.ExecuteParallel(context.Background(), []ExecutionInput{
		{Agent: models.AgentFrontendDev, Task: testTask(), Auth: testAuth()},
		{Agent: models.AgentBackendDev, Task: testTask(), Auth: testAuth()},
	})
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, models.AgentFrontendDev, outputs[0].Agent, "slower first input keeps its slot")
	assert.Equal(t, models.AgentBackendDev, outputs[1].Agent)
}

func TestExecuteParallelRejectsMixedTenants(t *testing.T) {
	f := newRouterFixture(t, &stubAgent{meta: testMeta(models.AgentFrontendDev)})

	other := testAuth()
	other.TenantID = "0b00b135-0000-4000-8000-000000000000"
	_, err := f.router.ExecuteParallel(context.Background(), []ExecutionInput{
		{Agent: models.AgentFrontendDev, Task: testTask(), Auth: testAuth()},
		{Agent: models.AgentFrontendDev, Task: testTask(), Auth: other},
	})
	require.Error(t, err)
	assert.Equal(t, faults.CodeSecurity, faults.CodeOf(err))
}

func TestExecuteParallelPropagatesFailure(t *testing.T) {
	okAgent := &stubAgent{meta: testMeta(models.AgentFrontendDev)}
	failing := &stubAgent{
		meta: testMeta(models.AgentBackendDev),
		execute: func(ctx context.Context, req *Request) (*models.AgentOutput, error) {
			return nil, assert.AnError
		},
	}
	f := newRouterFixture(t, okAgent, failing)

	outputs, err := f.router.ExecuteParallel(context.Background(), []ExecutionInput{
		{Agent: models.AgentFrontendDev, Task: testTask(), Auth: testAuth()},
		{Agent: models.AgentBackendDev, Task: testTask(), Auth: testAuth()},
	})
	require.Error(t, err)
	assert.Nil(t, outputs)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "backend_dev")
}

func TestExecuteParallelEmptyInput(t *testing.T) {
	f := newRouterFixture(t, &stubAgent{meta: testMeta(models.AgentPlanner)})

	outputs, err := f.router.ExecuteParallel(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, outputs)
}

func TestVerifyArtifactPathsAllowsOwnTenant(t *testing.T) {
	output := &models.AgentOutput{Artifacts: []models.Artifact{
		{ID: "a", Path: "tenants/" + testTenantID + "/app/index.html"},
		{ID: "b", Path: "docs/readme.md"},
		{ID: "c", Path: ""},
	}}
	assert.NoError(t, verifyArtifactPaths(output, testTenantID))
}
