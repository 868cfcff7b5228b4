package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/config"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/workflow"
)

const (
	queueTenantID  = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	queueProjectID = "6ba7b811-9dad-11d1-80b4-00c04fd430c8"
	queueSessionID = "session-queue"
)

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             2,
		MaxConcurrentWorkflows:  2,
		QueueSize:               8,
		WorkflowTimeout:         5 * time.Second,
		GracefulShutdownTimeout: 5 * time.Second,
	}
}

func queueAuth() models.AuthContext {
	return models.AuthContext{
		TenantID:  queueTenantID,
		UserID:    "user-1",
		SessionID: queueSessionID,
	}
}

func queueInput(taskID string) workflow.Input {
	return workflow.Input{
		TaskID:    taskID,
		TenantID:  queueTenantID,
		ProjectID: queueProjectID,
		Prompt:    "add a checkout flow to the storefront",
		Auth:      queueAuth(),
	}
}

// stubExecutor answers dispatches with scripted results and records every
// dispatch it saw. A nil script completes everything.
type stubExecutor struct {
	script func(ctx context.Context, dispatch Dispatch) *ExecutionResult

	mu         sync.Mutex
	dispatches []Dispatch
}

func (s *stubExecutor) Execute(ctx context.Context, dispatch Dispatch) *ExecutionResult {
	s.mu.Lock()
	s.dispatches = append(s.dispatches, dispatch)
	s.mu.Unlock()
	if s.script == nil {
		return &ExecutionResult{State: RunCompleted, Reason: "all phases complete"}
	}
	return s.script(ctx, dispatch)
}

func (s *stubExecutor) recorded() []Dispatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Dispatch, len(s.dispatches))
	copy(out, s.dispatches)
	return out
}

func (s *stubExecutor) kinds() []DispatchKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DispatchKind, 0, len(s.dispatches))
	for _, d := range s.dispatches {
		out = append(out, d.Kind)
	}
	return out
}

// blockUntilCancelled parks the execution until the dispatch context ends,
// then reports the context error with an undecided state so the worker maps
// it. Returning nil instead exercises the worker's nil-guard.
func blockUntilCancelled(returnNil bool) func(ctx context.Context, dispatch Dispatch) *ExecutionResult {
	return func(ctx context.Context, _ Dispatch) *ExecutionResult {
		<-ctx.Done()
		if returnNil {
			return nil
		}
		return &ExecutionResult{Error: ctx.Err()}
	}
}

func newPoolFixture(t *testing.T, cfg *config.QueueConfig, executor Executor) (*WorkerPool, *RunStore) {
	t.Helper()
	if cfg == nil {
		cfg = testQueueConfig()
	}
	runs := NewRunStore()
	pool := NewWorkerPool(cfg, runs, executor, nil)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(pool.Stop)
	return pool, runs
}

// waitForState polls the store until the run reaches the wanted state.
func waitForState(t *testing.T, runs *RunStore, id string, state RunState) Run {
	t.Helper()
	var run Run
	require.Eventually(t, func() bool {
		var err error
		run, err = runs.Get(id)
		return err == nil && run.State == state
	}, 5*time.Second, 10*time.Millisecond, "run %s never reached %s", id, state)
	return run
}
