package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/agent"
	"github.com/codeready-toolchain/baton/pkg/checkpoint"
	"github.com/codeready-toolchain/baton/pkg/decision"
	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/workflow"
)

// SettingsSource yields the workflow settings applied to new engines.
// *config.SettingsStore satisfies it.
type SettingsSource interface {
	Get() models.WorkflowSettings
}

// EngineConfig assembles the collaborators the executor hands every engine.
type EngineConfig struct {
	Router  *agent.Router
	Decider *decision.Engine

	// Stream and CheckpointDir are optional; empty disables event emission
	// or checkpointing respectively. Each run checkpoints into its own
	// directory under CheckpointDir, keyed by run id.
	Stream        *activity.Stream
	CheckpointDir string

	// Settings supplies the live settings document read once per dispatch;
	// nil applies the documented defaults.
	Settings SettingsSource

	// MaxIterations bounds each engine's decision loop. Zero applies the
	// engine default.
	MaxIterations int
}

// EngineExecutor runs dispatches on real workflow engines. One engine is
// built per workflow run and attached to the run store entry, so the pool
// can cancel it and status reads see live progress.
type EngineExecutor struct {
	cfg  EngineConfig
	runs *RunStore
}

var _ Executor = (*EngineExecutor)(nil)

// NewEngineExecutor creates the executor over a shared run store.
func NewEngineExecutor(cfg EngineConfig, runs *RunStore) (*EngineExecutor, error) {
	if cfg.Router == nil {
		return nil, faults.New(faults.CodeValidation, "executor requires a router")
	}
	if cfg.Decider == nil {
		return nil, faults.New(faults.CodeValidation, "executor requires a decision engine")
	}
	if runs == nil {
		return nil, faults.New(faults.CodeValidation, "executor requires a run store")
	}
	return &EngineExecutor{cfg: cfg, runs: runs}, nil
}

// Execute drives one dispatch to its resting state.
func (x *EngineExecutor) Execute(ctx context.Context, dispatch Dispatch) *ExecutionResult {
	switch dispatch.Kind {
	case DispatchStart:
		return x.start(ctx, dispatch)
	case DispatchResume:
		return x.resume(ctx, dispatch)
	case DispatchApproval:
		return x.approval(ctx, dispatch)
	default:
		return &ExecutionResult{
			State: RunFailed,
			Error: fmt.Errorf("unknown dispatch kind %q", dispatch.Kind),
		}
	}
}

func (x *EngineExecutor) start(ctx context.Context, dispatch Dispatch) *ExecutionResult {
	input, ok := x.runs.inputFor(dispatch.RunID)
	if !ok {
		return &ExecutionResult{State: RunFailed, Error: fmt.Errorf("run %s: %w", dispatch.RunID, ErrRunNotFound)}
	}
	engine, err := x.newEngine(dispatch.RunID)
	if err != nil {
		return &ExecutionResult{State: RunFailed, Error: err}
	}
	x.runs.attachEngine(dispatch.RunID, engine)

	res, err := engine.Run(ctx, input)
	return translateResult(res, err)
}

func (x *EngineExecutor) resume(ctx context.Context, dispatch Dispatch) *ExecutionResult {
	if dispatch.Checkpoint == nil {
		return &ExecutionResult{State: RunFailed, Error: fmt.Errorf("resume dispatch carries no checkpoint")}
	}
	input, ok := x.runs.inputFor(dispatch.RunID)
	if !ok {
		return &ExecutionResult{State: RunFailed, Error: fmt.Errorf("run %s: %w", dispatch.RunID, ErrRunNotFound)}
	}
	engine, err := x.newEngine(dispatch.RunID)
	if err != nil {
		return &ExecutionResult{State: RunFailed, Error: err}
	}
	x.runs.attachEngine(dispatch.RunID, engine)

	res, err := engine.Resume(ctx, dispatch.Checkpoint, input.Auth)
	return translateResult(res, err)
}

func (x *EngineExecutor) approval(ctx context.Context, dispatch Dispatch) *ExecutionResult {
	if dispatch.Approval == nil {
		return &ExecutionResult{State: RunFailed, Error: fmt.Errorf("approval dispatch carries no response")}
	}
	engine := x.runs.engineFor(dispatch.RunID)
	if engine == nil {
		return &ExecutionResult{State: RunFailed, Error: fmt.Errorf("run %s has no suspended engine", dispatch.RunID)}
	}

	res, err := engine.SubmitApproval(ctx, *dispatch.Approval)
	return translateResult(res, err)
}

// newEngine builds a fresh engine with a per-run checkpoint store and the
// current settings document.
func (x *EngineExecutor) newEngine(runID string) (*workflow.Engine, error) {
	var store *checkpoint.Store
	if x.cfg.CheckpointDir != "" {
		var err error
		store, err = checkpoint.NewStore(checkpoint.Config{
			BaseDir:   x.cfg.CheckpointDir,
			SessionID: runID,
		})
		if err != nil {
			return nil, err
		}
	}
	var settings models.WorkflowSettings
	if x.cfg.Settings != nil {
		settings = x.cfg.Settings.Get()
	}
	return workflow.New(workflow.Config{
		Router:        x.cfg.Router,
		Decider:       x.cfg.Decider,
		Checkpoints:   store,
		Stream:        x.cfg.Stream,
		Settings:      settings,
		MaxIterations: x.cfg.MaxIterations,
	})
}

// translateResult maps an engine result to the queue's terms. Interruption
// leaves State empty so the worker can tell deadline from cancellation via
// the dispatch context; the workflow itself stays resumable from its
// checkpoints.
func translateResult(res *workflow.Result, err error) *ExecutionResult {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &ExecutionResult{Error: err}
		}
		return &ExecutionResult{State: RunFailed, Error: err}
	}
	if res == nil {
		return nil
	}
	if res.Task.Phase.Suspended() {
		return &ExecutionResult{
			State:    RunAwaitingApproval,
			Approval: res.Approval,
			Reason:   res.Reason,
		}
	}
	return &ExecutionResult{
		State:  stateForOutcome(res.Task.Outcome),
		Reason: res.Reason,
	}
}

// stateForOutcome maps a workflow outcome to the queue's terminal state.
func stateForOutcome(outcome *models.Outcome) RunState {
	if outcome == nil {
		return RunFailed
	}
	switch *outcome {
	case models.OutcomeSuccess:
		return RunCompleted
	case models.OutcomeAborted:
		return RunCancelled
	case models.OutcomeEscalated:
		return RunEscalated
	default:
		return RunFailed
	}
}
