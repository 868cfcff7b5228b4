// Package queue provides workflow queue management and processing
// infrastructure: an in-memory submission queue, a worker pool bounded by a
// global concurrency limit, and the executor that drives workflow engines.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/codeready-toolchain/baton/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrQueueFull indicates the submission queue is at capacity.
	ErrQueueFull = errors.New("queue full")

	// ErrPoolStopped indicates the pool no longer accepts work.
	ErrPoolStopped = errors.New("pool stopped")

	// ErrRunNotFound indicates no run with the given id is known.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunActive indicates a run with the given id is queued or executing.
	ErrRunActive = errors.New("run already active")

	// ErrRunTerminal indicates the run already reached a terminal state.
	ErrRunTerminal = errors.New("run already terminal")

	// ErrNoApprovalPending indicates the run is not awaiting an approval.
	ErrNoApprovalPending = errors.New("no approval pending")
)

// RunState is the queue-level lifecycle state of one workflow run.
type RunState string

// Run lifecycle states.
const (
	RunQueued           RunState = "queued"
	RunRunning          RunState = "running"
	RunAwaitingApproval RunState = "awaiting_approval"
	RunCompleted        RunState = "completed"
	RunFailed           RunState = "failed"
	RunCancelled        RunState = "cancelled"
	RunTimedOut         RunState = "timed_out"
	RunEscalated        RunState = "escalated"
)

// Terminal reports whether the state admits no further processing. Cancelled
// and timed-out runs are terminal here but may be resubmitted from a
// checkpoint.
func (s RunState) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunTimedOut, RunEscalated:
		return true
	}
	return false
}

// DispatchKind distinguishes why a run was queued.
type DispatchKind string

// Dispatch kinds.
const (
	// DispatchStart runs a freshly submitted task.
	DispatchStart DispatchKind = "start"

	// DispatchResume continues a run from a checkpoint.
	DispatchResume DispatchKind = "resume"

	// DispatchApproval feeds an approval response to a suspended run.
	DispatchApproval DispatchKind = "approval"
)

// Dispatch is one unit of queued work: which run, and why. Approval is set
// on approval dispatches, Checkpoint on resume dispatches.
type Dispatch struct {
	RunID      string
	Kind       DispatchKind
	Approval   *models.ApprovalResponse
	Checkpoint *models.Checkpoint
}

// Executor drives one dispatch of a workflow run.
//
// The executor owns the engine lifecycle internally:
//   - Start dispatches build a fresh engine and run it to a terminal or
//     suspended state.
//   - Approval dispatches feed the response to the run's suspended engine.
//   - Resume dispatches rebuild an engine from a checkpoint.
//
// Engine progress lands in the shared run store as it happens; the worker
// only handles claiming, the execution deadline, terminal bookkeeping and
// notifications. A nil result is synthesized into a terminal state from the
// dispatch context.
type Executor interface {
	Execute(ctx context.Context, dispatch Dispatch) *ExecutionResult
}

// ExecutionResult is lightweight, just the resting state of one dispatch.
// An empty State with a non-nil Error means the executor could not decide;
// the worker maps it from the dispatch context (deadline, cancellation).
type ExecutionResult struct {
	State    RunState                // terminal state, or awaiting_approval
	Approval *models.ApprovalRequest // pending request when suspended
	Reason   string                  // human-readable resting reason
	Error    error                   // error details (if failed/timed_out)
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	ActiveRuns    int            `json:"active_runs"`
	MaxConcurrent int            `json:"max_concurrent"`
	QueueDepth    int            `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentRunID  string    `json:"current_run_id,omitempty"`
	RunsProcessed int       `json:"runs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
