package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/baton/pkg/config"
	"github.com/codeready-toolchain/baton/pkg/metrics"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/notify"
	"github.com/codeready-toolchain/baton/pkg/workflow"
)

// Submission is one unit of work offered to the queue.
type Submission struct {
	Input workflow.Input

	// SlackFingerprint links the run to the Slack message that requested
	// it; empty for runs submitted through the API alone.
	SlackFingerprint string
}

// WorkerPool manages the submission queue and its workers.
type WorkerPool struct {
	cfg      *config.QueueConfig
	runs     *RunStore
	executor Executor
	notifier *notify.Service
	workers  []*Worker
	queue    chan Dispatch
	slots    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool

	// Run cancel registry: run_id to cancel function.
	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// NewWorkerPool creates a new worker pool. notifier may be nil (Slack
// notifications disabled).
func NewWorkerPool(cfg *config.QueueConfig, runs *RunStore, executor Executor, notifier *notify.Service) *WorkerPool {
	return &WorkerPool{
		cfg:        cfg,
		runs:       runs,
		executor:   executor,
		notifier:   notifier,
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		queue:      make(chan Dispatch, cfg.QueueSize),
		slots:      make(chan struct{}, cfg.MaxConcurrentWorkflows),
		stopCh:     make(chan struct{}),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Start spawns the worker goroutines. It is safe to call multiple times;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool",
		"worker_count", p.cfg.WorkerCount,
		"max_concurrent", p.cfg.MaxConcurrentWorkflows,
		"queue_size", p.cfg.QueueSize)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		worker := NewWorker(workerID, p.cfg, p.runs, p.executor, p, p.queue, p.slots, p.notifier)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	slog.Info("Worker pool started")
	return nil
}

// Stop drains the pool: new submissions are refused, active runs are
// cancelled (their checkpoints keep them resumable) and workers are waited
// for up to the graceful shutdown timeout.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	active := p.getActiveRunIDs()
	if len(active) > 0 {
		slog.Info("Cancelling active runs for shutdown",
			"count", len(active),
			"run_ids", active)
	}
	p.mu.RLock()
	for _, cancel := range p.activeRuns {
		cancel()
	}
	p.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		for _, worker := range p.workers {
			worker.Stop()
		}
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		slog.Warn("Worker pool stop timed out, abandoning workers",
			"timeout", p.cfg.GracefulShutdownTimeout)
	}
}

// Submit validates and enqueues a fresh workflow run, returning the queued
// record. An id already queued, executing or suspended is refused.
func (p *WorkerPool) Submit(sub Submission) (Run, error) {
	if p.stopped() {
		return Run{}, ErrPoolStopped
	}
	if err := sub.Input.Validate(); err != nil {
		return Run{}, err
	}
	run, err := p.runs.insert(sub.Input, sub.SlackFingerprint)
	if err != nil {
		return Run{}, err
	}
	if err := p.enqueue(Dispatch{RunID: run.ID, Kind: DispatchStart}); err != nil {
		p.runs.remove(run.ID)
		return Run{}, err
	}
	return run, nil
}

// SubmitResume enqueues continuation of a checkpointed workflow. The run id
// must be idle: terminal runs are replaced, unknown ids (a prior process's
// runs) are registered fresh.
func (p *WorkerPool) SubmitResume(sub Submission, cp *models.Checkpoint) (Run, error) {
	if p.stopped() {
		return Run{}, ErrPoolStopped
	}
	if cp == nil {
		return Run{}, fmt.Errorf("checkpoint is required")
	}
	if err := sub.Input.Validate(); err != nil {
		return Run{}, err
	}
	run, err := p.runs.insert(sub.Input, sub.SlackFingerprint)
	if err != nil {
		return Run{}, err
	}
	if err := p.enqueue(Dispatch{RunID: run.ID, Kind: DispatchResume, Checkpoint: cp}); err != nil {
		p.runs.remove(run.ID)
		return Run{}, err
	}
	return run, nil
}

// SubmitApproval answers a pending approval and schedules the continuation.
// The response reaches the suspended engine through a fresh dispatch, so it
// runs on a worker rather than in the caller's goroutine.
func (p *WorkerPool) SubmitApproval(runID string, resp models.ApprovalResponse) (Run, error) {
	if p.stopped() {
		return Run{}, ErrPoolStopped
	}
	if err := p.runs.beginApproval(runID); err != nil {
		return Run{}, err
	}
	if err := p.enqueue(Dispatch{RunID: runID, Kind: DispatchApproval, Approval: &resp}); err != nil {
		p.runs.revertApproval(runID)
		return Run{}, err
	}
	return p.runs.Get(runID)
}

// CancelRun stops a run. A running workflow's context is cancelled and the
// worker records the terminal state; the workflow stays resumable from its
// checkpoints. A queued or suspended run is finalized immediately.
func (p *WorkerPool) CancelRun(runID string) error {
	p.mu.RLock()
	cancel, ok := p.activeRuns[runID]
	p.mu.RUnlock()
	if ok {
		cancel()
		return nil
	}
	return p.runs.cancelIdle(runID)
}

// RegisterRun stores a cancel function for manual cancellation.
func (p *WorkerPool) RegisterRun(runID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeRuns[runID] = cancel
}

// UnregisterRun removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterRun(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeRuns, runID)
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	p.mu.RLock()
	activeRuns := len(p.activeRuns)
	p.mu.RUnlock()

	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0 && activeRuns <= p.cfg.MaxConcurrentWorkflows,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		ActiveRuns:    activeRuns,
		MaxConcurrent: p.cfg.MaxConcurrentWorkflows,
		QueueDepth:    len(p.queue),
		WorkerStats:   workerStats,
	}
}

// enqueue offers a dispatch to the queue without blocking.
func (p *WorkerPool) enqueue(dispatch Dispatch) error {
	select {
	case p.queue <- dispatch:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *WorkerPool) stopped() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

// getActiveRunIDs returns IDs of currently executing runs (for logging).
func (p *WorkerPool) getActiveRunIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	runs := make([]string, 0, len(p.activeRuns))
	for id := range p.activeRuns {
		runs = append(runs, id)
	}
	return runs
}
