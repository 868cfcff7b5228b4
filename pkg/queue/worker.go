package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/baton/pkg/config"
	"github.com/codeready-toolchain/baton/pkg/metrics"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/notify"
	"github.com/codeready-toolchain/baton/pkg/redact"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// RunRegistry is the subset of WorkerPool used by Worker for run
// registration.
type RunRegistry interface {
	RegisterRun(runID string, cancel context.CancelFunc)
	UnregisterRun(runID string)
}

// Worker is a single queue worker that receives and processes dispatches.
type Worker struct {
	id         string
	config     *config.QueueConfig
	runs       *RunStore
	executor   Executor
	notifier   *notify.Service
	pool       RunRegistry
	dispatches <-chan Dispatch
	slots      chan struct{}
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentRunID  string
	runsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a new queue worker. slots is the pool-wide concurrency
// semaphore; notifier may be nil (Slack notifications disabled).
func NewWorker(id string, cfg *config.QueueConfig, runs *RunStore, executor Executor, pool RunRegistry, dispatches <-chan Dispatch, slots chan struct{}, notifier *notify.Service) *Worker {
	return &Worker{
		id:           id,
		config:       cfg,
		runs:         runs,
		executor:     executor,
		notifier:     notifier,
		pool:         pool,
		dispatches:   dispatches,
		slots:        slots,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker receive loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current
// dispatch. It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentRunID:  w.currentRunID,
		RunsProcessed: w.runsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		case dispatch := <-w.dispatches:
			metrics.QueueDepth.Set(float64(len(w.dispatches)))
			if err := w.process(ctx, dispatch); err != nil {
				log.Error("Error processing dispatch",
					"run_id", dispatch.RunID, "kind", dispatch.Kind, "error", err)
			}
		}
	}
}

// process claims the dispatched run and drives it to its resting state.
func (w *Worker) process(ctx context.Context, dispatch Dispatch) error {
	// 1. Wait for a concurrency slot (global limit across workers).
	select {
	case w.slots <- struct{}{}:
	case <-w.stopCh:
		return nil
	case <-ctx.Done():
		return nil
	}
	defer func() { <-w.slots }()

	log := slog.With("run_id", dispatch.RunID, "worker_id", w.id, "kind", dispatch.Kind)

	// 2. Register the cancel hook, then claim the run. Registration comes
	//    first so a cancel request arriving mid-claim still lands.
	runCtx, cancelRun := context.WithTimeout(ctx, w.config.WorkflowTimeout)
	defer cancelRun()
	w.pool.RegisterRun(dispatch.RunID, cancelRun)
	defer w.pool.UnregisterRun(dispatch.RunID)

	if !w.runs.markRunning(dispatch.RunID) {
		log.Info("Dispatch dropped, run is no longer queued")
		return nil
	}
	run, err := w.runs.Get(dispatch.RunID)
	if err != nil {
		return err
	}
	log.Info("Run claimed")

	w.setStatus(WorkerStatusWorking, dispatch.RunID)
	defer w.setStatus(WorkerStatusIdle, "")

	// 3. Slack start notification (fresh runs only; resolves the thread).
	if dispatch.Kind == DispatchStart {
		metrics.WorkflowsStarted.Inc()
		w.notifyStart(ctx, run)
	}

	// 4. Execute under the workflow deadline.
	result := w.executor.Execute(runCtx, dispatch)

	// 4a. Nil-guard: synthesize a safe result if the executor returned nil.
	if result == nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			result = &ExecutionResult{
				State: RunTimedOut,
				Error: fmt.Errorf("workflow timed out after %v", w.config.WorkflowTimeout),
			}
		case errors.Is(runCtx.Err(), context.Canceled):
			result = &ExecutionResult{
				State: RunCancelled,
				Error: context.Canceled,
			}
		default:
			result = &ExecutionResult{
				State: RunFailed,
				Error: fmt.Errorf("executor returned nil result"),
			}
		}
	}

	// 5. Handle timeout.
	if result.State == "" && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result = &ExecutionResult{
			State: RunTimedOut,
			Error: fmt.Errorf("workflow timed out after %v", w.config.WorkflowTimeout),
		}
	}

	// 6. Handle cancellation.
	if result.State == "" && errors.Is(runCtx.Err(), context.Canceled) {
		result = &ExecutionResult{
			State: RunCancelled,
			Error: context.Canceled,
		}
	}

	// 7. Anything still undecided failed.
	if result.State == "" {
		result.State = RunFailed
	}

	// 8. Execution is over; leave the cancel registry before the record
	//    updates so cancellation now resolves through the store.
	w.pool.UnregisterRun(dispatch.RunID)

	// 9. Record the resting state (use background context, the run context
	//    may be cancelled).
	var errMsg string
	if result.Error != nil {
		errMsg = redact.String(result.Error.Error())
	}
	if result.State == RunAwaitingApproval {
		w.runs.markSuspended(dispatch.RunID, result.Approval, result.Reason)
		metrics.WorkflowsSuspended.Inc()
		w.notifyApproval(context.Background(), dispatch.RunID, result.Approval)
	} else {
		w.runs.markTerminal(dispatch.RunID, result.State, result.Reason, errMsg)
		metrics.WorkflowsCompleted.WithLabelValues(string(result.State)).Inc()
		w.notifyTerminal(context.Background(), dispatch.RunID, result, errMsg)
	}

	w.mu.Lock()
	w.runsProcessed++
	w.mu.Unlock()

	log.Info("Run processing complete", "state", result.State)
	return nil
}

// notifyStart sends a Slack start notification if the run carries a message
// fingerprint. The resolved thread is cached for later notifications.
func (w *Worker) notifyStart(ctx context.Context, run Run) {
	if w.notifier == nil {
		return
	}
	threadTS := w.notifier.NotifyWorkflowStarted(ctx, notify.WorkflowStartedInput{
		WorkflowID:  run.ID,
		Fingerprint: run.SlackFingerprint,
	})
	if threadTS != "" {
		w.runs.setThreadTS(run.ID, threadTS)
	}
}

// notifyApproval sends a Slack approval request notification.
func (w *Worker) notifyApproval(ctx context.Context, runID string, approval *models.ApprovalRequest) {
	if w.notifier == nil || approval == nil {
		return
	}
	run, err := w.runs.Get(runID)
	if err != nil {
		return
	}
	w.notifier.NotifyApprovalRequested(ctx, notify.ApprovalRequestedInput{
		WorkflowID:  runID,
		Title:       approval.Title,
		Description: approval.Description,
		Options:     approval.Options,
		Fingerprint: run.SlackFingerprint,
		ThreadTS:    w.runs.threadTS(runID),
	})
}

// notifyTerminal sends a Slack terminal status notification.
func (w *Worker) notifyTerminal(ctx context.Context, runID string, result *ExecutionResult, errMsg string) {
	if w.notifier == nil {
		return
	}
	run, err := w.runs.Get(runID)
	if err != nil {
		return
	}
	w.notifier.NotifyWorkflowCompleted(ctx, notify.WorkflowCompletedInput{
		WorkflowID:   runID,
		Status:       string(result.State),
		Reason:       result.Reason,
		ErrorMessage: errMsg,
		Fingerprint:  run.SlackFingerprint,
		ThreadTS:     w.runs.threadTS(runID),
	})
}

// setStatus updates the worker's health tracking state and the active
// worker gauge.
func (w *Worker) setStatus(status WorkerStatus, runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if status == WorkerStatusWorking && w.status != WorkerStatusWorking {
		metrics.ActiveWorkers.Inc()
	}
	if status == WorkerStatusIdle && w.status == WorkerStatusWorking {
		metrics.ActiveWorkers.Dec()
	}
	w.status = status
	w.currentRunID = runID
	w.lastActivity = time.Now()
}
